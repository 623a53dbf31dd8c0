package game

import (
	"slices"
	"time"
)

// Phase is the lifecycle phase of a session. Transitions only go
// LOBBY -> ACTIVE -> FINISHED.
type Phase string

const (
	PhaseLobby    Phase = "LOBBY"
	PhaseActive   Phase = "ACTIVE"
	PhaseFinished Phase = "FINISHED"
)

func (p Phase) String() string {
	return string(p)
}

// Player is a member of a session. Players are identified by name, which is
// unique within the session.
type Player struct {
	Name    string `json:"name"`
	IsHost  bool   `json:"is_host"`
	IsReady bool   `json:"is_ready"`
	DeckID  string `json:"deck_id,omitempty"`
}

// HasDeck reports whether the player has chosen a deck.
func (p Player) HasDeck() bool {
	return p.DeckID != ""
}

// Session is the root aggregate of one game, from lobby to finish.
// PlayZone is nil while Phase is LOBBY and set afterwards.
type Session struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Host            string    `json:"host"`
	Phase           Phase     `json:"phase"`
	Players         []Player  `json:"players"`
	EncounterDeckID string    `json:"encounter_deck_id,omitempty"`
	PlayZone        *PlayZone `json:"play_zone,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a deep copy, so callers can never alias another command's
// state.
func (s Session) Clone() Session {
	s.Players = slices.Clone(s.Players)
	if s.PlayZone != nil {
		z := s.PlayZone.clone()
		s.PlayZone = &z
	}
	return s
}

// Player returns the named player and its roster index.
func (s Session) Player(name string) (Player, int, bool) {
	for i, p := range s.Players {
		if p.Name == name {
			return p, i, true
		}
	}
	return Player{}, -1, false
}

// IsHost reports whether name is the session host.
func (s Session) IsHost(name string) bool {
	return name != "" && name == s.Host
}

// AllReady reports whether every player is ready.
func (s Session) AllReady() bool {
	for _, p := range s.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// StartViolations lists every unmet start precondition.
func (s Session) StartViolations() []string {
	var reasons []string
	if s.Phase != PhaseLobby {
		reasons = append(reasons, "game already started")
	}
	if len(s.Players) == 0 {
		reasons = append(reasons, "no players")
	} else if !s.AllReady() {
		reasons = append(reasons, "not all players ready")
	}
	if s.EncounterDeckID == "" {
		reasons = append(reasons, "no encounter deck selected")
	}
	return reasons
}

// CanStart reports whether the session may move to ACTIVE.
func (s Session) CanStart() bool {
	return len(s.StartViolations()) == 0
}

// Touch returns s with the next version and update time.
func (s Session) Touch(now time.Time) Session {
	s.Version++
	s.UpdatedAt = now.UTC()
	return s
}

func (s Session) withPlayer(idx int, p Player) Session {
	players := slices.Clone(s.Players)
	players[idx] = p
	s.Players = players
	return s
}

func (s Session) withZone(z PlayZone) Session {
	s.PlayZone = &z
	return s
}

// Summary is the lobby-list view of a session.
type Summary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Host        string    `json:"host"`
	Phase       Phase     `json:"phase"`
	PlayerCount int       `json:"player_count"`
	ReadyCount  int       `json:"ready_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summarize builds the list view of s.
func (s Session) Summarize() Summary {
	ready := 0
	for _, p := range s.Players {
		if p.IsReady {
			ready++
		}
	}
	return Summary{
		ID:          s.ID,
		Name:        s.Name,
		Slug:        s.Slug,
		Host:        s.Host,
		Phase:       s.Phase,
		PlayerCount: len(s.Players),
		ReadyCount:  ready,
		UpdatedAt:   s.UpdatedAt,
	}
}
