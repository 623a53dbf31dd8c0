package game

import (
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Board layout used when a game starts: the encounter deck sits on the top
// row, each player deck gets its own row below.
const (
	layoutPileSpacing = 150
	layoutRowSpacing  = 300
)

func validName(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return InvalidArgument(op, "%s is required", field)
	}
	if value == EncounterOwner {
		return InvalidArgument(op, "%s %q is reserved", field, value)
	}
	return nil
}

func requireLobby(op string, s Session) error {
	if s.Phase != PhaseLobby {
		return InvalidState(op, "session %s is %s, not in lobby", s.ID, s.Phase)
	}
	return nil
}

func requireHost(op string, s Session, username string) error {
	if !s.IsHost(username) {
		return Forbidden(op, "only the host can do this")
	}
	return nil
}

// CreateLobby creates a session in LOBBY with the host as its only player.
func CreateLobby(id, name, hostName string, now time.Time) (Session, error) {
	const op = "CreateLobby"
	if strings.TrimSpace(name) == "" {
		return Session{}, InvalidArgument(op, "name is required")
	}
	if err := validName(op, "host name", hostName); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Session{}, InvalidArgument(op, "id is required")
	}
	now = now.UTC()
	return Session{
		ID:    id,
		Name:  name,
		Slug:  slug.Make(name),
		Host:  hostName,
		Phase: PhaseLobby,
		Players: []Player{
			{Name: hostName, IsHost: true},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// JoinLobby appends a non-host, not-ready player.
func JoinLobby(s Session, username string) (Session, error) {
	const op = "JoinLobby"
	if err := validName(op, "username", username); err != nil {
		return s, err
	}
	if _, _, exists := s.Player(username); exists {
		return s, Conflict(op, "player %q already in session", username)
	}
	if err := requireLobby(op, s); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Players = append(next.Players, Player{Name: username})
	return next, nil
}

// LeaveLobby removes username. When the host or the last player leaves the
// session is deleted, reported through deleted rather than an error. A
// player leaving an active game leaves its deck on the board.
func LeaveLobby(s Session, username string) (next Session, deleted bool, err error) {
	const op = "LeaveLobby"
	_, idx, ok := s.Player(username)
	if !ok {
		return s, false, NotFound(op, "player %q not in session", username)
	}
	if s.IsHost(username) || len(s.Players) == 1 {
		return s, true, nil
	}
	next = s.Clone()
	next.Players = slices.Delete(next.Players, idx, idx+1)
	return next, false, nil
}

// ChooseDeck records the player's deck choice. deck was resolved by the
// caller. Ready state is left as is.
func ChooseDeck(s Session, username string, deck DeckList) (Session, error) {
	const op = "ChooseDeck"
	p, idx, ok := s.Player(username)
	if !ok {
		return s, NotFound(op, "player %q not in session", username)
	}
	if err := requireLobby(op, s); err != nil {
		return s, err
	}
	if deck.ID == "" {
		return s, NotFound(op, "deck not found")
	}
	p.DeckID = deck.ID
	return s.Clone().withPlayer(idx, p), nil
}

// SetEncounterDeck records the encounter deck. Host only.
func SetEncounterDeck(s Session, username string, deck DeckList) (Session, error) {
	const op = "SetEncounterDeck"
	if err := requireHost(op, s, username); err != nil {
		return s, err
	}
	if err := requireLobby(op, s); err != nil {
		return s, err
	}
	if deck.ID == "" {
		return s, NotFound(op, "encounter deck not found")
	}
	next := s.Clone()
	next.EncounterDeckID = deck.ID
	return next, nil
}

// ToggleReady flips the player's ready flag. Becoming ready requires a deck;
// backing out is always allowed.
func ToggleReady(s Session, username string) (Session, error) {
	const op = "ToggleReady"
	p, idx, ok := s.Player(username)
	if !ok {
		return s, NotFound(op, "player %q not in session", username)
	}
	if err := requireLobby(op, s); err != nil {
		return s, err
	}
	if !p.IsReady && !p.HasDeck() {
		return s, InvalidState(op, "choose a deck first")
	}
	p.IsReady = !p.IsReady
	return s.Clone().withPlayer(idx, p), nil
}

// CheckStart validates the host and every start precondition without
// resolving any deck.
func CheckStart(s Session, username string) error {
	const op = "StartGame"
	if err := requireHost(op, s, username); err != nil {
		return err
	}
	if reasons := s.StartViolations(); len(reasons) > 0 {
		return &Error{Kind: KindInvalidState, Op: op, Message: "cannot start game", Reasons: reasons}
	}
	return nil
}

// StartGame builds the play zone and moves the session to ACTIVE. decks maps
// player names to their resolved decks; encounter is the resolved encounter
// deck.
func StartGame(s Session, username string, decks map[string]DeckList, encounter DeckList, rnd Randomizer) (Session, error) {
	const op = "StartGame"
	if err := CheckStart(s, username); err != nil {
		return s, err
	}
	if encounter.ID != s.EncounterDeckID {
		return s, NotFound(op, "encounter deck %q not resolved", s.EncounterDeckID)
	}

	zone := PlayZone{
		Encounter:   NewDeckInPlay(EncounterOwner, encounter, At(0, 0), At(layoutPileSpacing, 0), rnd),
		PlayerDecks: make(map[string]DeckInPlay, len(s.Players)),
		Cards:       []CardInPlay{},
	}
	for i, p := range s.Players {
		deck, ok := decks[p.Name]
		if !ok || deck.ID != p.DeckID {
			return s, NotFound(op, "deck %q of player %q not resolved", p.DeckID, p.Name)
		}
		row := layoutRowSpacing * (i + 1)
		zone.PlayerDecks[p.Name] = NewDeckInPlay(p.Name, deck, At(0, row), At(layoutPileSpacing, row), rnd)
	}

	next := s.Clone()
	next.Phase = PhaseActive
	return next.withZone(zone), nil
}

// DeleteLobby authorizes deleting the session. Host only.
func DeleteLobby(s Session, username string) error {
	return requireHost("DeleteLobby", s, username)
}

// FinishGame moves an active session to its terminal FINISHED phase. The
// board is kept for inspection. Host only.
func FinishGame(s Session, username string) (Session, error) {
	const op = "FinishGame"
	if err := requireHost(op, s, username); err != nil {
		return s, err
	}
	if s.Phase != PhaseActive {
		return s, InvalidState(op, "session %s is %s, not active", s.ID, s.Phase)
	}
	next := s.Clone()
	next.Phase = PhaseFinished
	return next, nil
}
