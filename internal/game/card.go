package game

import "github.com/magefree/tabletop-server-go/internal/game/counters"

// Card identifies a card across the whole system. Two cards with the same
// code are the same card; no rule fields are carried here.
type Card struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
}

// Equal compares cards by code only.
func (c Card) Equal(other Card) bool {
	return c.Code == other.Code
}

// UnknownCard is used when catalog metadata for a code is unavailable.
func UnknownCard(code string) Card {
	return Card{Code: code, Name: code}
}

// ExhaustedRotation is the rotation delta applied when a card is exhausted.
const ExhaustedRotation = 90

// CardInPlay is one physical card placed on the shared board.
type CardInPlay struct {
	InstanceID string            `json:"instance_id"`
	Card       Card              `json:"card"`
	Owner      string            `json:"owner"` // deck the card came from: a player name or EncounterOwner
	Position   Position          `json:"position"`
	Exhausted  bool              `json:"exhausted"`
	Counters   counters.Counters `json:"counters"`
}

// NewCardInPlay places card at pos.
func NewCardInPlay(instanceID string, card Card, owner string, pos Position) CardInPlay {
	return CardInPlay{
		InstanceID: instanceID,
		Card:       card,
		Owner:      owner,
		Position:   pos.normalized(),
		Counters:   counters.New(),
	}
}

// Code returns the card code.
func (c CardInPlay) Code() string {
	return c.Card.Code
}

// WithPosition returns c at pos; all other fields are unchanged.
func (c CardInPlay) WithPosition(pos Position) CardInPlay {
	c.Position = pos.normalized()
	c.Counters = c.Counters.Clone()
	return c
}

// WithExhaustionToggled rotates the card by ExhaustedRotation when exhausting
// it and back when readying it. Applying it twice restores the original
// rotation whatever that rotation was.
func (c CardInPlay) WithExhaustionToggled() CardInPlay {
	if c.Exhausted {
		c.Position = c.Position.WithRotation(c.Position.Rotation - ExhaustedRotation)
	} else {
		c.Position = c.Position.WithRotation(c.Position.Rotation + ExhaustedRotation)
	}
	c.Exhausted = !c.Exhausted
	c.Counters = c.Counters.Clone()
	return c
}

// WithFaceToggled flips the card between face up and face down.
func (c CardInPlay) WithFaceToggled() CardInPlay {
	c.Position = c.Position.Flipped()
	c.Counters = c.Counters.Clone()
	return c
}

// WithCounter adds amount (possibly negative) to the named counter, floored
// at zero.
func (c CardInPlay) WithCounter(name string, amount int) CardInPlay {
	c.Counters = c.Counters.Add(name, amount)
	return c
}

func (c CardInPlay) clone() CardInPlay {
	c.Counters = c.Counters.Clone()
	return c
}
