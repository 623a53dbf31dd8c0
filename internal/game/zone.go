package game

import "maps"

// EncounterOwner is the owner key of the shared encounter deck. It is
// reserved and cannot be used as a player name.
const EncounterOwner = "encounter"

// PlayZone is the shared board of an active session.
type PlayZone struct {
	Encounter   DeckInPlay            `json:"encounter"`
	PlayerDecks map[string]DeckInPlay `json:"player_decks"`
	Cards       []CardInPlay          `json:"cards"` // draw order; instance ids are unique
}

func (z PlayZone) clone() PlayZone {
	z.Encounter = z.Encounter.clone()
	decks := make(map[string]DeckInPlay, len(z.PlayerDecks))
	for owner, d := range z.PlayerDecks {
		decks[owner] = d.clone()
	}
	z.PlayerDecks = decks
	cards := make([]CardInPlay, len(z.Cards))
	for i, c := range z.Cards {
		cards[i] = c.clone()
	}
	z.Cards = cards
	return z
}

// Deck returns the deck owned by owner, which is a player name or
// EncounterOwner.
func (z PlayZone) Deck(owner string) (DeckInPlay, bool) {
	if owner == EncounterOwner {
		return z.Encounter, true
	}
	d, ok := z.PlayerDecks[owner]
	return d, ok
}

// WithDeck returns z with the deck of d.Owner replaced.
func (z PlayZone) WithDeck(d DeckInPlay) PlayZone {
	if d.Owner == EncounterOwner {
		z.Encounter = d
		return z
	}
	decks := maps.Clone(z.PlayerDecks)
	if decks == nil {
		decks = make(map[string]DeckInPlay, 1)
	}
	decks[d.Owner] = d
	z.PlayerDecks = decks
	return z
}

// Card finds a card in play by instance id.
func (z PlayZone) Card(instanceID string) (CardInPlay, bool) {
	for _, c := range z.Cards {
		if c.InstanceID == instanceID {
			return c, true
		}
	}
	return CardInPlay{}, false
}

// WithCard appends c on top of the other cards. ok is false when the
// instance id is already on the board.
func (z PlayZone) WithCard(c CardInPlay) (PlayZone, bool) {
	if _, exists := z.Card(c.InstanceID); exists {
		return z, false
	}
	cards := make([]CardInPlay, 0, len(z.Cards)+1)
	cards = append(cards, z.Cards...)
	z.Cards = append(cards, c)
	return z, true
}

// ReplaceCard swaps the card with c.InstanceID for c.
func (z PlayZone) ReplaceCard(c CardInPlay) (PlayZone, bool) {
	cards := make([]CardInPlay, len(z.Cards))
	found := false
	for i, existing := range z.Cards {
		if existing.InstanceID == c.InstanceID {
			cards[i] = c
			found = true
			continue
		}
		cards[i] = existing
	}
	if !found {
		return z, false
	}
	z.Cards = cards
	return z, true
}

// RemoveCard takes the card with instanceID off the board.
func (z PlayZone) RemoveCard(instanceID string) (PlayZone, CardInPlay, bool) {
	cards := make([]CardInPlay, 0, len(z.Cards))
	var removed CardInPlay
	found := false
	for _, c := range z.Cards {
		if c.InstanceID == instanceID {
			removed = c
			found = true
			continue
		}
		cards = append(cards, c)
	}
	if !found {
		return z, CardInPlay{}, false
	}
	z.Cards = cards
	return z, removed, true
}

// CodesOwnedBy returns every code of owner's deck, wherever it currently is:
// piles, hand or board.
func (z PlayZone) CodesOwnedBy(owner string) []string {
	d, ok := z.Deck(owner)
	if !ok {
		return nil
	}
	out := d.Codes()
	for _, c := range z.Cards {
		if c.Owner == owner {
			out = append(out, c.Code())
		}
	}
	return out
}
