package game

import "slices"

// Board operations mutate the play zone of an active session. They fail with
// NotFound when a referenced deck or card instance does not exist and accept
// every other input as is: there is no notion of an illegal move.

func activeZone(op string, s Session) (PlayZone, error) {
	if s.Phase != PhaseActive || s.PlayZone == nil {
		return PlayZone{}, InvalidState(op, "session %s is %s, not active", s.ID, s.Phase)
	}
	return s.PlayZone.clone(), nil
}

func deckOf(op string, z PlayZone, owner string) (DeckInPlay, error) {
	d, ok := z.Deck(owner)
	if !ok {
		return DeckInPlay{}, NotFound(op, "no deck in play for %q", owner)
	}
	return d, nil
}

func cardOf(op string, z PlayZone, instanceID string) (CardInPlay, error) {
	c, ok := z.Card(instanceID)
	if !ok {
		return CardInPlay{}, NotFound(op, "card %q not in play", instanceID)
	}
	return c, nil
}

// DrawCard moves up to count codes from the top of the player's draw pile to
// the back of their hand. A short pile draws what it has; zero is a no-op.
func DrawCard(s Session, player string, count int) (Session, error) {
	const op = "DrawCard"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, player)
	if err != nil {
		return s, err
	}
	if player == EncounterOwner {
		return s, InvalidState(op, "the encounter deck has no hand")
	}
	d, _ = d.Draw(count)
	return s.Clone().withZone(z.WithDeck(d)), nil
}

// ShuffleDiscardIntoDraw returns owner's discard pile to the draw pile and
// shuffles it. owner may be EncounterOwner.
func ShuffleDiscardIntoDraw(s Session, owner string, rnd Randomizer) (Session, error) {
	const op = "ShuffleDiscardIntoDraw"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, owner)
	if err != nil {
		return s, err
	}
	return s.Clone().withZone(z.WithDeck(d.ShuffleDiscardIntoDraw(rnd))), nil
}

// PlayCardToTable removes the first occurrence of card.Code from the player's
// hand and places it on the board as a new card in play.
func PlayCardToTable(s Session, player string, card Card, instanceID string, pos Position) (Session, error) {
	const op = "PlayCardToTable"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, player)
	if err != nil {
		return s, err
	}
	d, ok := d.TakeFromHand(card.Code)
	if !ok {
		return s, InvalidState(op, "card %q not in hand", card.Code)
	}
	z, ok = z.WithDeck(d).WithCard(NewCardInPlay(instanceID, card, player, pos))
	if !ok {
		return s, InvalidArgument(op, "instance id %q already in play", instanceID)
	}
	return s.Clone().withZone(z), nil
}

// CheckPlayable reports whether player could play code from hand right now.
func CheckPlayable(s Session, player, code string) error {
	const op = "PlayCardToTable"
	z, err := activeZone(op, s)
	if err != nil {
		return err
	}
	d, err := deckOf(op, z, player)
	if err != nil {
		return err
	}
	if !slices.Contains(d.Hand, code) {
		return InvalidState(op, "card %q not in hand", code)
	}
	return nil
}

// RevealEncounterCard moves the top encounter card onto the board. An empty
// encounter pile leaves the session unchanged. card must carry the code on
// top of the encounter draw pile.
func RevealEncounterCard(s Session, card Card, instanceID string, pos Position) (Session, error) {
	const op = "RevealEncounterCard"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, code, ok := z.Encounter.RevealTop()
	if !ok {
		return s, nil
	}
	if card.Code != code {
		card = UnknownCard(code)
	}
	z, ok = z.WithDeck(d).WithCard(NewCardInPlay(instanceID, card, EncounterOwner, pos))
	if !ok {
		return s, InvalidArgument(op, "instance id %q already in play", instanceID)
	}
	return s.Clone().withZone(z), nil
}

// TopEncounterCode peeks at the code a reveal would place, if any.
func TopEncounterCode(s Session) (string, bool) {
	if s.PlayZone == nil || len(s.PlayZone.Encounter.DrawPile) == 0 {
		return "", false
	}
	return s.PlayZone.Encounter.DrawPile[0], true
}

func updateCard(op string, s Session, instanceID string, update func(CardInPlay) CardInPlay) (Session, error) {
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	c, err := cardOf(op, z, instanceID)
	if err != nil {
		return s, err
	}
	z, _ = z.ReplaceCard(update(c))
	return s.Clone().withZone(z), nil
}

// MoveCard repositions a card in play.
func MoveCard(s Session, instanceID string, pos Position) (Session, error) {
	return updateCard("MoveCard", s, instanceID, func(c CardInPlay) CardInPlay {
		return c.WithPosition(pos)
	})
}

// ToggleExhaustion switches a card between ready and exhausted.
func ToggleExhaustion(s Session, instanceID string) (Session, error) {
	return updateCard("ToggleExhaustion", s, instanceID, CardInPlay.WithExhaustionToggled)
}

// FlipCard turns a card face up or face down.
func FlipCard(s Session, instanceID string) (Session, error) {
	return updateCard("FlipCard", s, instanceID, CardInPlay.WithFaceToggled)
}

// AddCounter adds amount to a card's counter, never going below zero.
func AddCounter(s Session, instanceID, counterType string, amount int) (Session, error) {
	return updateCard("AddCounter", s, instanceID, func(c CardInPlay) CardInPlay {
		return c.WithCounter(counterType, amount)
	})
}

// DiscardFromHand moves the first occurrence of code from the player's hand
// to their discard pile.
func DiscardFromHand(s Session, player, code string) (Session, error) {
	const op = "DiscardFromHand"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, player)
	if err != nil {
		return s, err
	}
	d, ok := d.DiscardFromHand(code)
	if !ok {
		return s, InvalidState(op, "card %q not in hand", code)
	}
	return s.Clone().withZone(z.WithDeck(d)), nil
}

func removeToDeck(op string, s Session, instanceID string, place func(DeckInPlay, string) (DeckInPlay, error)) (Session, error) {
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	c, err := cardOf(op, z, instanceID)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, c.Owner)
	if err != nil {
		return s, err
	}
	d, err = place(d, c.Code())
	if err != nil {
		return s, err
	}
	z, _, _ = z.RemoveCard(instanceID)
	return s.Clone().withZone(z.WithDeck(d)), nil
}

// DiscardFromPlay takes a card off the board into its owner's discard pile.
func DiscardFromPlay(s Session, instanceID string) (Session, error) {
	return removeToDeck("DiscardFromPlay", s, instanceID, func(d DeckInPlay, code string) (DeckInPlay, error) {
		return d.AddToDiscard(code), nil
	})
}

// ReturnToDeck takes a card off the board onto the top or bottom of its
// owner's draw pile.
func ReturnToDeck(s Session, instanceID string, top bool) (Session, error) {
	return removeToDeck("ReturnToDeck", s, instanceID, func(d DeckInPlay, code string) (DeckInPlay, error) {
		return d.AddToDraw(code, top), nil
	})
}

// ReturnToHand takes a card off the board back into its owner's hand.
func ReturnToHand(s Session, instanceID string) (Session, error) {
	const op = "ReturnToHand"
	return removeToDeck(op, s, instanceID, func(d DeckInPlay, code string) (DeckInPlay, error) {
		if d.Owner == EncounterOwner {
			return d, InvalidState(op, "the encounter deck has no hand")
		}
		return d.AddToHand(code), nil
	})
}

// MoveDeck repositions owner's draw or discard pile anchor.
func MoveDeck(s Session, owner string, pile Pile, pos Position) (Session, error) {
	const op = "MoveDeck"
	z, err := activeZone(op, s)
	if err != nil {
		return s, err
	}
	d, err := deckOf(op, z, owner)
	if err != nil {
		return s, err
	}
	d, ok := d.WithPilePosition(pile, pos)
	if !ok {
		return s, InvalidArgument(op, "unknown pile %q", pile)
	}
	return s.Clone().withZone(z.WithDeck(d)), nil
}
