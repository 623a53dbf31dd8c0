package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawCard(t *testing.T) {
	s := activeGame(t)
	before := s.PlayZone.PlayerDecks["Alice"]

	next, err := DrawCard(s, "Alice", 2)
	require.NoError(t, err)

	after := next.PlayZone.PlayerDecks["Alice"]
	assert.Equal(t, before.DrawPile[:2], after.Hand)
	assert.Equal(t, before.DrawPile[2:], after.DrawPile)

	// Input untouched.
	assert.Len(t, s.PlayZone.PlayerDecks["Alice"].DrawPile, 5)
	assert.Empty(t, s.PlayZone.PlayerDecks["Alice"].Hand)
}

func TestDrawCardShortPile(t *testing.T) {
	s := activeGame(t)
	s, err := DrawCard(s, "Bob", 10)
	require.NoError(t, err)
	bob := s.PlayZone.PlayerDecks["Bob"]
	assert.Len(t, bob.Hand, 3)
	assert.Empty(t, bob.DrawPile)

	again, err := DrawCard(s, "Bob", 1)
	require.NoError(t, err)
	assert.Equal(t, bob, again.PlayZone.PlayerDecks["Bob"])
}

func TestDrawCardZero(t *testing.T) {
	s := activeGame(t)
	next, err := DrawCard(s, "Alice", 0)
	require.NoError(t, err)
	assert.Equal(t, s.PlayZone.PlayerDecks["Alice"], next.PlayZone.PlayerDecks["Alice"])
}

func TestDrawCardErrors(t *testing.T) {
	s := activeGame(t)

	_, err := DrawCard(s, "Mallory", 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = DrawCard(s, EncounterOwner, 1)
	assert.Equal(t, KindInvalidState, KindOf(err))

	_, err = DrawCard(newLobby(t), "Alice", 1)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestDrawThenPlay(t *testing.T) {
	s := activeGame(t)
	s, err := DrawCard(s, "Alice", 1)
	require.NoError(t, err)
	drawn := s.PlayZone.PlayerDecks["Alice"].Hand[0]

	s, err = PlayCardToTable(s, "Alice", Card{Code: drawn, Name: "Drawn"}, "card-1", At(10, 20))
	require.NoError(t, err)

	require.Len(t, s.PlayZone.Cards, 1)
	c := s.PlayZone.Cards[0]
	assert.Equal(t, drawn, c.Code())
	assert.Equal(t, 10, c.Position.X)
	assert.Equal(t, 20, c.Position.Y)
	assert.Equal(t, "Alice", c.Owner)
	assert.NotContains(t, s.PlayZone.PlayerDecks["Alice"].Hand, drawn)
}

func TestPlayCardTakesFirstOccurrence(t *testing.T) {
	s := activeGame(t)
	s, err := DrawCard(s, "Alice", 5)
	require.NoError(t, err)
	hand := s.PlayZone.PlayerDecks["Alice"].Hand

	s, err = PlayCardToTable(s, "Alice", Card{Code: "01001"}, "card-1", At(0, 0))
	require.NoError(t, err)

	expected := cloneCodes(hand)
	for i, code := range expected {
		if code == "01001" {
			expected = append(expected[:i], expected[i+1:]...)
			break
		}
	}
	assert.Equal(t, expected, s.PlayZone.PlayerDecks["Alice"].Hand)
}

func TestPlayCardNotInHand(t *testing.T) {
	s := activeGame(t)
	next, err := PlayCardToTable(s, "Alice", Card{Code: "01001"}, "card-1", At(0, 0))
	require.Error(t, err)
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Contains(t, err.Error(), "not in hand")
	assert.Empty(t, next.PlayZone.Cards)
}

func TestPlayCardDuplicateInstance(t *testing.T) {
	s := activeGame(t)
	s, err := DrawCard(s, "Alice", 2)
	require.NoError(t, err)
	hand := s.PlayZone.PlayerDecks["Alice"].Hand

	s, err = PlayCardToTable(s, "Alice", Card{Code: hand[0]}, "card-1", At(0, 0))
	require.NoError(t, err)
	next, err := PlayCardToTable(s, "Alice", Card{Code: hand[1]}, "card-1", At(0, 0))
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	assert.Len(t, next.PlayZone.PlayerDecks["Alice"].Hand, 1)
}

func TestRevealEncounterCard(t *testing.T) {
	s := activeGame(t)
	top, ok := TopEncounterCode(s)
	require.True(t, ok)

	s, err := RevealEncounterCard(s, Card{Code: top, Name: "Rhino"}, "enc-1", At(300, 0))
	require.NoError(t, err)
	require.Len(t, s.PlayZone.Cards, 1)
	assert.Equal(t, EncounterOwner, s.PlayZone.Cards[0].Owner)
	assert.Equal(t, "Rhino", s.PlayZone.Cards[0].Card.Name)
	assert.Len(t, s.PlayZone.Encounter.DrawPile, 4)
}

func TestRevealEncounterCardMismatchedMetadata(t *testing.T) {
	s := activeGame(t)
	top, _ := TopEncounterCode(s)

	s, err := RevealEncounterCard(s, Card{Code: "other", Name: "Other"}, "enc-1", At(0, 0))
	require.NoError(t, err)
	assert.Equal(t, UnknownCard(top), s.PlayZone.Cards[0].Card)
}

func TestRevealEncounterCardEmptyPile(t *testing.T) {
	s := activeGame(t)
	ids := &instanceIDs{}
	for range 5 {
		var err error
		s, err = RevealEncounterCard(s, Card{}, ids.next(), At(0, 0))
		require.NoError(t, err)
	}
	_, ok := TopEncounterCode(s)
	assert.False(t, ok)

	next, err := RevealEncounterCard(s, Card{}, ids.next(), At(0, 0))
	require.NoError(t, err)
	assert.Equal(t, s, next)
}

func playOne(t *testing.T, s Session, player, instanceID string) Session {
	t.Helper()
	s, err := DrawCard(s, player, 1)
	require.NoError(t, err)
	hand := s.PlayZone.PlayerDecks[player].Hand
	s, err = PlayCardToTable(s, player, Card{Code: hand[len(hand)-1]}, instanceID, At(5, 5))
	require.NoError(t, err)
	return s
}

func TestMoveCard(t *testing.T) {
	s := playOne(t, activeGame(t), "Alice", "card-1")
	s, err := AddCounter(s, "card-1", "damage", 2)
	require.NoError(t, err)

	s, err = MoveCard(s, "card-1", At(400, 120))
	require.NoError(t, err)

	c, ok := s.PlayZone.Card("card-1")
	require.True(t, ok)
	assert.Equal(t, At(400, 120), c.Position)
	assert.Equal(t, 2, c.Counters.Get("damage"))

	_, err = MoveCard(s, "missing", At(0, 0))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestToggleExhaustionTwiceRestoresRotation(t *testing.T) {
	for _, rotation := range []int{0, 90, 180, 270, 45} {
		s := playOne(t, activeGame(t), "Alice", "card-1")
		s, err := MoveCard(s, "card-1", At(0, 0).WithRotation(rotation))
		require.NoError(t, err)

		once, err := ToggleExhaustion(s, "card-1")
		require.NoError(t, err)
		c, _ := once.PlayZone.Card("card-1")
		assert.True(t, c.Exhausted)
		assert.Equal(t, rotation+ExhaustedRotation, c.Position.Rotation)

		twice, err := ToggleExhaustion(once, "card-1")
		require.NoError(t, err)
		c, _ = twice.PlayZone.Card("card-1")
		assert.False(t, c.Exhausted)
		assert.Equal(t, rotation, c.Position.Rotation)
	}
}

func TestFlipCardTwiceRestoresFace(t *testing.T) {
	s := playOne(t, activeGame(t), "Alice", "card-1")

	once, err := FlipCard(s, "card-1")
	require.NoError(t, err)
	c, _ := once.PlayZone.Card("card-1")
	assert.Equal(t, FaceDown, c.Position.Face)

	twice, err := FlipCard(once, "card-1")
	require.NoError(t, err)
	c, _ = twice.PlayZone.Card("card-1")
	assert.Equal(t, FaceUp, c.Position.Face)
}

func TestAddCounterFloor(t *testing.T) {
	s := playOne(t, activeGame(t), "Alice", "card-1")

	s, err := AddCounter(s, "card-1", "threat", 3)
	require.NoError(t, err)
	s, err = AddCounter(s, "card-1", "threat", -1000)
	require.NoError(t, err)

	c, _ := s.PlayZone.Card("card-1")
	assert.Equal(t, 0, c.Counters.Get("threat"))

	_, err = AddCounter(s, "missing", "threat", 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestShuffleDiscardIntoDrawIsPermutation(t *testing.T) {
	s := activeGame(t)
	s, err := DrawCard(s, "Alice", 3)
	require.NoError(t, err)
	for _, code := range cloneCodes(s.PlayZone.PlayerDecks["Alice"].Hand) {
		s, err = DiscardFromHand(s, "Alice", code)
		require.NoError(t, err)
	}
	before := s.PlayZone.PlayerDecks["Alice"]
	combined := append(cloneCodes(before.DrawPile), before.DiscardPile...)

	s, err = ShuffleDiscardIntoDraw(s, "Alice", seeded(42))
	require.NoError(t, err)

	after := s.PlayZone.PlayerDecks["Alice"]
	assert.Empty(t, after.DiscardPile)
	assert.Equal(t, sortedCodes(combined), sortedCodes(after.DrawPile))
}

func TestShuffleEncounterDiscard(t *testing.T) {
	s := activeGame(t)
	s, err := RevealEncounterCard(s, Card{}, "enc-1", At(0, 0))
	require.NoError(t, err)
	s, err = DiscardFromPlay(s, "enc-1")
	require.NoError(t, err)
	require.Len(t, s.PlayZone.Encounter.DiscardPile, 1)

	s, err = ShuffleDiscardIntoDraw(s, EncounterOwner, seeded(3))
	require.NoError(t, err)
	assert.Len(t, s.PlayZone.Encounter.DrawPile, 5)
	assert.Empty(t, s.PlayZone.Encounter.DiscardPile)
}

func TestDiscardFromHandNotInHand(t *testing.T) {
	_, err := DiscardFromHand(activeGame(t), "Alice", "01001")
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestDiscardFromPlay(t *testing.T) {
	s := playOne(t, activeGame(t), "Bob", "card-1")
	c, _ := s.PlayZone.Card("card-1")

	s, err := DiscardFromPlay(s, "card-1")
	require.NoError(t, err)
	assert.Empty(t, s.PlayZone.Cards)
	assert.Equal(t, []string{c.Code()}, s.PlayZone.PlayerDecks["Bob"].DiscardPile)
}

func TestReturnToDeck(t *testing.T) {
	s := playOne(t, activeGame(t), "Alice", "card-1")
	s = playOne(t, s, "Alice", "card-2")
	first, _ := s.PlayZone.Card("card-1")
	second, _ := s.PlayZone.Card("card-2")

	s, err := ReturnToDeck(s, "card-1", true)
	require.NoError(t, err)
	s, err = ReturnToDeck(s, "card-2", false)
	require.NoError(t, err)

	draw := s.PlayZone.PlayerDecks["Alice"].DrawPile
	assert.Len(t, draw, 5)
	assert.Equal(t, first.Code(), draw[0])
	assert.Equal(t, second.Code(), draw[len(draw)-1])
	assert.Empty(t, s.PlayZone.Cards)
}

func TestReturnToHand(t *testing.T) {
	s := playOne(t, activeGame(t), "Alice", "card-1")
	c, _ := s.PlayZone.Card("card-1")

	s, err := ReturnToHand(s, "card-1")
	require.NoError(t, err)
	assert.Equal(t, []string{c.Code()}, s.PlayZone.PlayerDecks["Alice"].Hand)
}

func TestReturnEncounterCardToHand(t *testing.T) {
	s, err := RevealEncounterCard(activeGame(t), Card{}, "enc-1", At(0, 0))
	require.NoError(t, err)

	next, err := ReturnToHand(s, "enc-1")
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Len(t, next.PlayZone.Cards, 1)
}

func TestMoveDeck(t *testing.T) {
	s, err := MoveDeck(activeGame(t), "Alice", PileDiscard, At(900, 900))
	require.NoError(t, err)
	assert.Equal(t, At(900, 900), s.PlayZone.PlayerDecks["Alice"].DiscardPosition)
	assert.Equal(t, At(0, 300), s.PlayZone.PlayerDecks["Alice"].DrawPosition)

	s, err = MoveDeck(s, EncounterOwner, PileDraw, At(-50, 10))
	require.NoError(t, err)
	assert.Equal(t, At(-50, 10), s.PlayZone.Encounter.DrawPosition)

	_, err = MoveDeck(s, "Alice", Pile("hand"), At(0, 0))
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	_, err = MoveDeck(s, "Mallory", PileDraw, At(0, 0))
	assert.Equal(t, KindNotFound, KindOf(err))
}

// Every deck keeps its original composition across an arbitrary sequence of
// board operations.
func TestCardConservation(t *testing.T) {
	s := activeGame(t)
	rnd := seeded(99)
	ids := &instanceIDs{}
	original := map[string][]string{
		"Alice":        sortedCodes(heroDeck.Expand()),
		"Bob":          sortedCodes(allyDeck.Expand()),
		EncounterOwner: sortedCodes(encounterDeck.Expand()),
	}

	check := func() {
		for owner, codes := range original {
			assert.Equal(t, codes, sortedCodes(s.PlayZone.CodesOwnedBy(owner)), owner)
		}
	}

	for step := range 200 {
		player := []string{"Alice", "Bob"}[rnd.IntN(2)]
		var next Session
		var err error
		switch rnd.IntN(9) {
		case 0:
			next, err = DrawCard(s, player, rnd.IntN(3))
		case 1:
			hand := s.PlayZone.PlayerDecks[player].Hand
			if len(hand) == 0 {
				continue
			}
			next, err = PlayCardToTable(s, player, Card{Code: hand[rnd.IntN(len(hand))]}, ids.next(), At(step, step))
		case 2:
			next, err = RevealEncounterCard(s, Card{}, ids.next(), At(0, 0))
		case 3:
			hand := s.PlayZone.PlayerDecks[player].Hand
			if len(hand) == 0 {
				continue
			}
			next, err = DiscardFromHand(s, player, hand[0])
		case 4:
			next, err = ShuffleDiscardIntoDraw(s, []string{"Alice", "Bob", EncounterOwner}[rnd.IntN(3)], rnd)
		case 5, 6, 7, 8:
			if len(s.PlayZone.Cards) == 0 {
				continue
			}
			id := s.PlayZone.Cards[rnd.IntN(len(s.PlayZone.Cards))].InstanceID
			switch rnd.IntN(4) {
			case 0:
				next, err = DiscardFromPlay(s, id)
			case 1:
				next, err = ReturnToDeck(s, id, rnd.IntN(2) == 0)
			case 2:
				next, err = ReturnToHand(s, id)
				if KindOf(err) == KindInvalidState {
					continue
				}
			default:
				next, err = ToggleExhaustion(s, id)
			}
		}
		require.NoError(t, err, "step %d", step)
		s = next
		check()
	}
}

func TestInstanceIDsStayUnique(t *testing.T) {
	s := activeGame(t)
	s = playOne(t, s, "Alice", "card-1")
	s = playOne(t, s, "Alice", "card-2")
	s = playOne(t, s, "Bob", "card-3")

	seen := map[string]bool{}
	for _, c := range s.PlayZone.Cards {
		assert.False(t, seen[c.InstanceID])
		seen[c.InstanceID] = true
	}
	assert.Len(t, seen, 3)
}
