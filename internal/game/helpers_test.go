package game

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

var (
	heroDeck = DeckList{ID: "hero-1", Name: "Spider-Man", Cards: []DeckCard{
		{Code: "01001", Quantity: 3},
		{Code: "01002", Quantity: 2},
	}}
	allyDeck = DeckList{ID: "hero-2", Name: "Captain Marvel", Cards: []DeckCard{
		{Code: "01010", Quantity: 2},
		{Code: "01011", Quantity: 1},
	}}
	encounterDeck = DeckList{ID: "rhino", Name: "Rhino", Cards: []DeckCard{
		{Code: "01094", Quantity: 2},
		{Code: "01095", Quantity: 3},
	}}
)

func newLobby(t *testing.T) Session {
	t.Helper()
	s, err := CreateLobby("session-1", "Game", "Alice", testNow)
	require.NoError(t, err)
	return s
}

// readyLobby returns a lobby with Alice (host) and Bob, both ready, and an
// encounter deck set.
func readyLobby(t *testing.T) Session {
	t.Helper()
	s := newLobby(t)
	var err error
	s, err = JoinLobby(s, "Bob")
	require.NoError(t, err)
	s, err = ChooseDeck(s, "Alice", heroDeck)
	require.NoError(t, err)
	s, err = ChooseDeck(s, "Bob", allyDeck)
	require.NoError(t, err)
	s, err = SetEncounterDeck(s, "Alice", encounterDeck)
	require.NoError(t, err)
	s, err = ToggleReady(s, "Alice")
	require.NoError(t, err)
	s, err = ToggleReady(s, "Bob")
	require.NoError(t, err)
	return s
}

func activeGame(t *testing.T) Session {
	t.Helper()
	s, err := StartGame(readyLobby(t), "Alice",
		map[string]DeckList{"Alice": heroDeck, "Bob": allyDeck}, encounterDeck, seeded(1))
	require.NoError(t, err)
	return s
}

func sortedCodes(codes []string) []string {
	out := cloneCodes(codes)
	sort.Strings(out)
	return out
}

// instanceIDs hands out deterministic card instance ids.
type instanceIDs struct{ n int }

func (g *instanceIDs) next() string {
	g.n++
	return fmt.Sprintf("card-%d", g.n)
}
