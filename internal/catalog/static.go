package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// Fixture is the on-disk format of a static catalog.
type Fixture struct {
	Cards []game.Card     `json:"cards"`
	Decks []game.DeckList `json:"decks"`
}

// Static serves a fixed set of decks and cards. It is safe for concurrent
// use because it is never modified after construction.
type Static struct {
	decks map[string]game.DeckList
	cards map[string]game.Card
}

// NewStatic indexes the given decks and cards.
func NewStatic(decks []game.DeckList, cards []game.Card) (*Static, error) {
	s := &Static{
		decks: make(map[string]game.DeckList, len(decks)),
		cards: make(map[string]game.Card, len(cards)),
	}
	for _, d := range decks {
		if err := validateDeck(d); err != nil {
			return nil, err
		}
		if _, dup := s.decks[d.ID]; dup {
			return nil, fmt.Errorf("duplicate deck %s", d.ID)
		}
		d.Cards = slices.Clone(d.Cards)
		s.decks[d.ID] = d
	}
	for _, c := range cards {
		if c.Code == "" {
			return nil, fmt.Errorf("card code is required")
		}
		if c.Name == "" {
			c.Name = c.Code
		}
		s.cards[c.Code] = c
	}
	return s, nil
}

// LoadStaticFile reads a JSON fixture.
func LoadStaticFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog fixture: %w", err)
	}
	return NewStatic(f.Decks, f.Cards)
}

// ResolveDeck implements Catalog.
func (s *Static) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	if err := ctx.Err(); err != nil {
		return game.DeckList{}, err
	}
	d, ok := s.decks[id]
	if !ok {
		return game.DeckList{}, fmt.Errorf("deck %q: %w", id, ErrNotFound)
	}
	d.Cards = slices.Clone(d.Cards)
	return d, nil
}

// LookupCard implements Catalog.
func (s *Static) LookupCard(ctx context.Context, code string) (game.Card, error) {
	if err := ctx.Err(); err != nil {
		return game.Card{}, err
	}
	c, ok := s.cards[code]
	if !ok {
		return game.Card{}, fmt.Errorf("card %q: %w", code, ErrNotFound)
	}
	return c, nil
}

// Decks returns every deck id, sorted.
func (s *Static) Decks() []string {
	ids := make([]string, 0, len(s.decks))
	for id := range s.decks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ListDecks implements Lister.
func (s *Static) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]DeckSummary, 0, len(s.decks))
	for _, d := range s.decks {
		out = append(out, DeckSummary{ID: d.ID, Name: d.Name, Total: d.Total()})
	}
	sortSummaries(out)
	return out, nil
}
