// Package catalog resolves deck lists and card metadata by id. Sessions only
// hold card codes; everything else comes from here.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// ErrNotFound is returned when a deck or card id is unknown to a source.
var ErrNotFound = errors.New("not found in catalog")

// Catalog resolves decks and cards.
type Catalog interface {
	ResolveDeck(ctx context.Context, id string) (game.DeckList, error)
	LookupCard(ctx context.Context, code string) (game.Card, error)
}

// DeckSummary is the listing view of a deck.
type DeckSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// Lister is implemented by sources that can enumerate their decks. Remote
// sources that only answer lookups by id do not implement it.
type Lister interface {
	ListDecks(ctx context.Context) ([]DeckSummary, error)
}

// ListDecks enumerates every deck c can list, sorted by id. A catalog that
// cannot list yields an empty result.
func ListDecks(ctx context.Context, c Catalog) ([]DeckSummary, error) {
	lister, ok := c.(Lister)
	if !ok {
		return []DeckSummary{}, nil
	}
	return lister.ListDecks(ctx)
}

func sortSummaries(decks []DeckSummary) {
	slices.SortFunc(decks, func(a, b DeckSummary) int { return strings.Compare(a.ID, b.ID) })
}

// Chain asks each catalog in order and returns the first hit. A source
// failing with anything other than ErrNotFound stops the lookup.
type Chain []Catalog

// ResolveDeck implements Catalog.
func (c Chain) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	for _, source := range c {
		deck, err := source.ResolveDeck(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return deck, err
	}
	return game.DeckList{}, fmt.Errorf("deck %q: %w", id, ErrNotFound)
}

// ListDecks implements Lister. When two sources know the same id the first
// one wins, matching ResolveDeck.
func (c Chain) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	seen := make(map[string]bool)
	out := []DeckSummary{}
	for _, source := range c {
		decks, err := ListDecks(ctx, source)
		if err != nil {
			return nil, err
		}
		for _, d := range decks {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	sortSummaries(out)
	return out, nil
}

// LookupCard implements Catalog.
func (c Chain) LookupCard(ctx context.Context, code string) (game.Card, error) {
	for _, source := range c {
		card, err := source.LookupCard(ctx, code)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return card, err
	}
	return game.Card{}, fmt.Errorf("card %q: %w", code, ErrNotFound)
}

// CardOrUnknown looks up code and falls back to a placeholder when the
// catalog has no metadata for it.
func CardOrUnknown(ctx context.Context, c Catalog, code string) (game.Card, error) {
	card, err := c.LookupCard(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return game.UnknownCard(code), nil
	}
	if err != nil {
		return game.Card{}, err
	}
	return card, nil
}

func validateDeck(deck game.DeckList) error {
	if deck.ID == "" {
		return errors.New("deck id is required")
	}
	for _, c := range deck.Cards {
		if c.Code == "" {
			return fmt.Errorf("deck %s: card code is required", deck.ID)
		}
		if c.Quantity <= 0 {
			return fmt.Errorf("deck %s: card %s has quantity %d", deck.ID, c.Code, c.Quantity)
		}
	}
	return nil
}
