package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/tabletop-server-go/internal/game"
)

// Postgres reads decks and cards imported by scripts/import_decks.go.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a catalog on an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ResolveDeck implements Catalog.
func (p *Postgres) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	deck := game.DeckList{ID: id}
	err := p.pool.QueryRow(ctx, `SELECT name FROM decks WHERE id = $1`, id).Scan(&deck.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.DeckList{}, fmt.Errorf("deck %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return game.DeckList{}, fmt.Errorf("load deck %s: %w", id, err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT code, quantity
		FROM deck_cards
		WHERE deck_id = $1
		ORDER BY position, code
	`, id)
	if err != nil {
		return game.DeckList{}, fmt.Errorf("load deck %s cards: %w", id, err)
	}
	deck.Cards, err = pgx.CollectRows(rows, pgx.RowToStructByPos[game.DeckCard])
	if err != nil {
		return game.DeckList{}, fmt.Errorf("load deck %s cards: %w", id, err)
	}
	return deck, nil
}

// LookupCard implements Catalog.
func (p *Postgres) LookupCard(ctx context.Context, code string) (game.Card, error) {
	card := game.Card{Code: code}
	err := p.pool.QueryRow(ctx, `SELECT name, text FROM cards WHERE code = $1`, code).Scan(&card.Name, &card.Text)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Card{}, fmt.Errorf("card %q: %w", code, ErrNotFound)
	}
	if err != nil {
		return game.Card{}, fmt.Errorf("load card %s: %w", code, err)
	}
	return card, nil
}

// ListDecks implements Lister.
func (p *Postgres) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT d.id, d.name, COALESCE(SUM(c.quantity), 0)::INTEGER
		FROM decks d
		LEFT JOIN deck_cards c ON c.deck_id = d.id
		GROUP BY d.id, d.name
		ORDER BY d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	decks, err := pgx.CollectRows(rows, pgx.RowToStructByPos[DeckSummary])
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	return decks, nil
}
