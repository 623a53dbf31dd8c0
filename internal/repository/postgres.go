package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/magefree/tabletop-server-go/internal/game"
)

// PostgresStore persists snapshots as JSONB documents.
type PostgresStore struct {
	db *DB
}

// NewPostgresStore creates a store on an open DB.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load returns the snapshot for id.
func (p *PostgresStore) Load(ctx context.Context, id string) (game.Session, error) {
	var doc []byte
	err := p.db.Pool.QueryRow(ctx, `SELECT document FROM sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Session{}, ErrNotFound
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(doc)
}

// Save upserts the snapshot.
func (p *PostgresStore) Save(ctx context.Context, s game.Session) (game.Session, error) {
	doc, err := encodeSession(s)
	if err != nil {
		return game.Session{}, err
	}
	_, err = p.db.Pool.Exec(ctx, `
		INSERT INTO sessions (id, name, phase, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phase = EXCLUDED.phase,
			version = EXCLUDED.version,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`,
		s.ID,
		s.Name,
		string(s.Phase),
		s.Version,
		doc,
		s.CreatedAt.UTC(),
		s.UpdatedAt.UTC(),
	)
	if err != nil {
		return game.Session{}, fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return s, nil
}

// Delete removes the snapshot and reports whether one existed.
func (p *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := p.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActive returns lobby sessions, newest first.
func (p *PostgresStore) ListActive(ctx context.Context) ([]game.Session, error) {
	return p.query(ctx, `SELECT document FROM sessions WHERE phase = $1 ORDER BY updated_at DESC, id`, string(game.PhaseLobby))
}

// ListRecent returns up to limit sessions, newest first.
func (p *PostgresStore) ListRecent(ctx context.Context, limit int) ([]game.Session, error) {
	return p.query(ctx, `SELECT document FROM sessions ORDER BY updated_at DESC, id LIMIT $1`, normalizeLimit(limit))
}

// ListStale returns sessions in phase last updated before cutoff.
func (p *PostgresStore) ListStale(ctx context.Context, phase game.Phase, cutoff time.Time) ([]game.Session, error) {
	return p.query(ctx, `SELECT document FROM sessions WHERE phase = $1 AND updated_at < $2 ORDER BY updated_at DESC, id`,
		string(phase), cutoff.UTC())
}

// Ping checks connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *PostgresStore) query(ctx context.Context, query string, args ...any) ([]game.Session, error) {
	rows, err := p.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]game.Session, 0, len(docs))
	for _, doc := range docs {
		s, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
