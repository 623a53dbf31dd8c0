package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a single SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path, creating parent directories, and
// applies pending migrations.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(dbPath)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLiteMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the snapshot for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (game.Session, error) {
	var doc string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Session{}, ErrNotFound
	}
	if err != nil {
		return game.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession([]byte(doc))
}

// Save upserts the snapshot.
func (s *SQLiteStore) Save(ctx context.Context, session game.Session) (game.Session, error) {
	doc, err := encodeSession(session)
	if err != nil {
		return game.Session{}, err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, name, phase, version, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    phase = excluded.phase,
    version = excluded.version,
    document = excluded.document,
    updated_at = excluded.updated_at`,
		session.ID,
		session.Name,
		string(session.Phase),
		session.Version,
		string(doc),
		session.CreatedAt.UTC().UnixMilli(),
		session.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return game.Session{}, fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return session, nil
}

// Delete removes the snapshot and reports whether one existed.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return n > 0, nil
}

// ListActive returns lobby sessions, newest first.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]game.Session, error) {
	return s.query(ctx, `SELECT document FROM sessions WHERE phase = ? ORDER BY updated_at DESC, id`, string(game.PhaseLobby))
}

// ListRecent returns up to limit sessions, newest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]game.Session, error) {
	return s.query(ctx, `SELECT document FROM sessions ORDER BY updated_at DESC, id LIMIT ?`, normalizeLimit(limit))
}

// ListStale returns sessions in phase last updated before cutoff.
func (s *SQLiteStore) ListStale(ctx context.Context, phase game.Phase, cutoff time.Time) ([]game.Session, error) {
	return s.query(ctx, `SELECT document FROM sessions WHERE phase = ? AND updated_at < ? ORDER BY updated_at DESC, id`,
		string(phase), cutoff.UTC().UnixMilli())
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]game.Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []game.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session, err := decodeSession([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// applySQLiteMigrations executes embedded migrations at most once per file.
func applySQLiteMigrations(sqlDB *sql.DB) error {
	const dir = "migrations/sqlite"
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}

	createSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`, migrationTable)
	if _, err := sqlDB.Exec(createSQL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var applied int
		if err := sqlDB.QueryRow(
			fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE name = ?", migrationTable), file,
		).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(path.Join(dir, file))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		upSQL := extractUpMigration(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := sqlDB.BeginTx(context.Background(), nil)
		if err != nil {
			return fmt.Errorf("begin migration transaction %s: %w", file, err)
		}
		if _, err := tx.Exec(upSQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			fmt.Sprintf("INSERT OR IGNORE INTO %s (name, applied_at) VALUES (?, ?)", migrationTable),
			file,
			time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}
