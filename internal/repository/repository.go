// Package repository persists session snapshots. Every store keeps one
// document per session id with last-write-wins semantics.
package repository

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("session not found")

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

const migrationTable = "schema_migrations"

// DefaultRecentLimit caps ListRecent when callers pass a non-positive limit.
const DefaultRecentLimit = 20

func encodeSession(s game.Session) ([]byte, error) {
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return doc, nil
}

func decodeSession(doc []byte) (game.Session, error) {
	var s game.Session
	if err := json.Unmarshal(doc, &s); err != nil {
		return game.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

// sortRecent orders sessions newest first, breaking ties by id.
func sortRecent(sessions []game.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return limit
}

// extractUpMigration returns the SQL in the -- +migrate Up section.
func extractUpMigration(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
