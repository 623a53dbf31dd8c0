package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type store interface {
	Load(ctx context.Context, id string) (game.Session, error)
	Save(ctx context.Context, s game.Session) (game.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListActive(ctx context.Context) ([]game.Session, error)
	ListRecent(ctx context.Context, limit int) ([]game.Session, error)
	ListStale(ctx context.Context, phase game.Phase, cutoff time.Time) ([]game.Session, error)
	Ping(ctx context.Context) error
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func lobbyAt(t *testing.T, id string, updated time.Time) game.Session {
	t.Helper()
	s, err := game.CreateLobby(id, "Game "+id, "Alice", base)
	require.NoError(t, err)
	s.UpdatedAt = updated
	return s
}

func activeAt(t *testing.T, id string, updated time.Time) game.Session {
	t.Helper()
	s := lobbyAt(t, id, updated)
	deck := game.DeckList{ID: "d1", Cards: []game.DeckCard{{Code: "01001", Quantity: 2}}}
	s, err := game.ChooseDeck(s, "Alice", deck)
	require.NoError(t, err)
	s, err = game.SetEncounterDeck(s, "Alice", deck)
	require.NoError(t, err)
	s, err = game.ToggleReady(s, "Alice")
	require.NoError(t, err)
	s, err = game.StartGame(s, "Alice", map[string]game.DeckList{"Alice": deck}, deck, nil)
	require.NoError(t, err)
	s, err = game.DrawCard(s, "Alice", 1)
	require.NoError(t, err)
	s.UpdatedAt = updated
	return s
}

func ids(sessions []game.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}

func runStoreContract(t *testing.T, s store) {
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		active := activeAt(t, "a1", base.Add(time.Minute))
		_, err := s.Save(ctx, active)
		require.NoError(t, err)

		loaded, err := s.Load(ctx, "a1")
		require.NoError(t, err)
		want, err := active.ComputeChecksum()
		require.NoError(t, err)
		ok, err := loaded.VerifyChecksum(want)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, active.UpdatedAt.Equal(loaded.UpdatedAt))
		require.NotNil(t, loaded.PlayZone)
		assert.Len(t, loaded.PlayZone.PlayerDecks["Alice"].Hand, 1)
	})

	t.Run("save overwrites", func(t *testing.T) {
		first := lobbyAt(t, "l1", base.Add(2*time.Minute))
		_, err := s.Save(ctx, first)
		require.NoError(t, err)

		second, err := game.JoinLobby(first, "Bob")
		require.NoError(t, err)
		second = second.Touch(base.Add(3 * time.Minute))
		_, err = s.Save(ctx, second)
		require.NoError(t, err)

		loaded, err := s.Load(ctx, "l1")
		require.NoError(t, err)
		assert.Len(t, loaded.Players, 2)
		assert.Equal(t, int64(2), loaded.Version)
	})

	t.Run("list", func(t *testing.T) {
		_, err := s.Save(ctx, lobbyAt(t, "l2", base.Add(4*time.Minute)))
		require.NoError(t, err)

		active, err := s.ListActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"l2", "l1"}, ids(active))

		recent, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"l2", "l1"}, ids(recent))

		all, err := s.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"l2", "l1", "a1"}, ids(all))

		stale, err := s.ListStale(ctx, game.PhaseLobby, base.Add(4*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{"l1"}, ids(stale))

		staleActive, err := s.ListStale(ctx, game.PhaseActive, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"a1"}, ids(staleActive))
	})

	t.Run("delete", func(t *testing.T) {
		deleted, err := s.Delete(ctx, "l2")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, "l2")
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.Load(ctx, "l2")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	s := activeAt(t, "a1", base)
	_, err := m.Save(ctx, s)
	require.NoError(t, err)

	loaded, err := m.Load(ctx, "a1")
	require.NoError(t, err)
	loaded.Players[0].Name = "Mallory"
	loaded.PlayZone.Cards = append(loaded.PlayZone.Cards, game.CardInPlay{InstanceID: "x"})

	again, err := m.Load(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.Players[0].Name)
	assert.Empty(t, again.PlayZone.Cards)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Load(ctx, "a1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "tabletop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreContract(t, s)
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabletop.db")
	first, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = first.Save(context.Background(), lobbyAt(t, "l1", base))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	loaded, err := second.Load(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", loaded.Host)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TABLETOP_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TABLETOP_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.PostgresConfig{URL: url, MaxConns: 4}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Pool.Exec(ctx, `TRUNCATE sessions`)
	require.NoError(t, err)

	runStoreContract(t, NewPostgresStore(db))
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INT);\n", extractUpMigration(content))
	assert.Equal(t, "SELECT 1;", extractUpMigration("SELECT 1;"))
}
