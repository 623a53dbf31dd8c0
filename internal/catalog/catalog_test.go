package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/magefree/tabletop-server-go/internal/config"
	"github.com/magefree/tabletop-server-go/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	spiderDeck = game.DeckList{ID: "spider", Name: "Spider-Man", Cards: []game.DeckCard{
		{Code: "01001", Quantity: 1},
		{Code: "01002", Quantity: 2},
	}}
	spiderCard = game.Card{Code: "01001", Name: "Spider-Man", Text: "Spider-Sense"}
)

func newStatic(t *testing.T) *Static {
	t.Helper()
	s, err := NewStatic([]game.DeckList{spiderDeck}, []game.Card{spiderCard, {Code: "01002"}})
	require.NoError(t, err)
	return s
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := newStatic(t)

	deck, err := s.ResolveDeck(ctx, "spider")
	require.NoError(t, err)
	assert.Equal(t, spiderDeck, deck)
	assert.Equal(t, 3, deck.Total())

	_, err = s.ResolveDeck(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	card, err := s.LookupCard(ctx, "01002")
	require.NoError(t, err)
	assert.Equal(t, "01002", card.Name, "name defaults to code")

	assert.Equal(t, []string{"spider"}, s.Decks())
}

func TestStaticReturnsCopies(t *testing.T) {
	s := newStatic(t)
	deck, err := s.ResolveDeck(context.Background(), "spider")
	require.NoError(t, err)
	deck.Cards[0].Quantity = 99

	again, err := s.ResolveDeck(context.Background(), "spider")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Cards[0].Quantity)
}

func TestNewStaticValidation(t *testing.T) {
	_, err := NewStatic([]game.DeckList{{ID: ""}}, nil)
	assert.Error(t, err)
	_, err = NewStatic([]game.DeckList{{ID: "d", Cards: []game.DeckCard{{Code: "x", Quantity: 0}}}}, nil)
	assert.Error(t, err)
	_, err = NewStatic([]game.DeckList{spiderDeck, spiderDeck}, nil)
	assert.Error(t, err)
	_, err = NewStatic(nil, []game.Card{{}})
	assert.Error(t, err)
}

func TestLoadStaticFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decks.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"cards": [{"code": "01094", "name": "Rhino"}],
		"decks": [{"id": "rhino", "name": "Rhino", "cards": [{"code": "01094", "quantity": 1}]}]
	}`), 0o600))

	s, err := LoadStaticFile(path)
	require.NoError(t, err)
	deck, err := s.ResolveDeck(context.Background(), "rhino")
	require.NoError(t, err)
	assert.Equal(t, "Rhino", deck.Name)

	_, err = LoadStaticFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type failing struct{ err error }

func (f failing) ResolveDeck(context.Context, string) (game.DeckList, error) {
	return game.DeckList{}, f.err
}

func (f failing) LookupCard(context.Context, string) (game.Card, error) {
	return game.Card{}, f.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	chain := Chain{failing{err: ErrNotFound}, newStatic(t)}

	deck, err := chain.ResolveDeck(ctx, "spider")
	require.NoError(t, err)
	assert.Equal(t, "spider", deck.ID)

	_, err = chain.ResolveDeck(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("upstream down")
	_, err = Chain{failing{err: boom}, newStatic(t)}.LookupCard(ctx, "01001")
	assert.ErrorIs(t, err, boom)
}

func TestCardOrUnknown(t *testing.T) {
	ctx := context.Background()
	card, err := CardOrUnknown(ctx, newStatic(t), "99999")
	require.NoError(t, err)
	assert.Equal(t, game.UnknownCard("99999"), card)

	card, err = CardOrUnknown(ctx, newStatic(t), "01001")
	require.NoError(t, err)
	assert.Equal(t, spiderCard, card)

	_, err = CardOrUnknown(ctx, failing{err: errors.New("down")}, "01001")
	assert.Error(t, err)
}

type counting struct {
	Catalog
	decks atomic.Int32
	cards atomic.Int32
	gate  chan struct{}
}

func (c *counting) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	c.decks.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.Catalog.ResolveDeck(ctx, id)
}

func (c *counting) LookupCard(ctx context.Context, code string) (game.Card, error) {
	c.cards.Add(1)
	return c.Catalog.LookupCard(ctx, code)
}

func TestCachedMemoizesUntilTTL(t *testing.T) {
	ctx := context.Background()
	src := &counting{Catalog: newStatic(t)}
	cached := NewCached(src, time.Minute, zaptest.NewLogger(t))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }

	for range 3 {
		_, err := cached.ResolveDeck(ctx, "spider")
		require.NoError(t, err)
		_, err = cached.LookupCard(ctx, "01001")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.decks.Load())
	assert.Equal(t, int32(1), src.cards.Load())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, cached.Purge())
	_, err := cached.ResolveDeck(ctx, "spider")
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.decks.Load())
}

func TestCachedDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	src := &counting{Catalog: newStatic(t)}
	cached := NewCached(src, 0, nil)

	for range 2 {
		_, err := cached.ResolveDeck(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, int32(2), src.decks.Load())
}

func TestCachedCoalescesConcurrentMisses(t *testing.T) {
	src := &counting{Catalog: newStatic(t), gate: make(chan struct{})}
	cached := NewCached(src, time.Minute, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	results := make([]game.DeckList, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deck, err := cached.ResolveDeck(context.Background(), "spider")
			assert.NoError(t, err)
			results[i] = deck
		}()
	}
	// Let the goroutines pile up on the in-flight lookup.
	require.Eventually(t, func() bool { return src.decks.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Less(t, src.decks.Load(), int32(8))
	for _, deck := range results {
		assert.Equal(t, "spider", deck.ID)
	}
}

func TestCachedSharedLookupSurvivesCallerCancel(t *testing.T) {
	src := &counting{Catalog: newStatic(t), gate: make(chan struct{})}
	cached := NewCached(src, time.Minute, zaptest.NewLogger(t))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cached.ResolveDeck(firstCtx, "spider")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.decks.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		deck game.DeckList
		err  error
	}
	second := make(chan result, 1)
	go func() {
		deck, err := cached.ResolveDeck(context.Background(), "spider")
		second <- result{deck, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(src.gate)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "spider", res.deck.ID)
	assert.Equal(t, int32(1), src.decks.Load())
}

func TestListDecks(t *testing.T) {
	ctx := context.Background()
	other, err := NewStatic([]game.DeckList{
		{ID: "spider", Name: "Shadowed", Cards: []game.DeckCard{{Code: "x", Quantity: 1}}},
		{ID: "rhino", Name: "Rhino", Cards: []game.DeckCard{{Code: "01094", Quantity: 4}}},
	}, nil)
	require.NoError(t, err)

	decks, err := ListDecks(ctx, failing{err: ErrNotFound})
	require.NoError(t, err)
	assert.Empty(t, decks)

	chain := Chain{failing{err: ErrNotFound}, newStatic(t), other}
	decks, err = ListDecks(ctx, NewCached(chain, time.Minute, nil))
	require.NoError(t, err)
	assert.Equal(t, []DeckSummary{
		{ID: "rhino", Name: "Rhino", Total: 4},
		{ID: "spider", Name: "Spider-Man", Total: 3},
	}, decks)
}

func TestMarvelCDB(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/public/decklist/40000":
			fmt.Fprint(w, `{"id": 40000, "name": "Spidey Aggro", "slots": {"01002": 2, "01001": 1, "01003": 0}}`)
		case "/api/public/decklist/empty":
			fmt.Fprint(w, `{"id": 1, "name": "Empty", "slots": {}}`)
		case "/api/public/card/01001":
			fmt.Fprint(w, `{"code": "01001", "name": "Spider-Man", "text": "Spider-Sense"}`)
		case "/api/public/card/broken":
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `oops`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	m, err := NewMarvelCDB(config.MarvelCDBConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	deck, err := m.ResolveDeck(ctx, "40000")
	require.NoError(t, err)
	assert.Equal(t, game.DeckList{ID: "40000", Name: "Spidey Aggro", Cards: []game.DeckCard{
		{Code: "01001", Quantity: 1},
		{Code: "01002", Quantity: 2},
	}}, deck)

	_, err = m.ResolveDeck(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ResolveDeck(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	card, err := m.LookupCard(ctx, "01001")
	require.NoError(t, err)
	assert.Equal(t, spiderCard, card)

	_, err = m.LookupCard(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "status 500")

	assert.Equal(t, int32(5), requests.Load())
}

func TestMarvelCDBRateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": "01001", "name": "Spider-Man"}`)
	}))
	t.Cleanup(srv.Close)

	m, err := NewMarvelCDB(config.MarvelCDBConfig{BaseURL: srv.URL, RequestDelay: time.Hour}, nil, nil)
	require.NoError(t, err)

	_, err = m.LookupCard(context.Background(), "01001")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.LookupCard(ctx, "01001")
	assert.Error(t, err)
}

func TestPostgresCatalog(t *testing.T) {
	url := os.Getenv("TABLETOP_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TABLETOP_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cards (code TEXT PRIMARY KEY, name TEXT NOT NULL, text TEXT NOT NULL DEFAULT '');
		CREATE TABLE IF NOT EXISTS decks (id TEXT PRIMARY KEY, name TEXT NOT NULL);
		CREATE TABLE IF NOT EXISTS deck_cards (deck_id TEXT NOT NULL REFERENCES decks (id) ON DELETE CASCADE,
			position INTEGER NOT NULL, code TEXT NOT NULL, quantity INTEGER NOT NULL, PRIMARY KEY (deck_id, code));
		DELETE FROM decks WHERE id = 'test-spider';
		INSERT INTO decks (id, name) VALUES ('test-spider', 'Spider-Man');
		INSERT INTO deck_cards (deck_id, position, code, quantity) VALUES ('test-spider', 0, '01002', 2), ('test-spider', 1, '01001', 1);
		INSERT INTO cards (code, name, text) VALUES ('01001', 'Spider-Man', 'Spider-Sense') ON CONFLICT (code) DO NOTHING;
	`)
	require.NoError(t, err)

	p := NewPostgres(pool)
	deck, err := p.ResolveDeck(ctx, "test-spider")
	require.NoError(t, err)
	assert.Equal(t, []game.DeckCard{{Code: "01002", Quantity: 2}, {Code: "01001", Quantity: 1}}, deck.Cards)

	_, err = p.ResolveDeck(ctx, "test-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	card, err := p.LookupCard(ctx, "01001")
	require.NoError(t, err)
	assert.Equal(t, "Spider-Man", card.Name)

	decks, err := p.ListDecks(ctx)
	require.NoError(t, err)
	assert.Contains(t, decks, DeckSummary{ID: "test-spider", Name: "Spider-Man", Total: 3})
}
