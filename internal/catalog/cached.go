package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type entry[T any] struct {
	value   T
	expires time.Time
}

// Cached memoizes another catalog for ttl. Concurrent misses for the same id
// share a single upstream request. Failures are not cached.
type Cached struct {
	source Catalog
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	decks map[string]entry[game.DeckList]
	cards map[string]entry[game.Card]
	group singleflight.Group
}

// NewCached wraps source. A non-positive ttl caches forever.
func NewCached(source Catalog, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		source: source,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
		decks:  make(map[string]entry[game.DeckList]),
		cards:  make(map[string]entry[game.Card]),
	}
}

func (c *Cached) fresh(expires time.Time) bool {
	return expires.IsZero() || c.now().Before(expires)
}

func (c *Cached) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

// fetch runs fn once per key across concurrent callers. The shared call is
// detached from any single caller's cancellation; each caller still stops
// waiting when its own ctx is done.
func (c *Cached) fetch(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fn(shared)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// ResolveDeck implements Catalog.
func (c *Cached) ResolveDeck(ctx context.Context, id string) (game.DeckList, error) {
	c.mu.RLock()
	e, ok := c.decks[id]
	c.mu.RUnlock()
	if ok && c.fresh(e.expires) {
		return cloneDeck(e.value), nil
	}

	v, shared, err := c.fetch(ctx, "deck:"+id, func(ctx context.Context) (any, error) {
		deck, err := c.source.ResolveDeck(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.decks[id] = entry[game.DeckList]{value: deck, expires: c.expiry()}
		c.mu.Unlock()
		return deck, nil
	})
	if err != nil {
		return game.DeckList{}, err
	}
	if shared {
		c.logger.Debug("coalesced deck lookup", zap.String("deck_id", id))
	}
	return cloneDeck(v.(game.DeckList)), nil
}

// LookupCard implements Catalog.
func (c *Cached) LookupCard(ctx context.Context, code string) (game.Card, error) {
	c.mu.RLock()
	e, ok := c.cards[code]
	c.mu.RUnlock()
	if ok && c.fresh(e.expires) {
		return e.value, nil
	}

	v, _, err := c.fetch(ctx, "card:"+code, func(ctx context.Context) (any, error) {
		card, err := c.source.LookupCard(ctx, code)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cards[code] = entry[game.Card]{value: card, expires: c.expiry()}
		c.mu.Unlock()
		return card, nil
	})
	if err != nil {
		return game.Card{}, err
	}
	return v.(game.Card), nil
}

// ListDecks implements Lister. Listings are not cached; they always reflect
// the source.
func (c *Cached) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	return ListDecks(ctx, c.source)
}

// Purge drops expired entries and returns how many were removed.
func (c *Cached) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.decks {
		if !c.fresh(e.expires) {
			delete(c.decks, id)
			removed++
		}
	}
	for code, e := range c.cards {
		if !c.fresh(e.expires) {
			delete(c.cards, code)
			removed++
		}
	}
	return removed
}

func cloneDeck(d game.DeckList) game.DeckList {
	d.Cards = slices.Clone(d.Cards)
	return d
}
