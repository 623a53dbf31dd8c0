// Package coordinator serializes commands per session and fans every applied
// change out to the session's observers.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/magefree/tabletop-server-go/internal/catalog"
	"github.com/magefree/tabletop-server-go/internal/game"
	"github.com/magefree/tabletop-server-go/internal/pubsub"
	"github.com/magefree/tabletop-server-go/internal/repository"
	"go.uber.org/zap"
)

// Store persists session snapshots with last-write-wins semantics.
type Store interface {
	Load(ctx context.Context, id string) (game.Session, error)
	Save(ctx context.Context, s game.Session) (game.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListActive(ctx context.Context) ([]game.Session, error)
	ListRecent(ctx context.Context, limit int) ([]game.Session, error)
	ListStale(ctx context.Context, phase game.Phase, cutoff time.Time) ([]game.Session, error)
	Ping(ctx context.Context) error
}

// UpdateType tells observers what happened to a session.
type UpdateType string

const (
	UpdateState   UpdateType = "state"
	UpdateDeleted UpdateType = "deleted"
)

// Update is broadcast after every applied command.
type Update struct {
	Type      UpdateType    `json:"type"`
	SessionID string        `json:"session_id"`
	Version   int64         `json:"version"`
	Command   string        `json:"command"`
	Checksum  string        `json:"checksum,omitempty"`
	Session   *game.Session `json:"session,omitempty"`
}

// Observer receives updates for one session. It runs on the publishing
// goroutine and must not block.
type Observer func(Update) error

// Result is what Execute returns on success.
type Result struct {
	Session game.Session
	Deleted bool
}

// Options tune a Coordinator. Zero values fall back to defaults.
type Options struct {
	LockTimeout  time.Duration
	HistoryLimit int
	ReplayDir    string
	Rand         game.Randomizer
	NewID        func() string
	Now          func() time.Time
}

const defaultLockTimeout = 5 * time.Second

// Coordinator owns every session mutation.
type Coordinator struct {
	store   Store
	env     Env
	timeout time.Duration
	logger  *zap.Logger

	locks   *sessionLocks
	broker  *pubsub.Broker[Update]
	history *History
}

// New wires a coordinator around store and cat.
func New(store Store, cat catalog.Catalog, opts Options, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.Rand == nil {
		opts.Rand = game.DefaultRandomizer
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		store:   store,
		env:     Env{Catalog: cat, Rand: opts.Rand, NewID: opts.NewID, Now: opts.Now},
		timeout: opts.LockTimeout,
		logger:  logger,
		locks:   newSessionLocks(),
		broker:  pubsub.NewBroker[Update](logger.Named("broker")),
		history: NewHistory(opts.HistoryLimit, opts.ReplayDir, logger.Named("history")),
	}
}

// History exposes the snapshot recorder.
func (c *Coordinator) History() *History {
	return c.history
}

// CreateLobby stores a new session hosted by host.
func (c *Coordinator) CreateLobby(ctx context.Context, name, host string) (game.Session, error) {
	s, err := game.CreateLobby(c.env.NewID(), name, host, c.env.Now())
	if err != nil {
		return game.Session{}, err
	}
	if _, err := c.store.Save(ctx, s); err != nil {
		c.logger.Error("failed to save new lobby", zap.String("session_id", s.ID), zap.Error(err))
		return game.Session{}, game.Unavailable("CreateLobby", err)
	}
	c.history.Record(s)
	c.logger.Info("lobby created",
		zap.String("session_id", s.ID),
		zap.String("name", s.Name),
		zap.String("player", host),
	)
	return s, nil
}

// Get loads the current snapshot of id.
func (c *Coordinator) Get(ctx context.Context, id string) (game.Session, error) {
	return c.load(ctx, "GetSession", id)
}

// ListLobbies returns summaries of every session still in the lobby.
func (c *Coordinator) ListLobbies(ctx context.Context) ([]game.Summary, error) {
	sessions, err := c.store.ListActive(ctx)
	if err != nil {
		return nil, game.Unavailable("ListLobbies", err)
	}
	return summarize(sessions), nil
}

// ListRecent returns summaries of the most recently updated sessions.
func (c *Coordinator) ListRecent(ctx context.Context, limit int) ([]game.Summary, error) {
	sessions, err := c.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, game.Unavailable("ListRecent", err)
	}
	return summarize(sessions), nil
}

func summarize(sessions []game.Session) []game.Summary {
	out := make([]game.Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summarize())
	}
	return out
}

// Ping checks the store.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

func (c *Coordinator) load(ctx context.Context, op, id string) (game.Session, error) {
	s, err := c.store.Load(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return game.Session{}, game.NotFound(op, "session %s not found", id)
	}
	if err != nil {
		return game.Session{}, game.Unavailable(op, err)
	}
	return s, nil
}

// Execute applies cmd to session id. Commands for the same id never overlap:
// the snapshot is loaded, changed, saved and broadcast before the next one
// starts. A failure at any step leaves the stored snapshot untouched and
// publishes nothing.
func (c *Coordinator) Execute(ctx context.Context, id string, cmd Command) (Result, error) {
	release, err := c.locks.acquire(ctx, id, c.timeout)
	if err != nil {
		c.logger.Warn("session busy", zap.String("session_id", id), zap.String("command", cmd.Name))
		return Result{}, err
	}
	defer release()

	current, err := c.load(ctx, cmd.Name, id)
	if err != nil {
		return Result{}, err
	}

	next, deleted, err := cmd.Apply(ctx, c.env, current)
	if err != nil {
		var gameErr *game.Error
		if !errors.As(err, &gameErr) && !errors.Is(err, errNotStale) {
			err = game.Unavailable(cmd.Name, err)
		}
		c.logger.Debug("command rejected",
			zap.String("session_id", id),
			zap.String("command", cmd.Name),
			zap.Error(err),
		)
		return Result{}, err
	}

	// Once the command has been applied it runs to completion even if the
	// caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	if deleted {
		if _, err := c.store.Delete(persistCtx, id); err != nil {
			c.logger.Error("failed to delete session", zap.String("session_id", id), zap.Error(err))
			return Result{}, game.Unavailable(cmd.Name, err)
		}
		c.broker.Publish(id, Update{
			Type:      UpdateDeleted,
			SessionID: id,
			Version:   current.Version,
			Command:   cmd.Name,
		})
		c.broker.CloseTopic(id)
		c.flushHistory(id)
		c.logger.Info("session deleted", zap.String("session_id", id), zap.String("command", cmd.Name))
		return Result{Session: current, Deleted: true}, nil
	}

	next = next.Touch(c.env.Now())
	if _, err := c.store.Save(persistCtx, next); err != nil {
		c.logger.Error("failed to save session",
			zap.String("session_id", id),
			zap.String("command", cmd.Name),
			zap.Error(err),
		)
		return Result{}, game.Unavailable(cmd.Name, err)
	}

	update, err := stateUpdate(cmd.Name, next)
	if err != nil {
		c.logger.Warn("failed to checksum session", zap.String("session_id", id), zap.Error(err))
	}
	delivered := c.broker.Publish(id, update)
	c.history.Record(next)
	if next.Phase == game.PhaseFinished && current.Phase != game.PhaseFinished {
		c.flushHistory(id)
	}

	c.logger.Debug("command applied",
		zap.String("session_id", id),
		zap.String("command", cmd.Name),
		zap.Int64("version", next.Version),
		zap.Int("observers", delivered),
	)
	return Result{Session: next}, nil
}

func (c *Coordinator) flushHistory(id string) {
	if err := c.history.Flush(id); err != nil {
		c.logger.Warn("failed to flush history", zap.String("session_id", id), zap.Error(err))
	}
}

func stateUpdate(command string, s game.Session) (Update, error) {
	snapshot := s.Clone()
	update := Update{
		Type:      UpdateState,
		SessionID: s.ID,
		Version:   s.Version,
		Command:   command,
		Session:   &snapshot,
	}
	sum, err := s.ComputeChecksum()
	if err != nil {
		return update, err
	}
	update.Checksum = sum.Hash
	return update, nil
}

// gate drops state updates an observer has already seen. A catch-up
// snapshot and a live publish may race; whichever is newer wins.
type gate struct {
	mu       sync.Mutex
	last     int64
	observer Observer
}

func (g *gate) deliver(u Update) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if u.Type == UpdateState && u.Version <= g.last {
		return nil
	}
	if u.Version > g.last {
		g.last = u.Version
	}
	return g.observer(u)
}

// Subscribe registers observer on id and immediately hands it the current
// snapshot. The returned handle is passed to Unsubscribe.
func (c *Coordinator) Subscribe(ctx context.Context, id string, observer Observer) (int, error) {
	if observer == nil {
		return -1, game.InvalidArgument("Subscribe", "observer is required")
	}
	g := &gate{observer: observer}
	handle := c.broker.Subscribe(id, g.deliver)

	s, err := c.load(ctx, "Subscribe", id)
	if err != nil {
		c.broker.Unsubscribe(handle)
		return -1, err
	}
	update, err := stateUpdate("Subscribe", s)
	if err != nil {
		c.logger.Warn("failed to checksum session", zap.String("session_id", id), zap.Error(err))
	}
	if err := c.broker.Deliver(handle, update); err != nil {
		c.logger.Warn("failed to deliver catch-up",
			zap.String("session_id", id),
			zap.Int("observer", handle),
			zap.Error(err),
		)
	}
	c.logger.Debug("observer subscribed", zap.String("session_id", id), zap.Int("observer", handle))
	return handle, nil
}

// Unsubscribe removes an observer. Unknown handles are ignored.
func (c *Coordinator) Unsubscribe(handle int) {
	c.broker.Unsubscribe(handle)
}

// Subscribers returns the number of observers on id.
func (c *Coordinator) Subscribers(id string) int {
	return c.broker.Subscribers(id)
}

// Sweep deletes lobbies idle longer than lobbyTTL and finished games older
// than finishedTTL. A non-positive ttl disables that half of the sweep.
func (c *Coordinator) Sweep(ctx context.Context, lobbyTTL, finishedTTL time.Duration) (int, error) {
	now := c.env.Now()
	removed := 0
	for _, rule := range []struct {
		phase game.Phase
		ttl   time.Duration
	}{
		{game.PhaseLobby, lobbyTTL},
		{game.PhaseFinished, finishedTTL},
	} {
		if rule.ttl <= 0 {
			continue
		}
		cutoff := now.Add(-rule.ttl)
		stale, err := c.store.ListStale(ctx, rule.phase, cutoff)
		if err != nil {
			return removed, game.Unavailable("Sweep", err)
		}
		for _, s := range stale {
			_, err := c.Execute(ctx, s.ID, expire(rule.phase, cutoff))
			switch {
			case err == nil:
				removed++
			case errors.Is(err, errNotStale), errors.Is(err, game.ErrNotFound):
			case errors.Is(err, game.ErrBusy):
				c.logger.Debug("skipping busy session", zap.String("session_id", s.ID))
			default:
				return removed, err
			}
		}
	}
	if removed > 0 {
		c.logger.Info("swept stale sessions", zap.Int("removed", removed))
	}
	return removed, nil
}
