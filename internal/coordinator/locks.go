package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/magefree/tabletop-server-go/internal/game"
)

// sessionLocks hands out one execution right per session id. Entries are
// reference counted and dropped once nobody holds or waits for them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sem  chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// acquire blocks until the session is free, timeout elapses or ctx is done.
func (l *sessionLocks) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &sessionLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lock.sem
				l.unref(id, lock)
			})
		}, nil
	case <-timer.C:
		l.unref(id, lock)
		return nil, game.Busy("Execute", "session %s is busy, retry later", id)
	case <-ctx.Done():
		l.unref(id, lock)
		return nil, &game.Error{Kind: game.KindBusy, Op: "Execute", Message: "gave up waiting for session " + id, Cause: ctx.Err()}
	}
}

func (l *sessionLocks) unref(id string, lock *sessionLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many session ids currently have a lock entry.
func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
