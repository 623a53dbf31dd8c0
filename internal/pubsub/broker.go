// Package pubsub is an in-process topic registry. Publishers hand a payload
// to every handler registered on a topic; a failing handler never affects
// the publisher or the other handlers.
package pubsub

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Handler receives payloads for one topic. Handlers run on the publisher's
// goroutine and must not block; slow observers should queue and return.
type Handler[T any] func(T) error

type subscription[T any] struct {
	handle  int
	topic   string
	handler Handler[T]
}

// Broker routes payloads to the handlers subscribed to a topic. Within one
// topic, payloads reach each handler in publish order as long as the caller
// does not publish to that topic concurrently.
type Broker[T any] struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	topics     map[string]map[int]subscription[T]
	handles    map[int]string // handle -> topic
	nextHandle int
}

// NewBroker constructs an empty broker.
func NewBroker[T any](logger *zap.Logger) *Broker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker[T]{
		logger:  logger,
		topics:  make(map[string]map[int]subscription[T]),
		handles: make(map[int]string),
	}
}

// Subscribe registers handler on topic and returns its handle, or -1 for a
// nil handler.
func (b *Broker[T]) Subscribe(topic string, handler Handler[T]) int {
	if handler == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := b.nextHandle
	b.nextHandle++
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[int]subscription[T])
		b.topics[topic] = subs
	}
	subs[handle] = subscription[T]{handle: handle, topic: topic, handler: handler}
	b.handles[handle] = topic
	return handle
}

// Unsubscribe removes the handler identified by handle. Unknown handles are
// ignored.
func (b *Broker[T]) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.handles[handle]
	if !ok {
		return
	}
	delete(b.handles, handle)
	subs := b.topics[topic]
	delete(subs, handle)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// CloseTopic drops every handler on topic and returns how many were removed.
func (b *Broker[T]) CloseTopic(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for handle := range subs {
		delete(b.handles, handle)
	}
	delete(b.topics, topic)
	return len(subs)
}

// Subscribers returns the number of handlers on topic.
func (b *Broker[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Publish delivers payload to every handler on topic, in subscription order,
// and returns how many handlers accepted it. Errors and panics are logged
// per handler.
func (b *Broker[T]) Publish(topic string, payload T) int {
	b.mu.RLock()
	subs := make([]subscription[T], 0, len(b.topics[topic]))
	for _, s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].handle < subs[j].handle })

	delivered := 0
	for _, s := range subs {
		if err := deliver(s.handler, payload); err != nil {
			b.logger.Warn("failed to deliver to observer",
				zap.String("topic", topic),
				zap.Int("observer", s.handle),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// Deliver sends payload to a single handler with the same isolation as
// Publish.
func (b *Broker[T]) Deliver(handle int, payload T) error {
	b.mu.RLock()
	topic, ok := b.handles[handle]
	var s subscription[T]
	if ok {
		s = b.topics[topic][handle]
	}
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown subscription %d", handle)
	}
	return deliver(s.handler, payload)
}

func deliver[T any](handler Handler[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
		}
	}()
	return handler(payload)
}
