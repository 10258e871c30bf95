// Package event implements EventEmitter: batching diffs into user-visible
// events with re-entrant emission handled via a queue (spec.md §4, §5).
//
// Grounded on original_source's
// crates/loro-internal/src/utils/subscription.rs SubscriberSetWithQueue
// (itself adapted there from zed-industries/zed): a retain-based dispatch
// that detects a callback trying to re-enter its own emitter and defers
// the payload onto a queue drained once the outer retain finishes,
// instead of recursing (spec.md §5 "Recursive emission is queued").
package event

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Key identifies one emitter (a container, or the root-subscription key).
type Key any

// Callback is invoked with one payload; returning false unsubscribes it.
type Callback[Payload any] func(payload *Payload) bool

type subscriber[Payload any] struct {
	id       string
	seq      uint64
	active   bool
	callback Callback[Payload]
}

// SubscriberSet holds, per Key, an ordered list of subscribers. Grounded
// on the teacher's sync.RWMutex-guarded-state idiom, generalized from one
// CRDT's lock to one lock per emitter set.
type SubscriberSet[Payload any] struct {
	mu          sync.Mutex
	subscribers map[any]map[string]*subscriber[Payload]
	retaining   map[any]bool
	nextSeq     uint64
}

// NewSubscriberSet creates an empty set.
func NewSubscriberSet[Payload any]() *SubscriberSet[Payload] {
	return &SubscriberSet[Payload]{
		subscribers: make(map[any]map[string]*subscriber[Payload]),
		retaining:   make(map[any]bool),
	}
}

// Subscription is a cancellable handle returned by Insert.
type Subscription struct {
	unsubscribe func()
	once        sync.Once
}

// Unsubscribe cancels the subscription. Safe to call multiple times, and
// safe to call from within the subscription's own callback (spec.md §5:
// "Dropping a subscription inside its own callback is safe").
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
	})
}

// Insert registers cb for key and returns a Subscription handle. The
// subscriber is not considered for delivery until explicitly activated
// via the returned activate function mirrors the Rust original's
// two-phase insert+activate, which exists there to let a caller finish
// constructing its closure before it can possibly be invoked
// recursively; here it simply marks the subscriber live.
func (s *SubscriberSet[Payload]) Insert(key Key, cb Callback[Payload]) (*Subscription, func()) {
	id := uuid.NewString()
	s.mu.Lock()
	if s.subscribers[key] == nil {
		s.subscribers[key] = make(map[string]*subscriber[Payload])
	}
	s.nextSeq++
	sub := &subscriber[Payload]{id: id, seq: s.nextSeq, callback: cb}
	s.subscribers[key][id] = sub
	s.mu.Unlock()

	activate := func() {
		s.mu.Lock()
		sub.active = true
		s.mu.Unlock()
	}
	subscription := &Subscription{unsubscribe: func() {
		s.mu.Lock()
		delete(s.subscribers[key], id)
		s.mu.Unlock()
	}}
	return subscription, activate
}

// Retain invokes visit for every active subscriber of key, in subscription
// order; a subscriber whose visit returns false is removed, and the rest
// are still visited. Returns false, visiting nothing, if key is currently
// being retained recursively.
func (s *SubscriberSet[Payload]) Retain(key Key, visit func(Callback[Payload]) bool) bool {
	s.mu.Lock()
	if s.retaining[key] {
		s.mu.Unlock()
		return false
	}
	s.retaining[key] = true
	subs := make([]*subscriber[Payload], 0, len(s.subscribers[key]))
	for _, sub := range s.subscribers[key] {
		if sub.active {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	s.mu.Unlock()

	for _, sub := range subs {
		if !visit(sub.callback) {
			s.mu.Lock()
			delete(s.subscribers[key], sub.id)
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.retaining[key] = false
	s.mu.Unlock()
	return true
}

// SubscriberSetWithQueue adds the recursive-emission queue on top of
// SubscriberSet: spec.md §5 "the inner emission is deferred until the
// outer retain finishes; all events still reach all subscribers in strict
// FIFO order."
type SubscriberSetWithQueue[Payload any] struct {
	set   *SubscriberSet[Payload]
	mu    sync.Mutex
	queue map[any][]*Payload
}

// NewSubscriberSetWithQueue creates an empty queued emitter.
func NewSubscriberSetWithQueue[Payload any]() *SubscriberSetWithQueue[Payload] {
	return &SubscriberSetWithQueue[Payload]{
		set:   NewSubscriberSet[Payload](),
		queue: make(map[any][]*Payload),
	}
}

// Subscribe registers and immediately activates cb for key.
func (q *SubscriberSetWithQueue[Payload]) Subscribe(key Key, cb Callback[Payload]) *Subscription {
	sub, activate := q.set.Insert(key, cb)
	activate()
	return sub
}

// Emit delivers payload to every subscriber of key, draining any payloads
// that a recursive Emit call (triggered from within a callback) queued
// while the outer retain was in progress.
func (q *SubscriberSetWithQueue[Payload]) Emit(key Key, payload *Payload) {
	pending := []*Payload{payload}
	for len(pending) > 0 {
		p := pending[0]
		pending = pending[1:]

		ok := q.set.Retain(key, func(cb Callback[Payload]) bool { return cb(p) })
		if ok {
			q.mu.Lock()
			queued := q.queue[key]
			delete(q.queue, key)
			q.mu.Unlock()
			pending = append(pending, queued...)
		} else {
			q.mu.Lock()
			q.queue[key] = append(q.queue[key], p)
			q.mu.Unlock()
		}
	}
}
