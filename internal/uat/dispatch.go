package uat

import (
	"sync"
	"sync/atomic"
)

// Handle identifies one dispatch subscriber.
type Handle uint64

// Handler receives one decoded record. It must not block; a handler that
// wants to hand work off should queue it and return promptly, since
// Dispatch runs on the pipeline's single cooperative task.
type Handler func(*AdsbRecord)

type subscriber struct {
	handle  Handle
	handler Handler
}

// MessageDispatch is the registry of subscribers a decoded record is
// handed to. original_source/message_dispatch.cc protects its registry
// with a std::recursive_mutex plus a busy counter and deferred deletion so
// that a subscriber's own callback can safely unsubscribe (even itself) or
// subscribe a new handler mid-dispatch. Go's sync.Mutex is not reentrant,
// and spec.md §5 already guarantees the core calls Dispatch from a single
// cooperative task with no re-entrance of its own — so instead of a
// recursive-mutex discipline, MessageDispatch publishes an immutable,
// copy-on-write snapshot of its subscriber list. Dispatch reads that
// snapshot once per call without taking any lock at all, so a handler is
// free to call Subscribe/Unsubscribe (on any handle, including its own)
// without deadlocking or corrupting the iteration in progress; the
// mutation lands in the *next* snapshot, never the one currently being
// walked.
type MessageDispatch struct {
	mu      sync.Mutex // serialises Subscribe/Unsubscribe writers only
	next    Handle
	current atomic.Pointer[[]subscriber]
}

func NewMessageDispatch() *MessageDispatch {
	d := &MessageDispatch{}
	empty := []subscriber{}
	d.current.Store(&empty)
	return d
}

// Subscribe registers handler and returns a Handle for later Unsubscribe.
// Safe to call from any goroutine, and safe to call re-entrantly from
// inside a handler running under Dispatch.
func (d *MessageDispatch) Subscribe(handler Handler) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	h := d.next
	old := *d.current.Load()
	next := make([]subscriber, len(old), len(old)+1)
	copy(next, old)
	next = append(next, subscriber{handle: h, handler: handler})
	d.current.Store(&next)
	return h
}

// Unsubscribe removes handle, if present. Safe to call re-entrantly from
// inside a handler running under Dispatch, including a handler
// unsubscribing itself.
func (d *MessageDispatch) Unsubscribe(handle Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := *d.current.Load()
	next := make([]subscriber, 0, len(old))
	for _, s := range old {
		if s.handle != handle {
			next = append(next, s)
		}
	}
	d.current.Store(&next)
}

// Dispatch hands rec to every subscriber registered at the moment Dispatch
// was called. It takes no lock: it loads the current snapshot pointer
// once, which is safe and lock-free because Subscribe/Unsubscribe always
// publish a brand new slice rather than mutating one in place.
func (d *MessageDispatch) Dispatch(rec *AdsbRecord) {
	snapshot := *d.current.Load()
	for _, s := range snapshot {
		s.handler(rec)
	}
}
