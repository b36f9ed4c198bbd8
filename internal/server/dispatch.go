package server

import (
	"fmt"
	"sync"

	"github.com/uatdecode/uatd/internal/uat"
)

// Frame is one decoded message published to the fan-out dispatcher. Each
// subscriber renders it into its own wire format (raw text, JSON, or the
// browser WebSocket feed) at delivery time rather than at publish time.
type Frame struct {
	Raw    uat.RawFrame
	Record *uat.AdsbRecord
}

// Subscriber receives every frame published after it registers, until it is
// unsubscribed.
type Subscriber struct {
	id string
	ch chan Frame
}

// Frames returns the channel new frames arrive on. It is closed when the
// subscriber is unsubscribed.
func (s *Subscriber) Frames() <-chan Frame { return s.ch }

// Dispatcher fans decoded frames out to every connected raw, JSON, and
// WebSocket client. One dispatch subscriber corresponds to one connected
// client; a client disconnect calls Unsubscribe.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
	nextID      int
}

// NewDispatcher creates a Dispatcher whose per-subscriber buffer holds
// bufferSize pending frames before frames start dropping for that
// subscriber.
func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Dispatcher{subscribers: make(map[string]*Subscriber), bufferSize: bufferSize}
}

// Subscribe registers a new subscriber and returns it.
func (d *Dispatcher) Subscribe() *Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &Subscriber{id: fmt.Sprintf("sub-%d", d.nextID), ch: make(chan Frame, d.bufferSize)}
	d.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than
// once for the same subscriber.
func (d *Dispatcher) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[sub.id]; ok {
		delete(d.subscribers, sub.id)
		close(sub.ch)
	}
}

// Publish fans f out to every current subscriber. Delivery is non-blocking:
// a subscriber whose buffer is full drops the frame rather than stalling
// the publisher or other subscribers.
func (d *Dispatcher) Publish(f Frame) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers {
		select {
		case sub.ch <- f:
		default:
		}
	}
}

// SubscriberCount reports how many clients are currently connected.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
