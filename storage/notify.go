// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/telemetry"
)

// Subscription is the disposable handle returned by the Subscribe
// calls. Close is idempotent; after it returns no new callbacks are
// dispatched, though a callback already in flight may still complete.
type Subscription struct {
	id  string
	hub *notificationHub

	// appKey is nil for new-application subscriptions.
	appKey   *telemetry.ApplicationKey
	callback func()

	// signal coalesces pending notifications: capacity 1, non-blocking
	// sends. A burst of events while the callback runs collapses into
	// one follow-up invocation.
	signal chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

// Close removes the registration. It does not wait for an in-flight
// callback to return.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

func (s *Subscription) dispatchLoop() {
	defer s.hub.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			s.callback()
		}
	}
}

// notificationHub fans telemetry change events out to subscribers.
// Dispatch runs on one goroutine per subscription, never inline with
// ingestion and never under a store lock, so a slow subscriber cannot
// stall writers or other subscribers. Delivery is at-least-once with
// no payload; consumers re-query the store.
type notificationHub struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[string]*Subscription
	closed bool

	wg sync.WaitGroup
}

func newNotificationHub(logger *zap.Logger) *notificationHub {
	return &notificationHub{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

func (h *notificationHub) subscribe(appKey *telemetry.ApplicationKey, callback func()) *Subscription {
	s := &Subscription{
		id:       uuid.NewString(),
		hub:      h,
		appKey:   appKey,
		callback: callback,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		// Hub already shut down, hand back an inert closed handle.
		s.closeOnce.Do(func() { close(s.done) })
		return s
	}
	h.subs[s.id] = s
	h.wg.Add(1)
	go s.dispatchLoop()

	h.logger.Debug("subscription registered", zap.String("subscription_id", s.id))
	return s
}

func (h *notificationHub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s.id)
}

// notifyNewApplication signals every new-application subscriber.
func (h *notificationHub) notifyNewApplication() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.appKey == nil {
			signalSubscription(s)
		}
	}
}

// notifyNewData signals subscribers registered for the application.
func (h *notificationHub) notifyNewData(key telemetry.ApplicationKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.appKey != nil && *s.appKey == key {
			signalSubscription(s)
		}
	}
}

func signalSubscription(s *Subscription) {
	select {
	case s.signal <- struct{}{}:
	default:
		// A notification is already pending; this one coalesces into it.
	}
}

// close stops all dispatch goroutines and waits for in-flight
// callbacks to return.
func (h *notificationHub) close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	h.wg.Wait()
}
