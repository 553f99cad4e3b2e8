package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"procodus.dev/vitals/pkg/metrics"
)

// Options configures a subscription.
type Options struct {
	// UserID limits the subscription to one user's events. Empty receives every event.
	UserID string
	// PollInterval adds a periodic trigger independent of events. Zero disables polling.
	PollInterval time.Duration
}

// Hub fans events out to subscriptions in this process.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.FeedMetrics
	subs    map[*Subscription]struct{}
	mu      sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "feed"),
		subs:   make(map[*Subscription]struct{}),
	}
}

// SetMetrics sets the optional metrics collector.
func (h *Hub) SetMetrics(m *metrics.FeedMetrics) {
	h.metrics = m
}

// Broadcast triggers every subscription interested in e. It never blocks.
func (h *Hub) Broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		if s.userID == "" || s.userID == e.UserID {
			s.trigger()
		}
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscribe registers a subscription that lives until ctx ends or Close is called.
func (h *Hub) Subscribe(ctx context.Context, opts Options) *Subscription {
	s := &Subscription{
		hub:    h,
		userID: opts.UserID,
		c:      make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}

	go s.watch(ctx, opts.PollInterval)

	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Dec()
	}
}

// Subscription delivers coalesced refresh triggers. At most one trigger is pending at a
// time; triggers arriving while one is pending are absorbed by it.
type Subscription struct {
	hub    *Hub
	c      chan struct{}
	done   chan struct{}
	userID string
	once   sync.Once
}

// C returns the trigger channel.
func (s *Subscription) C() <-chan struct{} {
	return s.c
}

// Done is closed once the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

func (s *Subscription) trigger() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

func (s *Subscription) watch(ctx context.Context, poll time.Duration) {
	var tick <-chan time.Time
	if poll > 0 {
		t := time.NewTicker(poll)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-tick:
			s.trigger()
		}
	}
}

// Run calls fetch once straight away and then once per trigger until ctx ends, the
// subscription closes or fetch fails. Calls never overlap.
func Run(ctx context.Context, sub *Subscription, fetch func(context.Context) error) error {
	if err := fetch(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return nil
		case <-sub.C():
			if err := fetch(ctx); err != nil {
				return err
			}
		}
	}
}
