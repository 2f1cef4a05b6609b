package attributes

import (
	"context"
	"sync"
)

// Subscription receives store updates. Updates that arrive while the consumer
// is busy are coalesced: the latest snapshot is kept and the changed sets are
// unioned, so publishing never blocks on a slow reader.
type Subscription struct {
	store  *Store
	demand *Demand

	mu      sync.Mutex
	pending *Update
	closed  bool
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newSubscription(store *Store) *Subscription {
	return &Subscription{
		store:  store,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) deliver(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.pending == nil {
		s.pending = &Update{Snapshot: u.Snapshot, Changed: u.Changed.Clone()}
	} else {
		s.pending.Snapshot = u.Snapshot
		s.pending.Changed = s.pending.Changed.Union(u.Changed)
	}
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next blocks until an update is available, the context ends or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Update, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		s.mu.Lock()
		if s.pending != nil {
			u := *s.pending
			s.pending = nil
			s.mu.Unlock()
			return u, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Update{}, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-s.done:
		case <-s.signal:
		}
	}
}

// TryNext returns the pending update without blocking.
func (s *Subscription) TryNext() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Update{}, false
	}
	u := *s.pending
	s.pending = nil
	return u, true
}

// Ready returns a channel that receives a value when an update may be pending.
func (s *Subscription) Ready() <-chan struct{} { return s.signal }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close unsubscribes and releases any demand attached by Watch.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		close(s.done)
		if s.store != nil {
			s.store.unsubscribe(s)
		}
		if s.demand != nil {
			s.demand.Release()
		}
	})
}
