// Package live binds a view's lifetime to a store subscription.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pauljones0/komsu/internal/storage"
)

// Subscriber opens push-based subscriptions on a collection path.
type Subscriber interface {
	Subscribe(ctx context.Context, path string, onSnapshot func(*storage.Snapshot), onError func(error)) (storage.UnsubscribeFunc, error)
}

type State int

const (
	Unsubscribed State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// Binding holds one subscription for as long as a view is displayed. Every
// snapshot is handed to apply in full; apply never runs after Release returns.
type Binding struct {
	path  string
	apply func(*storage.Snapshot)

	// deliver serialises apply against Release. It is never held while
	// taking mu, so apply may take its own locks without ordering against
	// the accessors below.
	deliver sync.Mutex

	mu        sync.Mutex
	state     State
	loading   bool
	lastErr   error
	snapshots int
	unsub     storage.UnsubscribeFunc
	release   sync.Once
}

// Bind subscribes to path and starts delivering snapshots to apply.
func Bind(ctx context.Context, s Subscriber, path string, apply func(*storage.Snapshot)) (*Binding, error) {
	// Subscribed before the call so a snapshot delivered during Subscribe is applied.
	b := &Binding{path: path, apply: apply, loading: true, state: Subscribed}

	unsub, err := s.Subscribe(ctx, path, b.onSnapshot, b.onError)
	if err != nil {
		b.mu.Lock()
		b.state = Unsubscribed
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	b.mu.Lock()
	b.unsub = unsub
	b.mu.Unlock()
	slog.Info("Subscribed", "path", path)
	return b, nil
}

func (b *Binding) onSnapshot(snap *storage.Snapshot) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	if b.state != Subscribed {
		b.mu.Unlock()
		return
	}
	b.loading = false
	b.snapshots++
	b.mu.Unlock()

	b.apply(snap)
}

func (b *Binding) onError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Subscribed {
		return
	}
	slog.Error("Subscription delivery failed", "path", b.path, "error", err)
	b.loading = false
	b.lastErr = err
}

// Release unsubscribes. Calling it more than once is a no-op.
func (b *Binding) Release() {
	b.release.Do(func() {
		// Waits for an apply in progress.
		b.deliver.Lock()
		b.mu.Lock()
		b.state = Unsubscribed
		unsub := b.unsub
		b.mu.Unlock()
		b.deliver.Unlock()
		if unsub != nil {
			unsub()
		}
		slog.Info("Released subscription", "path", b.path)
	})
}

func (b *Binding) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Loading is true until the first snapshot or delivery error arrives.
func (b *Binding) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Err returns the last delivery error, if any.
func (b *Binding) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Snapshots returns how many snapshots have been applied.
func (b *Binding) Snapshots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots
}

func (b *Binding) Path() string {
	return b.path
}
