// Package engine turns the ledger's snapshot stream into live budget
// projections. Each subscription owns one goroutine that folds snapshots
// in delivery order; readers see an atomically swapped projection.
package engine

import (
	"context"
	"sync"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
)

// State describes where a subscription is in its lifecycle.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateLive         State = "live"
	StateError        State = "error"
)

type Engine struct {
	store  ledger.Store
	logger *applog.Logger
}

func New(store ledger.Store, logger *applog.Logger) *Engine {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Engine{
		store:  store,
		logger: logger.WithComponent(applog.ComponentEngine),
	}
}

// Handle is one live subscription. Projection, State and LastError are
// safe to read from any goroutine; Updates signals that at least one of
// them changed since the last receive.
type Handle struct {
	ownerID string
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan struct{}

	mu         sync.Mutex
	projection core.Projection
	state      State
	lastErr    error

	closeOnce sync.Once
}

// Subscribe opens a live subscription for the owner. The returned handle
// must be closed when no longer needed.
func (e *Engine) Subscribe(ctx context.Context, ownerID string) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		ownerID: ownerID,
		cancel:  cancel,
		done:    make(chan struct{}),
		updates: make(chan struct{}, 1),
		state:   StateSubscribing,
	}

	watcher, err := e.store.Watch(ctx, ownerID)
	if err != nil {
		cancel()
		close(h.done)
		return nil, err
	}

	go e.run(ctx, h, watcher)
	return h, nil
}

func (e *Engine) run(ctx context.Context, h *Handle, watcher ledger.Watcher) {
	defer close(h.done)
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-watcher.Snapshots():
			if !ok {
				return
			}
			proj := core.BuildProjection(snap.Record.Expenses, snap.Record.Incomes, snap.Exists)
			h.mu.Lock()
			h.projection = proj
			h.state = StateLive
			h.lastErr = nil
			h.mu.Unlock()

			e.logger.DebugContext(ctx, "Applied snapshot",
				applog.FieldOwnerID, h.ownerID,
				applog.FieldRevision, snap.Revision,
				"transactions", len(proj.Transactions))
			h.notify()
		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}
			h.mu.Lock()
			h.state = StateError
			h.lastErr = err
			h.mu.Unlock()

			e.logger.WarnContext(ctx, "Subscription delivery error",
				applog.FieldOwnerID, h.ownerID,
				applog.FieldError, err)
			h.notify()
		}
	}
}

// notify coalesces pending signals; a slow reader sees at most one.
func (h *Handle) notify() {
	select {
	case h.updates <- struct{}{}:
	default:
	}
}

// Projection returns the latest computed projection. During an error the
// previous projection is retained, stale but available.
func (h *Handle) Projection() core.Projection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.projection
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Updates signals projection or state changes. Signals between reads
// coalesce into one.
func (h *Handle) Updates() <-chan struct{} {
	return h.updates
}

// OwnerID returns the owner this handle is subscribed to.
func (h *Handle) OwnerID() string {
	return h.ownerID
}

// Close tears the subscription down and waits for its goroutine to exit.
// Safe to call more than once.
func (h *Handle) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
		h.mu.Lock()
		h.state = StateUnsubscribed
		h.mu.Unlock()
	})
}
