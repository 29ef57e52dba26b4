package ledger

import (
	"context"
	"sync"
)

const watchBuffer = 64

// Hub fans snapshots out to in-process watchers. The sqlite and memory
// adapters use it to implement Watch; the NATS adapter gets its stream
// from the server instead.
type Hub struct {
	mu       sync.Mutex
	watchers map[string][]*hubWatcher
}

func NewHub() *Hub {
	return &Hub{watchers: make(map[string][]*hubWatcher)}
}

type hubWatcher struct {
	hub     *Hub
	ownerID string

	mu     sync.Mutex
	closed bool
	snaps  chan Snapshot
	errs   chan error
}

func (w *hubWatcher) Snapshots() <-chan Snapshot { return w.snaps }
func (w *hubWatcher) Errors() <-chan error       { return w.errs }

func (w *hubWatcher) Stop() {
	w.hub.remove(w)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.snaps)
	}
}

// deliver pushes a snapshot, dropping the oldest buffered one for slow
// consumers so the newest state always gets through.
func (w *hubWatcher) deliver(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for {
		select {
		case w.snaps <- snap:
			return
		default:
		}
		select {
		case <-w.snaps:
		default:
		}
	}
}

func (w *hubWatcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

// Watch registers a watcher and delivers the initial snapshot immediately.
// The watcher is released when Stop is called or ctx is cancelled.
func (h *Hub) Watch(ctx context.Context, ownerID string, initial Snapshot) Watcher {
	w := &hubWatcher{
		hub:     h,
		ownerID: ownerID,
		snaps:   make(chan Snapshot, watchBuffer),
		errs:    make(chan error, 4),
	}
	h.mu.Lock()
	h.watchers[ownerID] = append(h.watchers[ownerID], w)
	h.mu.Unlock()

	w.deliver(initial)

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			w.Stop()
		}()
	}
	return w
}

// Broadcast delivers a snapshot to every watcher of the owner.
func (h *Hub) Broadcast(ownerID string, snap Snapshot) {
	for _, w := range h.snapshotTargets(ownerID) {
		w.deliver(snap)
	}
}

// Fail delivers a stream error to every watcher of the owner without
// terminating their snapshot streams.
func (h *Hub) Fail(ownerID string, err error) {
	for _, w := range h.snapshotTargets(ownerID) {
		w.fail(err)
	}
}

func (h *Hub) snapshotTargets(ownerID string) []*hubWatcher {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*hubWatcher(nil), h.watchers[ownerID]...)
}

func (h *Hub) remove(w *hubWatcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.watchers[w.ownerID]
	for i, cand := range list {
		if cand == w {
			h.watchers[w.ownerID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.watchers[w.ownerID]) == 0 {
		delete(h.watchers, w.ownerID)
	}
}
