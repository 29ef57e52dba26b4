package natskv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"bilancio/internal/ledger"
)

// Watch opens a live snapshot stream for one owner. The underlying KV
// watcher is restarted with backoff after transport failures; failures are
// surfaced on Errors without terminating Snapshots.
func (s *Store) Watch(ctx context.Context, ownerID string) (ledger.Watcher, error) {
	wctx, cancel := context.WithCancel(ctx)
	kw, err := s.kv.Watch(wctx, ownerID)
	if err != nil {
		cancel()
		return nil, ledger.Transport("watch", err)
	}

	w := &watcher{
		store:   s,
		ownerID: ownerID,
		ctx:     wctx,
		cancel:  cancel,
		snaps:   make(chan ledger.Snapshot, 64),
		errs:    make(chan error, 4),
	}
	go w.run(kw)
	return w, nil
}

type watcher struct {
	store   *Store
	ownerID string
	ctx     context.Context
	cancel  context.CancelFunc

	stopOnce sync.Once
	snaps    chan ledger.Snapshot
	errs     chan error
}

func (w *watcher) Snapshots() <-chan ledger.Snapshot { return w.snaps }
func (w *watcher) Errors() <-chan error              { return w.errs }

func (w *watcher) Stop() {
	w.stopOnce.Do(w.cancel)
}

func (w *watcher) run(kw jetstream.KeyWatcher) {
	defer close(w.snaps)
	delivered := false
	for {
		again, err := w.consume(kw, &delivered)
		_ = kw.Stop()
		if !again {
			return
		}
		w.reportError(err)

		kw, err = w.restart()
		if err != nil {
			return
		}
	}
}

// consume drains one KV watcher until it dies. Returns whether a restart
// should be attempted and the error that ended the stream.
func (w *watcher) consume(kw jetstream.KeyWatcher, delivered *bool) (bool, error) {
	for {
		select {
		case <-w.ctx.Done():
			return false, nil
		case entry, ok := <-kw.Updates():
			if !ok {
				return true, errors.New("watch stream closed")
			}
			if entry == nil {
				// Initial replay done. A missing record is still a
				// snapshot: the projection must zero out, not hang.
				if !*delivered {
					*delivered = true
					w.send(ledger.Snapshot{})
				}
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue // records are never deleted by this system
			}
			rec, err := ledger.DecodeRecord(entry.Value())
			if err != nil {
				w.reportError(err)
				continue
			}
			*delivered = true
			w.send(ledger.Snapshot{Record: rec, Exists: true, Revision: entry.Revision()})
		}
	}
}

func (w *watcher) restart() (jetstream.KeyWatcher, error) {
	for attempt := 0; ; attempt++ {
		select {
		case <-w.ctx.Done():
			return nil, w.ctx.Err()
		case <-time.After(watchBackoff(attempt)):
		}
		kw, err := w.store.kv.Watch(w.ctx, w.ownerID)
		if err == nil {
			slog.Debug("Budget watch restarted", "owner_id", w.ownerID, "attempt", attempt+1)
			return kw, nil
		}
		w.reportError(ledger.Transport("watch restart", err))
	}
}

func (w *watcher) send(snap ledger.Snapshot) {
	select {
	case w.snaps <- snap:
	case <-w.ctx.Done():
	}
}

func (w *watcher) reportError(err error) {
	if err == nil {
		return
	}
	select {
	case w.errs <- ledger.Transport("watch", err):
	default:
	}
}

// watchBackoff doubles from one second up to a 30s cap.
func watchBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d > 30*time.Second || d <= 0 {
		return 30 * time.Second
	}
	return d
}
