package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/marketplace-cart/internal/kvstore"
)

// writeBehind writes cart snapshots from a single goroutine, so the stored value follows
// mutation order. Snapshots queued while a write is in flight collapse to the newest one.
type writeBehind struct {
	kv      kvstore.Store
	key     string
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	pending []byte
	queued  uint64 // sequence of the newest enqueued snapshot
	written uint64 // sequence of the newest attempted snapshot
	waiters []flushWaiter
	closed  bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

type flushWaiter struct {
	seq  uint64
	done chan struct{}
}

func newWriteBehind(kv kvstore.Store, key string, timeout time.Duration, log *slog.Logger) *writeBehind {
	w := &writeBehind{
		kv:      kv,
		key:     key,
		timeout: timeout,
		log:     log,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

func (w *writeBehind) enqueue(snapshot []byte) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.log.Debug("cart store closed, change kept in memory only")
		return
	}
	w.pending = snapshot
	w.queued++
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writeBehind) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *writeBehind) drain() {
	for {
		w.mu.Lock()
		if w.pending == nil {
			w.mu.Unlock()
			return
		}
		snapshot, seq := w.pending, w.queued
		w.pending = nil
		w.mu.Unlock()

		w.write(snapshot)

		w.mu.Lock()
		w.written = seq
		kept := w.waiters[:0]
		for _, fw := range w.waiters {
			if fw.seq <= seq {
				close(fw.done)
			} else {
				kept = append(kept, fw)
			}
		}
		w.waiters = kept
		w.mu.Unlock()
	}
}

func (w *writeBehind) write(snapshot []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := w.kv.Set(ctx, w.key, string(snapshot)); err != nil {
		// no retry: the next mutation writes the whole cart again
		w.log.Warn("failed to persist cart", "error", err)
	}
}

func (w *writeBehind) flush(ctx context.Context) error {
	w.mu.Lock()
	if w.written >= w.queued {
		w.mu.Unlock()
		return nil
	}
	fw := flushWaiter{seq: w.queued, done: make(chan struct{})}
	w.waiters = append(w.waiters, fw)
	w.mu.Unlock()

	select {
	case <-fw.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writeBehind) close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return w.flush(ctx)
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stop)

	stopped := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
