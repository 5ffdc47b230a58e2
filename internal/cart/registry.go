package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_cart/marketplace-cart/internal/kvstore"
	"golang.org/x/sync/singleflight"
)

var (
	ErrRegistryClosed = errors.New("cart registry is closed")
	ErrLoadFailed     = errors.New("saved cart could not be read")
)

type entry struct {
	store    *Store
	lastUsed atomic.Int64 // unix nanos
}

// Registry owns the live cart of every session. Carts idle for longer than the
// eviction window are flushed and dropped; the next Open reloads them from storage.
type Registry struct {
	kv      kvstore.Store
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time

	sfg      singleflight.Group // one hydration per cart id
	mu       sync.RWMutex
	stores   map[string]*entry
	evicting map[string]chan struct{}
	closed   bool
}

func NewRegistry(kv kvstore.Store, log *slog.Logger, timeout time.Duration) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Registry{
		kv:       kv,
		log:      log,
		timeout:  timeout,
		now:      time.Now,
		stores:   make(map[string]*entry),
		evicting: make(map[string]chan struct{}),
	}
}

// Open returns the cart of cartID, loading it from storage on first use.
// A cart whose saved copy could not be read is not kept, so the next Open retries.
func (r *Registry) Open(ctx context.Context, cartID string) (*Store, error) {
	if s, err := r.await(ctx, cartID); s != nil || err != nil {
		return s, err
	}

	v, err, _ := r.sfg.Do(cartID, func() (interface{}, error) {
		if s, err := r.await(ctx, cartID); s != nil || err != nil {
			return s, err
		}

		s := NewStore(r.kv,
			WithKey(KeyFor(cartID)),
			WithLogger(r.log.With("cart_id", cartID)),
			WithTimeout(r.timeout),
		)

		// a caller giving up must not leave the session hydrated as empty
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := s.Load(loadCtx); err != nil {
			_ = s.Close(loadCtx)
			return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
		}

		e := &entry{store: s}
		e.lastUsed.Store(r.now().UnixNano())

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			_ = s.Close(loadCtx)
			return nil, ErrRegistryClosed
		}
		r.stores[cartID] = e
		r.mu.Unlock()

		r.log.DebugContext(ctx, "cart opened", "cart_id", cartID, "items", len(s.Products()))
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Store), nil
}

// Len reports how many carts are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// EvictIdle flushes and drops every cart not opened within idle. It returns how many were dropped.
func (r *Registry) EvictIdle(ctx context.Context, idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()

	type victim struct {
		id    string
		store *Store
		done  chan struct{}
	}

	r.mu.Lock()
	var victims []victim
	for id, e := range r.stores {
		if e.lastUsed.Load() > cutoff {
			continue
		}
		done := make(chan struct{})
		r.evicting[id] = done
		delete(r.stores, id)
		victims = append(victims, victim{id: id, store: e.store, done: done})
	}
	r.mu.Unlock()

	for _, v := range victims {
		if err := v.store.Close(ctx); err != nil {
			r.log.WarnContext(ctx, "evicted cart not fully flushed", "cart_id", v.id, "error", err)
		}

		r.mu.Lock()
		delete(r.evicting, v.id)
		r.mu.Unlock()
		close(v.done)
	}

	if len(victims) > 0 {
		r.log.DebugContext(ctx, "idle carts evicted", "count", len(victims))
	}
	return len(victims)
}

// RunJanitor evicts carts idle for longer than idle every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evictCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
			r.EvictIdle(evictCtx, idle)
			cancel()
		}
	}
}

// Close flushes and stops every cart. Open fails afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	stores := make([]*Store, 0, len(r.stores))
	for _, e := range r.stores {
		stores = append(stores, e.store)
	}
	r.mu.Unlock()

	var errs []error
	for _, s := range stores {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// await returns the live cart of cartID, if any. While the cart is being evicted it waits
// for the flush to finish, so a reload never reads a stale saved copy.
func (r *Registry) await(ctx context.Context, cartID string) (*Store, error) {
	for {
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			return nil, ErrRegistryClosed
		}
		e, done := r.stores[cartID], r.evicting[cartID]
		if e != nil {
			e.lastUsed.Store(r.now().UnixNano())
		}
		r.mu.RUnlock()

		if e != nil {
			return e.store, nil
		}
		if done == nil {
			return nil, nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
