package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/fjod/go_cart/marketplace-cart/internal/domain"
	"github.com/fjod/go_cart/marketplace-cart/internal/kvstore"
)

// DefaultKey is where the cart of the default session is saved.
const DefaultKey = "@GoMarketplace:products"

// KeyFor returns the storage key of a cart session. The empty id maps to DefaultKey.
func KeyFor(cartID string) string {
	if cartID == "" {
		return DefaultKey
	}
	return DefaultKey + ":" + cartID
}

// Store holds one cart in memory and mirrors it to a key-value store.
// Mutations apply immediately; persistence happens in the background, in order.
type Store struct {
	mu       sync.Mutex
	products []domain.Item
	hydrated bool

	kv      kvstore.Store
	key     string
	timeout time.Duration
	log     *slog.Logger
	wb      *writeBehind
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithTimeout bounds every single storage call made by the store.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

func NewStore(kv kvstore.Store, opts ...Option) *Store {
	s := &Store{
		products: []domain.Item{},
		kv:       kv,
		key:      DefaultKey,
		timeout:  5 * time.Second,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("key", s.key)
	s.wb = newWriteBehind(kv, s.key, s.timeout, s.log)
	return s
}

// Load hydrates the cart from storage. Only the first call before any mutation has an effect;
// a missing or unreadable saved cart leaves the cart empty. The returned error reports a failed
// read, after which the cart is empty but usable.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	done := s.hydrated
	s.mu.Unlock()
	if done {
		return nil
	}

	items, err := s.readSaved(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil // a mutation got in first; memory is the source of truth now
	}
	s.hydrated = true
	if items != nil {
		s.products = items
	}
	return err
}

func (s *Store) readSaved(ctx context.Context) ([]domain.Item, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.WarnContext(ctx, "failed to read saved cart", "error", err)
		return nil, err
	}

	var items []domain.Item
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.WarnContext(ctx, "saved cart is not valid JSON, starting empty", "error", err)
		return nil, nil
	}
	return normalize(items), nil
}

// normalize restores the cart invariants on data read from outside:
// ids are unique (first wins) and quantities are never negative.
func normalize(items []domain.Item) []domain.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		if item.Quantity < 0 {
			item.Quantity = 0
		}
		out = append(out, item)
	}
	return out
}

// Products returns a copy of the cart in insertion order.
func (s *Store) Products() []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

// AddToCart appends the item with quantity 1, or increments it when the id is already in the cart.
func (s *Store) AddToCart(details domain.ItemDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(details.ID) >= 0 {
		s.increment(details.ID)
	} else {
		s.products = append(s.products, domain.NewItem(details))
	}
	s.persist()
}

// Increment raises the quantity of id by one. Unknown ids are ignored.
func (s *Store) Increment(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.increment(id)
	s.persist()
}

// Decrement lowers the quantity of id by one, stopping at zero. The item stays in the cart.
func (s *Store) Decrement(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		s.products[i].Quantity = max(s.products[i].Quantity-1, 0)
	}
	s.persist()
}

// Flush waits until every change made before the call has been written (or has failed).
func (s *Store) Flush(ctx context.Context) error {
	return s.wb.flush(ctx)
}

// Close flushes pending writes and stops persistence. The cart stays usable in memory.
func (s *Store) Close(ctx context.Context) error {
	return s.wb.close(ctx)
}

func (s *Store) increment(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.products[i].Quantity++
	}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.products, func(item domain.Item) bool {
		return item.ID == id
	})
}

// persist must be called with mu held so snapshots are queued in mutation order.
func (s *Store) persist() {
	s.hydrated = true

	snapshot, err := json.Marshal(s.products)
	if err != nil {
		s.log.Error("failed to encode cart", "error", err)
		return
	}
	s.wb.enqueue(snapshot)
}
