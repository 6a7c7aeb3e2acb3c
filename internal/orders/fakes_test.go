package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
)

// fakeStore mimics the transactional store semantics in memory: intents own
// at most one order, creation decrements the ledger, WithOrder applies the
// mutation and restocks atomically under the mutex.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]*Order
	intents map[string]*IntentRecord
	ledger  *inventory.MemoryLedger
	creates int // real order inserts, replays excluded
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  make(map[uuid.UUID]*Order),
		intents: make(map[string]*IntentRecord),
		ledger:  inventory.NewMemoryLedger(),
	}
}

func cloneOrder(o *Order) Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.VendorGroups = append([]VendorOrderGroup(nil), o.VendorGroups...)
	for i := range c.VendorGroups {
		c.VendorGroups[i].Items = append([]int(nil), o.VendorGroups[i].Items...)
	}
	c.StatusHistory = append([]StatusHistoryEntry(nil), o.StatusHistory...)
	return c
}

func (s *fakeStore) GetOrder(_ context.Context, id uuid.UUID) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.Newf(apperr.KindNotFound, "order %s not found", id)
	}
	return cloneOrder(o), nil
}

func (s *fakeStore) GetOrderByIntent(_ context.Context, intentID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.intents[intentID]
	if !ok || rec.OrderID == nil {
		return nil, nil
	}
	c := cloneOrder(s.orders[*rec.OrderID])
	return &c, nil
}

func (s *fakeStore) ListOrders(_ context.Context, customerID string) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.CustomerID == customerID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o *Order, _ uuid.UUID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.intents[o.IntentID]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "payment intent %s not found", o.IntentID)
	}
	if rec.OrderID != nil {
		c := cloneOrder(s.orders[*rec.OrderID])
		return &c, nil
	}

	for i, it := range o.Items {
		if err := s.ledger.Decrement(ctx, it.ProductID, it.Variant, it.Quantity); err != nil {
			// Roll the earlier lines back like the real transaction would.
			for _, done := range o.Items[:i] {
				_ = s.ledger.Restore(ctx, done.ProductID, done.Variant, done.Quantity)
			}
			return nil, err
		}
	}

	c := cloneOrder(o)
	s.orders[o.ID] = &c
	id := o.ID
	rec.OrderID = &id
	rec.Status = IntentCaptured
	s.creates++

	out := cloneOrder(&c)
	return &out, nil
}

func (s *fakeStore) WithOrder(ctx context.Context, id uuid.UUID, fn func(o *Order) ([]RestockLine, error)) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[id]
	if !ok {
		return Order{}, apperr.Newf(apperr.KindNotFound, "order %s not found", id)
	}

	work := cloneOrder(stored)
	restock, err := fn(&work)
	if err != nil {
		return Order{}, err
	}
	for _, rl := range restock {
		if err := s.ledger.Restore(ctx, rl.ProductID, rl.Variant, rl.Qty); err != nil {
			return Order{}, err
		}
	}

	persisted := cloneOrder(&work)
	s.orders[id] = &persisted
	return work, nil
}

func (s *fakeStore) SaveIntent(_ context.Context, rec IntentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents[rec.IntentID] = &rec
	return nil
}

func (s *fakeStore) GetIntent(_ context.Context, intentID string) (IntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.intents[intentID]
	if !ok {
		return IntentRecord{}, apperr.Newf(apperr.KindNotFound, "payment intent %s not found", intentID)
	}
	return *rec, nil
}

func (s *fakeStore) UpdateIntentStatus(_ context.Context, intentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.intents[intentID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "payment intent %s not found", intentID)
	}
	rec.Status = status
	return nil
}

var _ Store = (*fakeStore)(nil)

// fakeCarts serves one in-memory cart per owner.
type fakeCarts struct {
	mu          sync.Mutex
	carts       map[string]*cart.Cart
	invalidated int
}

func newFakeCarts() *fakeCarts { return &fakeCarts{carts: make(map[string]*cart.Cart)} }

func (f *fakeCarts) put(c cart.Cart) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.RecomputeTotals()
	f.carts[c.OwnerID] = &c
}

func (f *fakeCarts) GetCart(_ context.Context, ownerID string) (cart.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.carts[ownerID]; ok {
		return *c, nil
	}
	return cart.Cart{ID: uuid.New(), OwnerID: ownerID}, nil
}

func (f *fakeCarts) SetAddress(_ context.Context, ownerID string, a cart.Address) (cart.Cart, error) {
	if err := a.Validate(); err != nil {
		return cart.Cart{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[ownerID]
	if !ok {
		c = &cart.Cart{ID: uuid.New(), OwnerID: ownerID}
		f.carts[ownerID] = c
	}
	c.ShippingAddress = &a
	return *c, nil
}

func (f *fakeCarts) CheckAvailability(ctx context.Context, ownerID string) (cart.Cart, error) {
	return f.GetCart(ctx, ownerID)
}

func (f *fakeCarts) InvalidateCache(string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

var _ CartProvider = (*fakeCarts)(nil)

type fakeCatalog struct {
	products map[uuid.UUID]catalog.Product
	vendors  map[uuid.UUID]catalog.Vendor
}

func (f *fakeCatalog) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return catalog.Product{}, apperr.Newf(apperr.KindNotFound, "product %s not found", id)
	}
	return p, nil
}

func (f *fakeCatalog) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error) {
	out := make(map[uuid.UUID]catalog.Product)
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetVendors(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Vendor, error) {
	out := make(map[uuid.UUID]catalog.Vendor)
	for _, id := range ids {
		if v, ok := f.vendors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

var _ cart.CatalogReader = (*fakeCatalog)(nil)

// fakeGateway hands out sequential intent and refund ids.
type fakeGateway struct {
	mu               sync.Mutex
	intents          int
	refunds          int
	failNext         error
	refundErr        error
	lastRefundAmount int64
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, cur string, _ map[string]string) (payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext != nil {
		err := g.failNext
		g.failNext = nil
		return payment.Intent{}, err
	}
	g.intents++
	return payment.Intent{ID: fmt.Sprintf("intent_%03d", g.intents), AmountMinor: amountMinor, Currency: cur}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amountMinor int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds++
	g.lastRefundAmount = amountMinor
	return fmt.Sprintf("rfnd_%03d", g.refunds), nil
}

var _ payment.Gateway = (*fakeGateway)(nil)

type fakeSink struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (f *fakeSink) Publish(_, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, value)
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeCache struct {
	mu       sync.Mutex
	intents  map[string]uuid.UUID
	statuses map[uuid.UUID]statusSnapshot
}

func newFakeCache() *fakeCache {
	return &fakeCache{intents: make(map[string]uuid.UUID), statuses: make(map[uuid.UUID]statusSnapshot)}
}

func (c *fakeCache) OrderIDForIntent(_ context.Context, intentID string) (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.intents[intentID]
	return id, ok
}

func (c *fakeCache) RememberIntent(_ context.Context, intentID string, orderID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents[intentID] = orderID
}

func (c *fakeCache) SetStatus(_ context.Context, orderID uuid.UUID, status Status, payStatus PaymentStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[orderID] = statusSnapshot{Status: string(status), PaymentStatus: string(payStatus)}
}

var _ Cache = (*fakeCache)(nil)

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *fakeDedup) Seen(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[id] {
		return true
	}
	d.seen[id] = true
	return false
}
