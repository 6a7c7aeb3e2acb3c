package inventory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

type bucket struct {
	productID uuid.UUID
	variant   Variant
}

// MemoryLedger keeps the same semantics as PgLedger behind a mutex.
// Used by tests and local development without Postgres.
type MemoryLedger struct {
	mu     sync.Mutex
	stocks map[bucket]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{stocks: make(map[bucket]int)}
}

func (l *MemoryLedger) Seed(productID uuid.UUID, v Variant, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stocks[bucket{productID, v}] = stock
}

func (l *MemoryLedger) Stock(_ context.Context, productID uuid.UUID, v Variant) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.stocks[bucket{productID, v}]
	if !ok {
		return 0, apperr.Newf(apperr.KindNotFound, "no stock record for product %s variant %s", productID, v)
	}
	return s, nil
}

func (l *MemoryLedger) Decrement(_ context.Context, productID uuid.UUID, v Variant, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := bucket{productID, v}
	s, ok := l.stocks[k]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "no stock record for product %s variant %s", productID, v)
	}
	if s < qty {
		return apperr.Newf(apperr.KindOutOfStock, "insufficient stock for product %s variant %s", productID, v)
	}
	l.stocks[k] = s - qty
	return nil
}

func (l *MemoryLedger) Restore(_ context.Context, productID uuid.UUID, v Variant, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := bucket{productID, v}
	if _, ok := l.stocks[k]; !ok {
		return apperr.Newf(apperr.KindNotFound, "no stock record for product %s variant %s", productID, v)
	}
	l.stocks[k] += qty
	return nil
}
