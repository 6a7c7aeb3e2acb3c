package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

// Variant selects a (size, color) stock bucket; the zero value is the
// single bucket of a simple product.
type Variant struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

func (v Variant) String() string {
	if v.Size == "" && v.Color == "" {
		return "-"
	}
	return v.Size + "/" + v.Color
}

// Ledger is the authoritative stock counter per product/variant.
type Ledger interface {
	Stock(ctx context.Context, productID uuid.UUID, v Variant) (int, error)
	// Decrement is a guarded compare-and-subtract: it fails with OutOfStock
	// when available stock < qty and never lets stock go negative.
	Decrement(ctx context.Context, productID uuid.UUID, v Variant, qty int) error
	Restore(ctx context.Context, productID uuid.UUID, v Variant, qty int) error
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so the same ledger code
// runs standalone and inside the checkout transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgLedger struct{ DB DBTX }

func (l *PgLedger) Stock(ctx context.Context, productID uuid.UUID, v Variant) (int, error) {
	var stock int
	err := l.DB.QueryRow(ctx, `
		SELECT stock FROM inventory WHERE product_id=$1 AND size=$2 AND color=$3`,
		productID, v.Size, v.Color).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Newf(apperr.KindNotFound, "no stock record for product %s variant %s", productID, v)
	}
	if err != nil {
		return 0, fmt.Errorf("stock query: %w", err)
	}
	return stock, nil
}

func (l *PgLedger) Decrement(ctx context.Context, productID uuid.UUID, v Variant, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive")
	}

	// Satu statement atomik, bukan read-then-write.
	ct, err := l.DB.Exec(ctx, `
		UPDATE inventory SET stock = stock - $4, updated_at = now()
		WHERE product_id=$1 AND size=$2 AND color=$3 AND stock >= $4`,
		productID, v.Size, v.Color, qty)
	if err != nil {
		return fmt.Errorf("decrement: %w", err)
	}
	if ct.RowsAffected() == 0 {
		if _, err := l.Stock(ctx, productID, v); err != nil {
			return err // no stock row at all
		}
		return apperr.Newf(apperr.KindOutOfStock, "insufficient stock for product %s variant %s", productID, v)
	}
	return nil
}

func (l *PgLedger) Restore(ctx context.Context, productID uuid.UUID, v Variant, qty int) error {
	if qty <= 0 {
		return apperr.New(apperr.KindValidation, "quantity must be positive")
	}
	ct, err := l.DB.Exec(ctx, `
		UPDATE inventory SET stock = stock + $4, updated_at = now()
		WHERE product_id=$1 AND size=$2 AND color=$3`,
		productID, v.Size, v.Color, qty)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "no stock record for product %s variant %s", productID, v)
	}
	return nil
}
