package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/coupon"
)

// Repository is the persistence port for the cart aggregate.
type Repository interface {
	GetOrCreate(ctx context.Context, ownerID string) (Cart, error)
	Save(ctx context.Context, c *Cart) error
}

type PgRepo struct{ DB *pgxpool.Pool }

func (r *PgRepo) GetOrCreate(ctx context.Context, ownerID string) (Cart, error) {
	c, err := r.get(ctx, ownerID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, err
	}

	// Lazily created on first access. The partial unique index on
	// (owner_id) WHERE is_active guards the one-active-cart invariant,
	// so a racing create falls back to reading the winner's row.
	c = Cart{ID: uuid.New(), OwnerID: ownerID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO carts(id, owner_id, is_active) VALUES ($1, $2, TRUE)
		ON CONFLICT DO NOTHING`, c.ID, ownerID)
	if err != nil {
		return Cart{}, fmt.Errorf("create cart: %w", err)
	}
	return r.get(ctx, ownerID)
}

func (r *PgRepo) get(ctx context.Context, ownerID string) (Cart, error) {
	var c Cart
	var addr []byte
	err := r.DB.QueryRow(ctx, `
		SELECT id, owner_id, shipping_address, total_items, subtotal_minor, created_at, updated_at
		FROM carts WHERE owner_id=$1 AND is_active`, ownerID).
		Scan(&c.ID, &c.OwnerID, &addr, &c.TotalItems, &c.SubtotalMinor, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, err
	}
	if len(addr) > 0 {
		var a Address
		if err := json.Unmarshal(addr, &a); err != nil {
			return Cart{}, fmt.Errorf("decode shipping address: %w", err)
		}
		c.ShippingAddress = &a
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, product_id, vendor_id, quantity, unit_price_minor, size, color,
		       is_available, added_at, last_stock_check_at
		FROM cart_items WHERE cart_id=$1 ORDER BY added_at`, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VendorID, &it.Quantity, &it.UnitPriceMinor,
			&it.Variant.Size, &it.Variant.Color, &it.IsAvailable, &it.AddedAt, &it.LastStockCheck); err != nil {
			return Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Cart{}, err
	}

	crows, err := r.DB.Query(ctx, `
		SELECT code, discount_type, discount_value::text, applied_at
		FROM cart_coupons WHERE cart_id=$1 ORDER BY applied_at`, c.ID)
	if err != nil {
		return Cart{}, fmt.Errorf("load cart coupons: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var ac AppliedCoupon
		var typ, val string
		if err := crows.Scan(&ac.Code, &typ, &val, &ac.AppliedAt); err != nil {
			return Cart{}, err
		}
		ac.Type = coupon.DiscountType(typ)
		ac.Value, err = decimal.NewFromString(val)
		if err != nil {
			return Cart{}, fmt.Errorf("coupon value %q: %w", val, err)
		}
		c.Coupons = append(c.Coupons, ac)
	}
	return c, crows.Err()
}

// Save rewrites the item and coupon lists and persists totals recomputed
// from exactly what is being saved. Last write wins across owner tabs.
func (r *PgRepo) Save(ctx context.Context, c *Cart) error {
	c.RecomputeTotals()

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, c.ID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	for _, it := range c.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_items(id, cart_id, product_id, vendor_id, quantity, unit_price_minor,
			                       size, color, is_available, added_at, last_stock_check_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			it.ID, c.ID, it.ProductID, it.VendorID, it.Quantity, it.UnitPriceMinor,
			it.Variant.Size, it.Variant.Color, it.IsAvailable, it.AddedAt, it.LastStockCheck); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_coupons WHERE cart_id=$1`, c.ID); err != nil {
		return fmt.Errorf("clear coupons: %w", err)
	}
	for _, ac := range c.Coupons {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cart_coupons(cart_id, code, discount_type, discount_value, applied_at)
			VALUES ($1,$2,$3,$4,$5)`,
			c.ID, ac.Code, string(ac.Type), ac.Value.String(), ac.AppliedAt); err != nil {
			return fmt.Errorf("insert coupon: %w", err)
		}
	}

	var addr any
	if c.ShippingAddress != nil {
		b, err := json.Marshal(c.ShippingAddress)
		if err != nil {
			return fmt.Errorf("encode shipping address: %w", err)
		}
		addr = b
	}
	if _, err := tx.Exec(ctx, `
		UPDATE carts SET shipping_address=$2, total_items=$3, subtotal_minor=$4, updated_at=now()
		WHERE id=$1`, c.ID, addr, c.TotalItems, c.SubtotalMinor); err != nil {
		return fmt.Errorf("update cart: %w", err)
	}

	return tx.Commit(ctx)
}
