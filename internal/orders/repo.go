package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
)

// IntentRecord tracks a gateway intent and its at-most-one order.
type IntentRecord struct {
	IntentID    string
	OwnerID     string
	CartID      uuid.UUID
	AmountMinor int64
	Currency    string
	Status      string // created | captured | failed
	OrderID     *uuid.UUID
	CreatedAt   time.Time
}

const (
	IntentCreated  = "created"
	IntentCaptured = "captured"
	IntentFailed   = "failed"
)

// Store is the persistence port for orders. WithOrder runs fn against the
// locked, fully-loaded order and persists the mutation plus any restocks in
// one transaction.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetOrderByIntent(ctx context.Context, intentID string) (*Order, error)
	ListOrders(ctx context.Context, customerID string) ([]Order, error)
	CreateOrder(ctx context.Context, o *Order, cartID uuid.UUID) (*Order, error)
	WithOrder(ctx context.Context, id uuid.UUID, fn func(o *Order) ([]RestockLine, error)) (Order, error)

	SaveIntent(ctx context.Context, rec IntentRecord) error
	GetIntent(ctx context.Context, intentID string) (IntentRecord, error)
	UpdateIntentStatus(ctx context.Context, intentID, status string) error
}

type PgStore struct{ DB *pgxpool.Pool }

const maxNumberRetries = 3

// CreateOrder persists the assembled order as a single atomic unit:
// claim the intent, decrement stock (guarded), write all rows, clear the
// cart. A replayed intent returns the already-created order untouched.
func (s *PgStore) CreateOrder(ctx context.Context, o *Order, cartID uuid.UUID) (*Order, error) {
	for attempt := 0; ; attempt++ {
		created, err := s.createOrderOnce(ctx, o, cartID)
		if err == nil {
			return created, nil
		}
		if isOrderNumberCollision(err) && attempt < maxNumberRetries {
			o.OrderNumber = NewOrderNumber(time.Now())
			continue
		}
		return nil, err
	}
}

func (s *PgStore) createOrderOnce(ctx context.Context, o *Order, cartID uuid.UUID) (_ *Order, err error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Klaim intent dengan lock; replay langsung return order lama.
	var existingID *uuid.UUID
	err = tx.QueryRow(ctx, `SELECT order_id FROM payment_intents WHERE intent_id=$1 FOR UPDATE`, o.IntentID).
		Scan(&existingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "payment intent %s not found", o.IntentID)
	}
	if err != nil {
		return nil, fmt.Errorf("claim intent: %w", err)
	}
	if existingID != nil {
		existing, err := s.GetOrder(ctx, *existingID)
		if err != nil {
			return nil, err
		}
		return &existing, nil
	}

	// Stock decrement inside the same tx: all lines or nothing.
	ledger := &inventory.PgLedger{DB: tx}
	for _, it := range o.Items {
		if err := ledger.Decrement(ctx, it.ProductID, it.Variant, it.Quantity); err != nil {
			return nil, err
		}
	}

	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, customer_id, payment_intent_id,
		                   subtotal_minor, tax_minor, shipping_minor, discount_minor, total_minor,
		                   currency, status, payment_status, payment_method, payment_gateway,
		                   transaction_id, shipping_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.OrderNumber, o.CustomerID, o.IntentID,
		o.SubtotalMinor, o.TaxMinor, o.ShippingMinor, o.DiscountMinor, o.TotalMinor,
		o.Currency, string(o.Status), string(o.PaymentStatus), o.PaymentMethod, o.PaymentGateway,
		o.TransactionID, addr, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		ps, err := json.Marshal(it.Product)
		if err != nil {
			return nil, fmt.Errorf("encode product snapshot: %w", err)
		}
		vs, err := json.Marshal(it.Vendor)
		if err != nil {
			return nil, fmt.Errorf("encode vendor snapshot: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, vendor_id, shop_id, quantity,
			                        unit_price_minor, size, color, product_snapshot, vendor_snapshot,
			                        status, tracking_number, tracking_carrier,
			                        refund_amount_minor, refund_reason, refunded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
			it.ID, o.ID, it.ProductID, it.VendorID, it.ShopID, it.Quantity,
			it.UnitPriceMinor, it.Variant.Size, it.Variant.Color, ps, vs,
			string(it.Status), it.TrackingNumber, it.TrackingCarrier,
			it.RefundAmountMinor, it.RefundReason, it.RefundedAt); err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	for _, g := range o.VendorGroups {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_vendor_groups(order_id, vendor_id, shop_id, subtotal_minor, status)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, g.VendorID, g.ShopID, g.SubtotalMinor, string(g.Status)); err != nil {
			return nil, fmt.Errorf("insert vendor group: %w", err)
		}
	}

	for _, h := range o.StatusHistory {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_status_history(order_id, status, actor, reason, note, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, string(h.Status), h.Actor, h.Reason, h.Note, h.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert history: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_intents SET order_id=$2, status=$3, updated_at=now() WHERE intent_id=$1`,
		o.IntentID, o.ID, IntentCaptured); err != nil {
		return nil, fmt.Errorf("mark intent captured: %w", err)
	}

	// Clear the cart in place: same identity, empty content, cached address.
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return nil, fmt.Errorf("clear cart items: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_coupons WHERE cart_id=$1`, cartID); err != nil {
		return nil, fmt.Errorf("clear cart coupons: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE carts SET total_items=0, subtotal_minor=0, shipping_address=$2, updated_at=now()
		WHERE id=$1`, cartID, addr); err != nil {
		return nil, fmt.Errorf("reset cart: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func isOrderNumberCollision(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
}

func (s *PgStore) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return s.loadOrder(ctx, s.DB, id)
}

func (s *PgStore) GetOrderByIntent(ctx context.Context, intentID string) (*Order, error) {
	var id uuid.UUID
	err := s.DB.QueryRow(ctx, `
		SELECT order_id FROM payment_intents WHERE intent_id=$1 AND order_id IS NOT NULL`, intentID).
		Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup intent order: %w", err)
	}
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PgStore) loadOrder(ctx context.Context, q queryer, id uuid.UUID) (Order, error) {
	var o Order
	var addr []byte
	var status, payStatus string
	err := q.QueryRow(ctx, `
		SELECT id, order_number, customer_id, payment_intent_id,
		       subtotal_minor, tax_minor, shipping_minor, discount_minor, total_minor,
		       currency, status, payment_status, payment_method, payment_gateway,
		       transaction_id, shipping_address, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.IntentID,
			&o.SubtotalMinor, &o.TaxMinor, &o.ShippingMinor, &o.DiscountMinor, &o.TotalMinor,
			&o.Currency, &status, &payStatus, &o.PaymentMethod, &o.PaymentGateway,
			&o.TransactionID, &addr, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.Newf(apperr.KindNotFound, "order %s not found", id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(payStatus)
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return Order{}, fmt.Errorf("decode address: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, product_id, vendor_id, shop_id, quantity, unit_price_minor, size, color,
		       product_snapshot, vendor_snapshot, status, tracking_number, tracking_carrier,
		       refund_amount_minor, refund_reason, refunded_at
		FROM order_items WHERE order_id=$1 ORDER BY id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it OrderItem
		var ps, vs []byte
		var st string
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VendorID, &it.ShopID, &it.Quantity,
			&it.UnitPriceMinor, &it.Variant.Size, &it.Variant.Color, &ps, &vs, &st,
			&it.TrackingNumber, &it.TrackingCarrier,
			&it.RefundAmountMinor, &it.RefundReason, &it.RefundedAt); err != nil {
			return Order{}, err
		}
		it.OrderID = o.ID
		it.Status = Status(st)
		if err := json.Unmarshal(ps, &it.Product); err != nil {
			return Order{}, fmt.Errorf("decode product snapshot: %w", err)
		}
		if err := json.Unmarshal(vs, &it.Vendor); err != nil {
			return Order{}, fmt.Errorf("decode vendor snapshot: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}

	grows, err := q.Query(ctx, `
		SELECT vendor_id, shop_id, subtotal_minor, status
		FROM order_vendor_groups WHERE order_id=$1 ORDER BY vendor_id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("load vendor groups: %w", err)
	}
	defer grows.Close()
	for grows.Next() {
		var g VendorOrderGroup
		var st string
		if err := grows.Scan(&g.VendorID, &g.ShopID, &g.SubtotalMinor, &st); err != nil {
			return Order{}, err
		}
		g.Status = Status(st)
		o.VendorGroups = append(o.VendorGroups, g)
	}
	if err := grows.Err(); err != nil {
		return Order{}, err
	}

	hrows, err := q.Query(ctx, `
		SELECT status, actor, reason, note, created_at
		FROM order_status_history WHERE order_id=$1 ORDER BY created_at, id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("load history: %w", err)
	}
	defer hrows.Close()
	for hrows.Next() {
		var h StatusHistoryEntry
		var st string
		if err := hrows.Scan(&st, &h.Actor, &h.Reason, &h.Note, &h.CreatedAt); err != nil {
			return Order{}, err
		}
		h.Status = Status(st)
		o.StatusHistory = append(o.StatusHistory, h)
	}
	if err := hrows.Err(); err != nil {
		return Order{}, err
	}

	o.RebuildGroupIndexes()
	return o, nil
}

func (s *PgStore) ListOrders(ctx context.Context, customerID string) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_number, subtotal_minor, tax_minor, shipping_minor, discount_minor,
		       total_minor, currency, status, payment_status, created_at
		FROM orders WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var status, payStatus string
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.SubtotalMinor, &o.TaxMinor, &o.ShippingMinor,
			&o.DiscountMinor, &o.TotalMinor, &o.Currency, &status, &payStatus, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.CustomerID = customerID
		o.Status = Status(status)
		o.PaymentStatus = PaymentStatus(payStatus)
		out = append(out, o)
	}
	return out, rows.Err()
}

// WithOrder locks the order row, loads the aggregate, applies fn and
// persists the result plus any restocks atomically.
func (s *PgStore) WithOrder(ctx context.Context, id uuid.UUID, fn func(o *Order) ([]RestockLine, error)) (Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.Newf(apperr.KindNotFound, "order %s not found", id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("lock order: %w", err)
	}

	o, err := s.loadOrder(ctx, tx, id)
	if err != nil {
		return Order{}, err
	}
	historyBefore := len(o.StatusHistory)

	restock, err := fn(&o)
	if err != nil {
		return Order{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, updated_at=$4 WHERE id=$1`,
		o.ID, string(o.Status), string(o.PaymentStatus), o.UpdatedAt); err != nil {
		return Order{}, fmt.Errorf("update order: %w", err)
	}
	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			UPDATE order_items SET status=$2, tracking_number=$3, tracking_carrier=$4,
			       refund_amount_minor=$5, refund_reason=$6, refunded_at=$7
			WHERE id=$1`,
			it.ID, string(it.Status), it.TrackingNumber, it.TrackingCarrier,
			it.RefundAmountMinor, it.RefundReason, it.RefundedAt); err != nil {
			return Order{}, fmt.Errorf("update item: %w", err)
		}
	}
	for _, g := range o.VendorGroups {
		if _, err := tx.Exec(ctx, `
			UPDATE order_vendor_groups SET status=$3 WHERE order_id=$1 AND vendor_id=$2`,
			o.ID, g.VendorID, string(g.Status)); err != nil {
			return Order{}, fmt.Errorf("update group: %w", err)
		}
	}
	for _, h := range o.StatusHistory[historyBefore:] {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_status_history(order_id, status, actor, reason, note, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, string(h.Status), h.Actor, h.Reason, h.Note, h.CreatedAt); err != nil {
			return Order{}, fmt.Errorf("append history: %w", err)
		}
	}

	ledger := &inventory.PgLedger{DB: tx}
	for _, rl := range restock {
		if err := ledger.Restore(ctx, rl.ProductID, rl.Variant, rl.Qty); err != nil {
			return Order{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (s *PgStore) SaveIntent(ctx context.Context, rec IntentRecord) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO payment_intents(intent_id, owner_id, cart_id, amount_minor, currency, status)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		rec.IntentID, rec.OwnerID, rec.CartID, rec.AmountMinor, rec.Currency, rec.Status)
	if err != nil {
		return fmt.Errorf("save intent: %w", err)
	}
	return nil
}

func (s *PgStore) GetIntent(ctx context.Context, intentID string) (IntentRecord, error) {
	var rec IntentRecord
	err := s.DB.QueryRow(ctx, `
		SELECT intent_id, owner_id, cart_id, amount_minor, currency, status, order_id, created_at
		FROM payment_intents WHERE intent_id=$1`, intentID).
		Scan(&rec.IntentID, &rec.OwnerID, &rec.CartID, &rec.AmountMinor, &rec.Currency,
			&rec.Status, &rec.OrderID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return IntentRecord{}, apperr.Newf(apperr.KindNotFound, "payment intent %s not found", intentID)
	}
	if err != nil {
		return IntentRecord{}, fmt.Errorf("get intent: %w", err)
	}
	return rec, nil
}

func (s *PgStore) UpdateIntentStatus(ctx context.Context, intentID, status string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payment_intents SET status=$2, updated_at=now() WHERE intent_id=$1`, intentID, status)
	if err != nil {
		return fmt.Errorf("update intent status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.Newf(apperr.KindNotFound, "payment intent %s not found", intentID)
	}
	return nil
}

// interface guard
var _ Store = (*PgStore)(nil)
