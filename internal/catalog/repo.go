package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, vendor_id, name, category, images, price_minor, currency,
		       is_active, is_approved, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.VendorID, &p.Name, &p.Category, &p.Images, &p.PriceMinor,
			&p.Currency, &p.IsActive, &p.IsApproved, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, apperr.Newf(apperr.KindNotFound, "product %s not found", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *Repo) GetVendor(ctx context.Context, id uuid.UUID) (Vendor, error) {
	var v Vendor
	err := r.DB.QueryRow(ctx, `
		SELECT id, shop_id, name, store_name, location FROM vendors WHERE id=$1`, id).
		Scan(&v.ID, &v.ShopID, &v.Name, &v.StoreName, &v.Location)
	if errors.Is(err, pgx.ErrNoRows) {
		return Vendor{}, apperr.Newf(apperr.KindNotFound, "vendor %s not found", id)
	}
	if err != nil {
		return Vendor{}, fmt.Errorf("get vendor: %w", err)
	}
	return v, nil
}

// GetProducts loads a batch keyed by id; missing ids are simply absent from the map.
func (r *Repo) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, vendor_id, name, category, images, price_minor, currency,
		       is_active, is_approved, created_at, updated_at
		FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.Category, &p.Images, &p.PriceMinor,
			&p.Currency, &p.IsActive, &p.IsApproved, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) GetVendors(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Vendor, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, shop_id, name, store_name, location FROM vendors WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get vendors: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]Vendor, len(ids))
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.ShopID, &v.Name, &v.StoreName, &v.Location); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}
