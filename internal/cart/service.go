package cart

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/coupon"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
)

// CatalogReader is the read-side catalog port.
type CatalogReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Product, error)
	GetVendors(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]catalog.Vendor, error)
}

type Service struct {
	Repo    Repository
	Catalog CatalogReader
	Ledger  inventory.Ledger
	Coupons *coupon.Engine
	Cache   Cache

	sfg singleflight.Group // cegah cache stampede per owner
}

// GetCart returns the owner's active cart with populated product/vendor
// summaries, creating it lazily on first access.
func (s *Service) GetCart(ctx context.Context, ownerID string) (Cart, error) {
	v, err, _ := s.sfg.Do(ownerID, func() (any, error) {
		if s.Cache != nil {
			if c, err := s.Cache.Get(ctx, ownerID); err == nil {
				return *c, nil
			} else if !errors.Is(err, ErrCacheMiss) {
				slog.Warn("cart cache get", "owner_id", ownerID, "err", err)
			}
		}

		c, err := s.Repo.GetOrCreate(ctx, ownerID)
		if err != nil {
			return Cart{}, err
		}
		if err := s.populate(ctx, &c); err != nil {
			return Cart{}, err
		}

		if s.Cache != nil {
			if err := s.Cache.Set(ctx, ownerID, &c); err != nil {
				slog.Warn("cart cache set", "owner_id", ownerID, "err", err)
			}
		}
		return c, nil
	})
	if err != nil {
		return Cart{}, err
	}
	return v.(Cart), nil
}

func (s *Service) AddItem(ctx context.Context, ownerID string, productID uuid.UUID, qty int, variant inventory.Variant) (Cart, error) {
	if qty < 1 {
		return Cart{}, apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}

	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if !p.Purchasable() {
		return Cart{}, apperr.New(apperr.KindValidation, "product is not available for purchase")
	}

	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}

	want := qty
	if line := c.findLine(productID, variant); line != nil {
		want += line.Quantity
	}
	stock, err := s.Ledger.Stock(ctx, productID, variant)
	if err != nil {
		return Cart{}, err
	}
	if stock < want {
		return Cart{}, apperr.Newf(apperr.KindOutOfStock, "only %d in stock", stock)
	}

	// Harga selalu di-stamp ulang dari katalog, jangan trust nilai lama.
	c.MergeItem(productID, p.VendorID, variant, qty, p.PriceMinor, time.Now().UTC())
	return s.saveAndReload(ctx, &c)
}

func (s *Service) UpdateQuantity(ctx context.Context, ownerID string, itemID uuid.UUID, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, apperr.New(apperr.KindValidation, "quantity must be at least 1")
	}

	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	line := c.FindItem(itemID)
	if line == nil {
		return Cart{}, apperr.New(apperr.KindNotFound, "cart item not found")
	}

	stock, err := s.Ledger.Stock(ctx, line.ProductID, line.Variant)
	if err != nil {
		return Cart{}, err
	}
	if stock < qty {
		return Cart{}, apperr.Newf(apperr.KindOutOfStock, "only %d in stock", stock)
	}

	line.Quantity = qty
	return s.saveAndReload(ctx, &c)
}

func (s *Service) RemoveItem(ctx context.Context, ownerID string, itemID uuid.UUID) (Cart, error) {
	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	if !c.RemoveItem(itemID) {
		return Cart{}, apperr.New(apperr.KindNotFound, "cart item not found")
	}
	return s.saveAndReload(ctx, &c)
}

func (s *Service) ApplyCoupon(ctx context.Context, ownerID, code string) (Cart, error) {
	rule, ok := s.Coupons.Validate(code)
	if !ok {
		return Cart{}, apperr.Newf(apperr.KindValidation, "invalid coupon code %q", code)
	}

	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	c.ApplyCoupon(AppliedCoupon{
		Code:      rule.Code,
		Type:      rule.Type,
		Value:     rule.Value,
		AppliedAt: time.Now().UTC(),
	})
	return s.saveAndReload(ctx, &c)
}

func (s *Service) RemoveCoupon(ctx context.Context, ownerID, code string) (Cart, error) {
	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	if !c.RemoveCoupon(code) {
		return Cart{}, apperr.Newf(apperr.KindNotFound, "coupon %q is not applied", code)
	}
	return s.saveAndReload(ctx, &c)
}

// SetAddress stores the shipping address on the cart so checkout can pick it
// up after the payment round-trip.
func (s *Service) SetAddress(ctx context.Context, ownerID string, a Address) (Cart, error) {
	if err := a.Validate(); err != nil {
		return Cart{}, err
	}
	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	c.ShippingAddress = &a
	return s.saveAndReload(ctx, &c)
}

// CheckAvailability re-reads live stock and catalog state for every line and
// flags is_available. It never removes items on its own.
func (s *Service) CheckAvailability(ctx context.Context, ownerID string) (Cart, error) {
	c, err := s.Repo.GetOrCreate(ctx, ownerID)
	if err != nil {
		return Cart{}, err
	}
	if len(c.Items) == 0 {
		return c, nil
	}

	products, err := s.Catalog.GetProducts(ctx, lo.Map(c.Items, func(it Item, _ int) uuid.UUID { return it.ProductID }))
	if err != nil {
		return Cart{}, err
	}

	now := time.Now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.Items {
		i := i
		g.Go(func() error {
			it := &c.Items[i]
			it.LastStockCheck = &now

			p, ok := products[it.ProductID]
			if !ok || !p.Purchasable() {
				it.IsAvailable = false
				return nil
			}
			stock, err := s.Ledger.Stock(gctx, it.ProductID, it.Variant)
			if err != nil {
				if apperr.Is(err, apperr.KindNotFound) {
					it.IsAvailable = false
					return nil
				}
				return err
			}
			it.IsAvailable = stock >= it.Quantity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Cart{}, err
	}

	return s.saveAndReload(ctx, &c)
}

func (s *Service) saveAndReload(ctx context.Context, c *Cart) (Cart, error) {
	if err := s.Repo.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	s.InvalidateCache(c.OwnerID)
	if err := s.populate(ctx, c); err != nil {
		return Cart{}, err
	}
	return *c, nil
}

// InvalidateCache drops the cached cart; call after any out-of-band change
// (e.g. checkout cleared the cart inside its own transaction).
func (s *Service) InvalidateCache(ownerID string) {
	if s.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Cache.Delete(ctx, ownerID); err != nil {
		slog.Warn("cart cache invalidate", "owner_id", ownerID, "err", err)
	}
}

func (s *Service) populate(ctx context.Context, c *Cart) error {
	if len(c.Items) == 0 {
		return nil
	}

	productIDs := lo.Uniq(lo.Map(c.Items, func(it Item, _ int) uuid.UUID { return it.ProductID }))
	vendorIDs := lo.Uniq(lo.Map(c.Items, func(it Item, _ int) uuid.UUID { return it.VendorID }))

	products, err := s.Catalog.GetProducts(ctx, productIDs)
	if err != nil {
		return err
	}
	vendors, err := s.Catalog.GetVendors(ctx, vendorIDs)
	if err != nil {
		return err
	}

	for i := range c.Items {
		it := &c.Items[i]
		if p, ok := products[it.ProductID]; ok {
			it.ProductName = p.Name
			if len(p.Images) > 0 {
				it.ProductImage = p.Images[0]
			}
		}
		if v, ok := vendors[it.VendorID]; ok {
			it.VendorStoreName = v.StoreName
		}
	}
	return nil
}
