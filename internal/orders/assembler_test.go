package orders

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/apperr"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/coupon"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
)

const (
	testKeySecret = "key_secret_test"
	testOwner     = "cust-42"
)

func proof(intentID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

type checkoutEnv struct {
	asm     *Assembler
	store   *fakeStore
	carts   *fakeCarts
	gw      *fakeGateway
	created *fakeSink
	cache   *fakeCache

	product catalog.Product
	vendor  catalog.Vendor
	variant inventory.Variant
}

// newCheckoutEnv seeds one vendor, one product at 999.00 and a cart holding
// two units with a flat 100.00 coupon, 10 units in stock.
func newCheckoutEnv(t *testing.T) *checkoutEnv {
	t.Helper()

	vendor := catalog.Vendor{
		ID: uuid.New(), ShopID: uuid.New(),
		Name: "Asha Rao", StoreName: "Asha Textiles", Location: "Jaipur",
	}
	product := catalog.Product{
		ID: uuid.New(), VendorID: vendor.ID,
		Name: "Block Print Kurta", Category: "apparel",
		Images: []string{"https://img.example/kurta.jpg"},
		PriceMinor: 99900, Currency: "INR",
		IsActive: true, IsApproved: true,
	}
	variant := inventory.Variant{Size: "M", Color: "indigo"}

	env := &checkoutEnv{
		store:   newFakeStore(),
		carts:   newFakeCarts(),
		gw:      &fakeGateway{},
		created: &fakeSink{},
		cache:   newFakeCache(),
		product: product,
		vendor:  vendor,
		variant: variant,
	}
	env.store.ledger.Seed(product.ID, variant, 10)

	env.carts.put(cart.Cart{
		ID:      uuid.New(),
		OwnerID: testOwner,
		Items: []cart.Item{{
			ID: uuid.New(), ProductID: product.ID, VendorID: vendor.ID,
			Quantity: 2, UnitPriceMinor: 99900, Variant: variant,
			IsAvailable: true, AddedAt: time.Now().UTC(),
		}},
		Coupons: []cart.AppliedCoupon{{
			Code: "SAVE20", Type: coupon.Fixed,
			Value: decimal.NewFromInt(10000), AppliedAt: time.Now().UTC(),
		}},
	})

	env.asm = &Assembler{
		Store: env.store,
		Carts: env.carts,
		Catalog: &fakeCatalog{
			products: map[uuid.UUID]catalog.Product{product.ID: product},
			vendors:  map[uuid.UUID]catalog.Vendor{vendor.ID: vendor},
		},
		Gateway:     env.gw,
		Verifier:    payment.Verifier{KeySecret: testKeySecret, WebhookSecret: "wh_secret"},
		Policy:      testPolicy,
		Currency:    "INR",
		GatewayName: "razorpay",
		ServiceName: "checkout-api",
		Created:     env.created,
		Cache:       env.cache,
	}
	return env
}

func validAddress() cart.Address {
	return cart.Address{
		Name: "Asha", Line1: "12 MG Road", City: "Bengaluru",
		State: "KA", PostalCode: "560001", Country: "IN",
	}
}

func (env *checkoutEnv) begin(t *testing.T) CheckoutSession {
	t.Helper()
	sess, err := env.asm.BeginCheckout(context.Background(), testOwner, validAddress())
	require.NoError(t, err)
	return sess
}

func TestBeginCheckoutOpensIntentForCartTotal(t *testing.T) {
	env := newCheckoutEnv(t)

	sess := env.begin(t)

	assert.Equal(t, "intent_001", sess.IntentID)
	assert.Equal(t, int64(199800), sess.Totals.SubtotalMinor)
	assert.Equal(t, int64(10000), sess.Totals.DiscountMinor)
	assert.Equal(t, int64(34164), sess.Totals.TaxMinor)
	assert.Equal(t, int64(0), sess.Totals.ShippingMinor)
	assert.Equal(t, int64(223964), sess.AmountMinor)

	rec, err := env.store.GetIntent(context.Background(), sess.IntentID)
	require.NoError(t, err)
	assert.Equal(t, testOwner, rec.OwnerID)
	assert.Equal(t, int64(223964), rec.AmountMinor)
	assert.Equal(t, IntentCreated, rec.Status)
}

func TestBeginCheckoutEmptyCart(t *testing.T) {
	env := newCheckoutEnv(t)
	env.carts.put(cart.Cart{ID: uuid.New(), OwnerID: testOwner})

	_, err := env.asm.BeginCheckout(context.Background(), testOwner, validAddress())
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestBeginCheckoutUnavailableItem(t *testing.T) {
	env := newCheckoutEnv(t)
	c, _ := env.carts.GetCart(context.Background(), testOwner)
	c.Items[0].IsAvailable = false
	env.carts.put(c)

	_, err := env.asm.BeginCheckout(context.Background(), testOwner, validAddress())
	assert.True(t, apperr.Is(err, apperr.KindOutOfStock))
}

func TestConfirmPaymentCreatesOrder(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)

	o, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:      sess.IntentID,
		PaymentID:     "pay_123",
		Signature:     proof(sess.IntentID, "pay_123"),
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, int64(223964), o.TotalMinor)
	assert.Equal(t, "pay_123", o.TransactionID)
	assert.Equal(t, "razorpay", o.PaymentGateway)
	assert.Regexp(t, `^ORD-\d{8}-[A-Z2-9]{5}$`, o.OrderNumber)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Block Print Kurta", o.Items[0].Product.Name)
	assert.Equal(t, "Asha Textiles", o.Items[0].Vendor.StoreName)
	assert.Equal(t, env.vendor.ShopID, o.Items[0].ShopID)

	require.Len(t, o.VendorGroups, 1)
	assert.Equal(t, int64(199800), o.VendorGroups[0].SubtotalMinor)
	assert.Equal(t, StatusPending, o.VendorGroups[0].Status)

	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, StatusPending, o.StatusHistory[0].Status)

	stock, err := env.store.ledger.Stock(context.Background(), env.product.ID, env.variant)
	require.NoError(t, err)
	assert.Equal(t, 8, stock)

	assert.Equal(t, 1, env.created.count())
	assert.Equal(t, 1, env.carts.invalidated)
}

func TestConfirmPaymentOverridesShippingAddress(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)

	addr := cart.Address{
		Name: "Asha", Line1: "7 Brigade Road", City: "Bengaluru",
		State: "KA", PostalCode: "560025", Country: "IN",
	}
	o, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:        sess.IntentID,
		PaymentID:       "pay_123",
		Signature:       proof(sess.IntentID, "pay_123"),
		ShippingAddress: &addr,
	})
	require.NoError(t, err)
	assert.Equal(t, "7 Brigade Road", o.ShippingAddress.Line1)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)
	req := ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	}

	first, err := env.asm.ConfirmPayment(context.Background(), testOwner, req)
	require.NoError(t, err)
	second, err := env.asm.ConfirmPayment(context.Background(), testOwner, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, cmp.Diff(first, second), "replay must return the exact same order")
	assert.Equal(t, 1, env.store.creates, "replay must not insert a second order")
	assert.Equal(t, 1, env.created.count(), "replay must not re-emit the created event")

	stock, err := env.store.ledger.Stock(context.Background(), env.product.ID, env.variant)
	require.NoError(t, err)
	assert.Equal(t, 8, stock, "replay must not decrement stock again")
}

func TestConfirmPaymentIdempotentViaCacheFastPath(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)
	req := ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	}

	first, err := env.asm.ConfirmPayment(context.Background(), testOwner, req)
	require.NoError(t, err)

	id, ok := env.cache.OrderIDForIntent(context.Background(), sess.IntentID)
	require.True(t, ok)
	assert.Equal(t, first.ID, id)

	second, err := env.asm.ConfirmPayment(context.Background(), testOwner, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestConfirmPaymentCacheFastPathChecksOwner(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)
	req := ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	}

	_, err := env.asm.ConfirmPayment(context.Background(), testOwner, req)
	require.NoError(t, err)

	_, ok := env.cache.OrderIDForIntent(context.Background(), sess.IntentID)
	require.True(t, ok, "fast path must be primed for this replay")

	_, err = env.asm.ConfirmPayment(context.Background(), "someone-else", req)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestConfirmPaymentBadSignature(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)

	_, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_456"), // proof for a different payment
	})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
	assert.Equal(t, 0, env.store.creates)
}

func TestConfirmPaymentWrongOwner(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)

	_, err := env.asm.ConfirmPayment(context.Background(), "someone-else", ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestConfirmPaymentFailedIntent(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)
	require.NoError(t, env.store.UpdateIntentStatus(context.Background(), sess.IntentID, IntentFailed))

	_, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestConfirmPaymentCartChangedSinceCheckout(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)

	// Owner bumps the quantity in another tab after the intent was opened.
	c, _ := env.carts.GetCart(context.Background(), testOwner)
	c.Items[0].Quantity = 3
	env.carts.put(c)

	_, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, 0, env.store.creates)
}

func TestConfirmPaymentInsufficientStock(t *testing.T) {
	env := newCheckoutEnv(t)
	sess := env.begin(t)
	env.store.ledger.Seed(env.product.ID, env.variant, 1)

	_, err := env.asm.ConfirmPayment(context.Background(), testOwner, ConfirmRequest{
		IntentID:  sess.IntentID,
		PaymentID: "pay_123",
		Signature: proof(sess.IntentID, "pay_123"),
	})
	assert.True(t, apperr.Is(err, apperr.KindOutOfStock))
	assert.Equal(t, 0, env.store.creates)

	rec, err := env.store.GetIntent(context.Background(), sess.IntentID)
	require.NoError(t, err)
	assert.Nil(t, rec.OrderID, "failed checkout must leave the intent unclaimed")
}

func TestBuildOrderMultiVendorGroups(t *testing.T) {
	vendorA := catalog.Vendor{ID: uuid.New(), ShopID: uuid.New(), Name: "A", StoreName: "Store A"}
	vendorB := catalog.Vendor{ID: uuid.New(), ShopID: uuid.New(), Name: "B", StoreName: "Store B"}
	prodA := catalog.Product{ID: uuid.New(), VendorID: vendorA.ID, Name: "Mug", PriceMinor: 25000}
	prodB := catalog.Product{ID: uuid.New(), VendorID: vendorB.ID, Name: "Tray", PriceMinor: 40000}

	addr := validAddress()
	c := cart.Cart{
		ID:      uuid.New(),
		OwnerID: testOwner,
		Items: []cart.Item{
			{ID: uuid.New(), ProductID: prodA.ID, VendorID: vendorA.ID, Quantity: 2, UnitPriceMinor: 25000},
			{ID: uuid.New(), ProductID: prodB.ID, VendorID: vendorB.ID, Quantity: 1, UnitPriceMinor: 40000},
		},
		ShippingAddress: &addr,
	}
	c.RecomputeTotals()

	o, err := BuildOrder(c,
		map[uuid.UUID]catalog.Product{prodA.ID: prodA, prodB.ID: prodB},
		map[uuid.UUID]catalog.Vendor{vendorA.ID: vendorA, vendorB.ID: vendorB},
		testPolicy,
		BuildParams{
			IntentID: "intent_x", TransactionID: "pay_x", PaymentMethod: "upi",
			Gateway: "razorpay", Currency: "INR", Now: time.Now().UTC(),
		})
	require.NoError(t, err)

	require.Len(t, o.VendorGroups, 2)
	subs := map[uuid.UUID]int64{}
	for _, g := range o.VendorGroups {
		subs[g.VendorID] = g.SubtotalMinor
	}
	assert.Equal(t, int64(50000), subs[vendorA.ID])
	assert.Equal(t, int64(40000), subs[vendorB.ID])

	assert.Equal(t, int64(90000), o.SubtotalMinor)
	require.NoError(t, o.CheckTotals())
}

func TestBuildOrderMissingAddress(t *testing.T) {
	c := cart.Cart{ID: uuid.New(), OwnerID: testOwner, Items: []cart.Item{{ID: uuid.New()}}}

	_, err := BuildOrder(c, nil, nil, testPolicy, BuildParams{Now: time.Now()})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
