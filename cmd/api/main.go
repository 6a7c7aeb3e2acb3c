package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/cart"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/config"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/coupon"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/httpx"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/logx"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/payment"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/postgres"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

// producerSink adapts the async kafka producer to the event sink ports.
type producerSink struct{ p *kafkax.Producer }

func (s producerSink) Publish(key, value []byte) { s.p.Publish(key, value) }

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logx.New(logx.Options{Service: cfg.ServiceName, Env: cfg.Env, Level: cfg.LogLevel})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	createdProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	createdProd.Start(ctx)
	statusProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	statusProd.Start(ctx)

	catalogRepo := &catalog.Repo{DB: db}
	ledger := &inventory.PgLedger{DB: db}

	cartSvc := &cart.Service{
		Repo:    &cart.PgRepo{DB: db},
		Catalog: catalogRepo,
		Ledger:  ledger,
		Coupons: coupon.NewEngine(coupon.DefaultRules()),
		Cache:   &cart.RedisCache{RDB: rdb},
	}

	store := &orders.PgStore{DB: db}
	gateway := payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret, cfg.GatewayTimeout)
	verifier := payment.Verifier{KeySecret: cfg.GatewayKeySecret, WebhookSecret: cfg.GatewayWebhookSecret}
	orderCache := &orders.RedisCache{RDB: rdb}
	policy := orders.PricingPolicy{
		TaxRateBasisPoints:    cfg.TaxRateBasisPoints,
		ShippingFeeMinor:      cfg.ShippingFeeMinor,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
	}

	assembler := &orders.Assembler{
		Store:       store,
		Carts:       cartSvc,
		Catalog:     catalogRepo,
		Gateway:     gateway,
		Verifier:    verifier,
		Policy:      policy,
		Currency:    cfg.Currency,
		GatewayName: gateway.Name,
		ServiceName: cfg.ServiceName,
		Created:     producerSink{createdProd},
		Cache:       orderCache,
	}
	machine := &orders.StateMachine{
		Store:            store,
		SelfCancelWindow: cfg.SelfCancelWindow,
		ServiceName:      cfg.ServiceName,
		StatusChanged:    producerSink{statusProd},
		Cache:            orderCache,
	}
	refunds := &orders.RefundProcessor{
		Store:         store,
		Gateway:       gateway,
		ServiceName:   cfg.ServiceName,
		StatusChanged: producerSink{statusProd},
		Cache:         orderCache,
	}
	webhooks := &orders.WebhookProcessor{
		Verifier: verifier,
		Store:    store,
		Dedup:    &redisx.Deduper{RDB: rdb, Service: cfg.ServiceName},
	}

	m := metrics.NewServerMetrics("api")
	router := httpx.NewRouter()
	(&httpx.CartHandler{Svc: cartSvc, Metrics: m}).Register(router)
	(&httpx.PaymentsHandler{Assembler: assembler, Webhooks: webhooks, Refunds: refunds, Metrics: m}).Register(router)
	(&httpx.OrdersHandler{Store: store, Machine: machine, Metrics: m}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	createdProd.Close()
	statusProd.Close()
	cancel()
	createdProd.WaitClosed()
	statusProd.WaitClosed()
}
