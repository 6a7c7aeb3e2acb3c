package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-marketplace-checkout.git/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/logx"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/notify"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout.git/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logx.New(logx.Options{Service: cfg.ServiceName + "-notifier", Env: cfg.Env, Level: cfg.LogLevel})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Redis: rdb,
		Dedup: &redisx.Deduper{RDB: rdb, Service: "notifier"},
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")

	createdCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCreated, workers)
	statusCons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderStatusChanged, workers)

	for _, c := range []struct {
		name string
		cons *kafkax.Consumer
	}{
		{orders.TopicOrderCreated, createdCons},
		{orders.TopicOrderStatusChanged, statusCons},
	} {
		c := c
		go func() {
			logger.Info("consumer started", "group", group, "topic", c.name, "workers", workers)
			if err := c.cons.Start(ctx, svc.HandleOrderEvent); err != nil {
				log.Printf("consumer %s exit: %v", c.name, err)
				cancel()
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down notifier")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
