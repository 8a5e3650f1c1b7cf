package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/config"
	kafkax "github.com/CodeLordGh/kash-catalogue-checkout/internal/kafka"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/notify"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotifyPush, 1024)
	prod.Start(ctx)

	svc := &notify.Service{
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")

	cOK := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCompleted, workers)
	cFail := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderFailed, workers)

	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderCompleted, workers)
		if err := cOK.Start(ctx, svc.HandleOrderCompleted); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()
	go func() {
		log.Printf("notifier consumer started: group=%s topic=%s workers=%d", group, orders.TopicOrderFailed, workers)
		if err := cFail.Start(ctx, svc.HandleOrderFailed); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down notifier...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

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
