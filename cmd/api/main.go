package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CodeLordGh/kash-catalogue-checkout/internal/cart"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/checkout"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/config"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/gateway"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/httpx"
	kafkax "github.com/CodeLordGh/kash-catalogue-checkout/internal/kafka"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/orders"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/postgres"
	"github.com/CodeLordGh/kash-catalogue-checkout/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pCompleted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCompleted, 1024)
	pCompleted.Start(ctx)
	pFailed := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderFailed, 1024)
	pFailed.Start(ctx)

	// Stores
	orderRepo := &orders.Repo{DB: db}
	ledger := &orders.LedgerRepo{DB: db}
	catalog := &orders.CatalogRepo{DB: db}

	// Payment gateway
	gw := gateway.New(gateway.Config{
		Provider:        cfg.Provider,
		BaseURL:         cfg.GatewayBaseURL,
		Key:             cfg.GatewayKey,
		Secret:          cfg.GatewaySecret,
		SubscriptionKey: cfg.GatewaySubscriptionKey,
		ShortCode:       cfg.ShortCode,
		Passkey:         cfg.Passkey,
		CallbackURL:     cfg.CallbackURL,
		Timeout:         cfg.GatewayTimeout,
	})

	orch := &checkout.Orchestrator{
		Validator:      &cart.Validator{Catalog: catalog},
		Orders:         orderRepo,
		Ledger:         ledger,
		Gateway:        gw,
		Producer:       pCreated,
		Redis:          rdb,
		Service:        cfg.ServiceName,
		Provider:       cfg.Provider,
		GatewayTimeout: cfg.GatewayTimeout,
	}
	rec := &checkout.Reconciler{
		Orders:       orderRepo,
		Ledger:       ledger,
		Gateway:      gw,
		ProducerOK:   pCompleted,
		ProducerFail: pFailed,
		Redis:        rdb,
		Service:      cfg.ServiceName,
	}

	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Service: orch}).Register(router)
	(&httpx.PaymentsHandler{Reconciler: rec, Orders: orderRepo, Redis: rdb}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pCompleted.Close()
	pFailed.Close()
	cancel()
	pCreated.WaitClosed()
	pCompleted.WaitClosed()
	pFailed.WaitClosed()
}
