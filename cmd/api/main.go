package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OTCOfframp/internal/config"
	"OTCOfframp/internal/db"
	internalhttp "OTCOfframp/internal/http"
	"OTCOfframp/internal/nowpayments"
	"OTCOfframp/internal/services"
	"OTCOfframp/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)
	provider := nowpayments.NewClient(
		cfg.NowPayments.BaseURL,
		cfg.NowPayments.APIKey,
		cfg.NowPayments.JWT,
		time.Duration(cfg.NowPayments.TimeoutSeconds)*time.Second,
	)

	hub := internalhttp.NewHub(logger)
	go hub.Run()

	orderSvc := &services.OrderService{Store: st, Logger: logger}
	payoutSvc := &services.PayoutService{
		Store:     st,
		Provider:  provider,
		IPNSecret: cfg.NowPayments.IPNSecret,
		Publisher: hub,
		Logger:    logger,
	}

	h := internalhttp.NewHandler(orderSvc, payoutSvc, logger)
	srv := internalhttp.NewServer(h, hub, cfg.Server.CORSOrigins)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
