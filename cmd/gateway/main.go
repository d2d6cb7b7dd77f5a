package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/gateway"
	"Storefront/pkg/kit"
)

func main() {
	service := "gateway"
	cfg, err := kit.LoadConfig(service)
	if err != nil {
		kit.NewLogger(service).Fatal("load config", zap.Error(err))
	}

	log := kit.NewLeveledLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if len(cfg.JWTSecret) < 32 {
		log.Fatal("JWT_SECRET is required and must be at least 32 chars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := gateway.Deps{
		JWTSecret:  cfg.JWTSecret,
		AuthURL:    cfg.Upstreams.Auth,
		CatalogURL: cfg.Upstreams.Catalog,
		CartURL:    cfg.Upstreams.Cart,
		OrderURL:   cfg.Upstreams.Order,
	}

	h, err := gateway.NewHandler(deps, kit.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})
	if err != nil {
		log.Fatal("init gateway handler failed", zap.Error(err))
	}

	if err := kit.RunHTTPServer(ctx, ":"+cfg.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
