package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/auth"
	"Storefront/internal/storage/postgres"
	"Storefront/pkg/kit"
)

func main() {
	service := "auth"
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

	var store auth.UserStore = auth.NewMemStore()
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.AutoMigrate)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()
		store = auth.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, users are kept in memory")
	}

	s := &auth.Server{
		Log:         log,
		Store:       store,
		JWT:         auth.NewTokenMaker(cfg.JWTSecret),
		AdminEmails: cfg.AdminEmails,
	}

	h := auth.NewHandler(s, kit.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})

	if err := kit.RunHTTPServer(ctx, ":"+cfg.Port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}
