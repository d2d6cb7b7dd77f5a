package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/internal/storage/postgres"
	"Storefront/pkg/kit"
)

func main() {
	service := "catalog"
	cfg, err := kit.LoadConfig(service)
	if err != nil {
		kit.NewLogger(service).Fatal("load config", zap.Error(err))
	}

	log := kit.NewLeveledLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store catalog.Store = catalog.NewMemStore()
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.AutoMigrate)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()
		store = catalog.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, serving the in-memory seed catalog")
	}

	images, err := catalog.NewDiskImages(cfg.Images.Dir, cfg.Images.PublicURL)
	if err != nil {
		log.Fatal("init image storage", zap.Error(err), zap.String("dir", cfg.Images.Dir))
	}

	s := &catalog.Server{Store: store, Images: images, Log: log}
	h := catalog.NewHandler(s, kit.HTTPDeps{
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
