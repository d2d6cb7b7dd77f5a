package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/catalog"
	"Storefront/pkg/kit"
)

func main() {
	service := "cart"
	cfg, err := kit.LoadConfig(service)
	if err != nil {
		kit.NewLogger(service).Fatal("load config", zap.Error(err))
	}

	log := kit.NewLeveledLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cart.SnapshotStore = cart.NewMemStore(log)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("connect redis", zap.Error(err), zap.String("addr", cfg.RedisAddr))
		}
		store = cart.NewRedisStore(rdb, log)
	} else {
		log.Warn("REDIS_ADDR not set, carts are kept in memory")
	}

	s := &cart.Server{
		Store:   store,
		Catalog: catalog.NewClient(cfg.Upstreams.Catalog),
		Log:     log,
	}

	h := cart.NewHandler(s, kit.HTTPDeps{
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
