package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Storefront/internal/catalog"
	"Storefront/internal/events"
	"Storefront/internal/order"
	"Storefront/internal/storage/postgres"
	"Storefront/pkg/kit"
)

const readinessEvery = 5 * time.Second

func main() {
	service := "order"
	cfg, err := kit.LoadConfig(service)
	if err != nil {
		kit.NewLogger(service).Fatal("load config", zap.Error(err))
	}

	log := kit.NewLeveledLogger(service, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store order.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.AutoMigrate)
		if err != nil {
			log.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()
		store = order.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, orders and stock are kept in memory")
		store = order.NewSeededMemStore()
	}

	var idem order.IdempotencyStore = order.NewMemIdempotency()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("connect redis", zap.Error(err), zap.String("addr", cfg.RedisAddr))
		}
		idem = order.NewRedisIdempotency(rdb)
	}

	var pub events.Publisher = events.LogPublisher{Log: log}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, log)
		if err != nil {
			log.Fatal("connect kafka", zap.Error(err), zap.Strings("brokers", cfg.KafkaBrokers))
		}
		pub = kp
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("close event publisher", zap.Error(err))
		}
	}()

	s := &order.Server{
		Store:       store,
		Catalog:     catalog.NewClient(cfg.Upstreams.Catalog),
		Idempotency: idem,
		Events:      pub,
		Log:         log,
	}

	reg := prometheus.NewRegistry()
	h := order.NewHandler(s, kit.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   cfg.MetricsToken,
	})
	grpcSrv, hs := kit.NewHealthGRPCServer(reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return kit.RunHTTPServer(gctx, ":"+cfg.Port, h, log)
	})
	g.Go(func() error {
		return kit.RunGRPCServer(gctx, ":"+cfg.GRPCPort, grpcSrv, log)
	})
	g.Go(func() error {
		kit.WatchReadiness(gctx, hs, service, readinessEvery, store.Ping, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("order service stopped", zap.Error(err))
	}
}
