package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-lifecycle/internal/checkout"
	"github.com/ariefcatur/go-order-lifecycle/internal/config"
	"github.com/ariefcatur/go-order-lifecycle/internal/events"
	"github.com/ariefcatur/go-order-lifecycle/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/lifecycle"
	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/metrics"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/postgres"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/ariefcatur/go-order-lifecycle/internal/refunds"
	"github.com/ariefcatur/go-order-lifecycle/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zones, err := checkout.LoadZones(cfg.ZonesFile)
	if err != nil {
		return err
	}
	seed, err := checkout.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return err
	}
	policy, err := orders.PolicyByName(cfg.TransitionPolicy)
	if err != nil {
		return err
	}

	// Store
	var st store.Store
	switch cfg.Store {
	case config.StoreMemory:
		mem := store.NewMemory()
		for _, v := range seed {
			mem.PutVariant(v)
		}
		st = mem
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return errors.Wrap(err, "db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		pg := postgres.NewStore(db, logger)
		if len(seed) > 0 {
			if err := pg.UpsertVariants(ctx, seed); err != nil {
				return err
			}
		}
		st = pg
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	kv := &redisx.Store{RDB: rdb}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start()
	emitter := events.NewEmitter(prod, cfg.ServiceName, logger)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services & handler
	engine := lifecycle.NewEngine(st,
		lifecycle.WithPolicy(policy),
		lifecycle.WithEmitter(emitter),
		lifecycle.WithMetrics(m),
		lifecycle.WithLogger(logger),
	)
	router := httpx.NewRouter(logger, reg)
	oh := &httpx.OrdersHandler{
		Checkout:  checkout.NewService(st, zones, cfg.DepositRate, emitter, m, logger),
		Lifecycle: engine,
		Refunds:   refunds.NewProcessor(st, emitter, m, logger),
		Idem:      kv,
		Cache:     kv,
		Auth:      httpx.NewAuthenticator(cfg.JWTSecret),
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		prod.Close()      // stop accepting, flush queued events
		prod.WaitClosed() // drain
		return err
	})
	return g.Wait()
}
