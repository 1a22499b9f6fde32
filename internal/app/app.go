package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/odin-pos/internal/cache"
	"github.com/xenking/odin-pos/internal/domain/auth"
	"github.com/xenking/odin-pos/internal/domain/product"
	"github.com/xenking/odin-pos/internal/domain/sale"
	"github.com/xenking/odin-pos/internal/events"
	"github.com/xenking/odin-pos/internal/handler"
	"github.com/xenking/odin-pos/internal/storage/memory"
	"github.com/xenking/odin-pos/internal/storage/postgres"
	"github.com/xenking/odin-pos/pkg/health"
	"github.com/xenking/odin-pos/pkg/httpmiddleware"
)

// Default account created at startup in memory mode, matching cmd/seed-db.
const (
	defaultAdminName     = "Administrador"
	defaultAdminEmail    = "admin@odin.com"
	defaultAdminPassword = "admin123"
)

// backend is the set of stores for the configured storage.
type backend struct {
	products product.Repository
	sales    sale.Store
	users    auth.Repository
	relay    *events.Relay
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *Config, healthSvc *health.Health) (*backend, error) {
	lg := zctx.From(ctx)

	if cfg.Storage == StorageMemory {
		lg.Warn("Using in-memory storage, data is lost on restart")
		catalog := memory.NewCatalog()
		return &backend{
			products: catalog,
			sales:    memory.NewSaleStore(catalog),
			users:    memory.NewUserStore(),
		}, nil
	}

	if err := postgres.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	b := &backend{
		products: postgres.NewProductRepository(pool),
		users:    postgres.NewUserRepository(pool),
		closers:  []func(){pool.Close},
	}

	if len(cfg.Kafka.Brokers) == 0 {
		b.sales = postgres.NewSaleRepository(pool)
		return b, nil
	}

	outbox := postgres.NewOutboxRepository(pool)
	if pending, err := outbox.Pending(ctx); err != nil {
		lg.Warn("Count pending sale events", zap.Error(err))
	} else {
		lg.Info("Sale event outbox", zap.Int("pending", pending))
	}

	writer := events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	b.closers = append(b.closers, func() {
		if err := writer.Close(); err != nil {
			lg.Warn("Close kafka writer", zap.Error(err))
		}
	})
	b.sales = postgres.NewSaleRepository(pool, postgres.WithOutbox())
	b.relay = events.NewRelay(outbox, writer, events.RelayConfig{
		PollInterval: cfg.Kafka.PollInterval,
		BatchSize:    cfg.Kafka.BatchSize,
	})
	return b, nil
}

func closeoutCache(ctx context.Context, cfg *Config, healthSvc *health.Health) (sale.Option, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	healthSvc.AddReadinessCheck("redis", time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	zctx.From(ctx).Info("Closeout cache enabled",
		zap.String("redis", cfg.RedisAddr),
		zap.Duration("ttl", cfg.CloseoutCacheTTL),
	)
	return sale.WithCloseoutCache(cache.NewCloseoutCache(client, cfg.CloseoutCacheTTL)), func() {
		_ = client.Close()
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	b, err := openBackend(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer b.Close()

	saleOpts := []sale.Option{sale.WithTelemetry(m.TracerProvider(), m.MeterProvider())}
	cacheOpt, closeCache := closeoutCache(ctx, cfg, healthSvc)
	defer closeCache()
	if cacheOpt != nil {
		saleOpts = append(saleOpts, cacheOpt)
	}

	sales := sale.NewService(b.sales, saleOpts...)
	users := auth.NewService(b.users)

	if cfg.Storage == StorageMemory {
		if _, _, err := users.EnsureUser(ctx, auth.CreateUserRequest{
			Name:     defaultAdminName,
			Email:    defaultAdminEmail,
			Password: defaultAdminPassword,
			Role:     string(auth.RoleAdmin),
		}); err != nil {
			return errors.Wrap(err, "create default admin")
		}
	}

	h := handler.NewHandler(b.products, sales, users)

	// Route-aware middleware runs inside chi so the matched pattern is known.
	r := chi.NewRouter()
	r.Use(
		httpmiddleware.Instrument("odin-pos", m.TracerProvider(), m.MeterProvider()),
		httpmiddleware.LogRequests(),
	)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Mount("/api", h.Routes())

	root := httpmiddleware.Wrap(r,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:          cfg.CORS.Origins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Rate:  cfg.RateLimit.Rate,
			Burst: cfg.RateLimit.Burst,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           root,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	if b.relay != nil {
		g.Go(func() error {
			return b.relay.Run(gctx)
		})
	}
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
