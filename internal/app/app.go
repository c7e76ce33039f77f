package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-redis/redis/v8"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kiongsoh/CS50W/internal/domain/auth"
	"github.com/Kiongsoh/CS50W/internal/domain/catalog"
	"github.com/Kiongsoh/CS50W/internal/domain/menu"
	"github.com/Kiongsoh/CS50W/internal/domain/order"
	"github.com/Kiongsoh/CS50W/internal/events"
	"github.com/Kiongsoh/CS50W/internal/handler"
	"github.com/Kiongsoh/CS50W/internal/repository"
	"github.com/Kiongsoh/CS50W/internal/session"
	"github.com/Kiongsoh/CS50W/internal/storage/media"
	"github.com/Kiongsoh/CS50W/pkg/health"
	"github.com/Kiongsoh/CS50W/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis session allow-list.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck(health.PingerFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})), health.WithThresholds(2, 1))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc-pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Order events. Without a broker URL events are dropped.
	var notifier order.Notifier = events.Nop{}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return errors.Wrap(err, "dial amqp")
		}
		defer func() { _ = conn.Close() }()

		publisher, err := events.NewPublisher(conn)
		if err != nil {
			return errors.Wrap(err, "create event publisher")
		}
		notifier = publisher
		healthSvc.AddReadinessCheck("amqp", time.Second, health.ConnCheck(conn.IsClosed))
		lg.Info("Publishing order events", zap.String("exchange", events.Exchange))
	} else {
		lg.Warn("AMQP URL not set, order events are disabled")
	}

	assets, err := media.New(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return errors.Wrap(err, "create media store")
	}

	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.TTL, session.NewRedisStore(rdb))
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}

	// Repositories.
	catalogRepo := repository.NewCatalogRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// Domain services.
	h, err := handler.New(handler.Options{
		Orders:        order.NewService(orderRepo, catalogRepo, notifier),
		Menu:          menu.NewService(catalogRepo, assets),
		Catalog:       catalog.NewService(catalogRepo),
		Accounts:      auth.NewService(userRepo, cfg.Session.BcryptCost),
		Users:         userRepo,
		Sessions:      sessions,
		Assets:        assets,
		CookieSecure:  cfg.Session.CookieSecure,
		MeterProvider: m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints, media and API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	// Images are served locally unless the base URL points elsewhere.
	if prefix := strings.TrimSuffix(cfg.Media.BaseURL, "/") + "/"; strings.HasPrefix(prefix, "/") {
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, assets.Handler()))
	}
	mux.Handle("/api/", h.Routes())

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           24 * time.Hour,
			}),
			httpmiddleware.RateLimit(limiter, nil),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kitchen-api", m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return limiter.Run(gctx)
	})
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
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
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}
