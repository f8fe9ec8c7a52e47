// Package app wires configuration, transports, storage, and handlers into
// the four fulfillment binaries.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/avoropaev/marketplace/internal/api"
	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/notify"
	"github.com/avoropaev/marketplace/internal/rabbit"
	"github.com/avoropaev/marketplace/internal/storage/postgres"
	"github.com/avoropaev/marketplace/pkg/health"
	"github.com/avoropaev/marketplace/pkg/httpmiddleware"
)

// RunAPI starts the order API: the intake gateway, the status notification
// gateway with its SSE endpoint, and the internal push endpoint. It is the
// single wiring point for the API binary.
func RunAPI(ctx context.Context, lg *zap.Logger, _ *sdkapp.Telemetry, cfg *Config) error {
	if err := cfg.requireDatabase(); err != nil {
		return err
	}
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Work queue connection, owned by this process.
	queue, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		return errors.Wrap(err, "connect rabbitmq")
	}
	defer func() { _ = queue.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("rabbitmq", time.Second, func(_ context.Context) error {
		if queue.IsClosed() {
			return errors.New("rabbitmq connection closed")
		}
		return nil
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services and handlers.
	orderRepo := postgres.NewOrderRepository(pool)
	intake := order.NewIntake(queue)
	gateway := notify.NewGateway()
	h := api.NewHandler(intake, orderRepo, gateway)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No WriteTimeout: the SSE endpoint holds the response open until the
		// terminal notice arrives.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.TraceHeader, "X-Test-Error"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			// TraceID sits outside the rate limiter so even a 429 carries the
			// correlation header.
			httpmiddleware.TraceID(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
