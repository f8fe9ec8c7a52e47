package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/eventlog"
	"github.com/avoropaev/marketplace/internal/metrics"
	"github.com/avoropaev/marketplace/internal/notify"
	"github.com/avoropaev/marketplace/internal/rabbit"
	"github.com/avoropaev/marketplace/internal/storage/postgres"
	"github.com/avoropaev/marketplace/internal/worker"
)

// RunResultWorker starts the payment result worker: it consumes
// payment_results, finalizes order status, emits the matching domain event,
// and pushes the terminal notice to the API.
func RunResultWorker(ctx context.Context, lg *zap.Logger, _ *sdkapp.Telemetry, cfg *Config) error {
	if err := cfg.requireDatabase(); err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	queue, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		return errors.Wrap(err, "connect rabbitmq")
	}
	defer func() { _ = queue.Close() }()

	if err := eventlog.BrokerCheck(cfg.Kafka.Brokers)(ctx); err != nil {
		return errors.Wrap(err, "kafka unreachable")
	}

	producer := eventlog.NewProducer(cfg.Kafka.Brokers)
	defer func() { _ = producer.Close() }()

	finalizer := worker.NewFinalizer(
		postgres.NewOrderRepository(pool),
		producer,
		notify.NewHTTPNotifier(cfg.OrderAPIURL),
	)

	reg := metrics.NewRegistry("payment_result_worker")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Serve(ctx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		lg.Info("Payment result worker started: consuming payment_results")
		return queue.ConsumePaymentResults(ctx, func(ctx context.Context, res *order.PaymentResult) error {
			reg.Consumed.Inc()
			start := time.Now()
			err := finalizer.Handle(ctx, res)
			reg.HandlingSeconds.Observe(time.Since(start).Seconds())
			if err != nil {
				reg.Failed.Inc()
				return err
			}
			reg.Processed.Inc()
			return nil
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
