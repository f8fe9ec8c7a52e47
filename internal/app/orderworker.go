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

// RunOrderWorker starts the order ingestion worker: it consumes
// order_requests with a prefetch of one, persists orders, and forwards
// payment requests onto the event log.
func RunOrderWorker(ctx context.Context, lg *zap.Logger, _ *sdkapp.Telemetry, cfg *Config) error {
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

	ingester := worker.NewIngester(
		postgres.NewOrderRepository(pool),
		producer,
		producer,
		notify.NewHTTPNotifier(cfg.OrderAPIURL),
	)

	reg := metrics.NewRegistry("order_worker")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Serve(ctx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		lg.Info("Order worker started: consuming order_requests")
		return queue.ConsumeOrderRequests(ctx, func(ctx context.Context, req *order.Request) error {
			reg.Consumed.Inc()
			start := time.Now()
			err := ingester.Handle(ctx, req)
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
