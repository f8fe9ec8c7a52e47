package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	sdkapp "github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/avoropaev/marketplace/internal/domain/order"
	"github.com/avoropaev/marketplace/internal/domain/payment"
	"github.com/avoropaev/marketplace/internal/eventlog"
	"github.com/avoropaev/marketplace/internal/metrics"
	"github.com/avoropaev/marketplace/internal/rabbit"
)

// RunPaymentService starts the payment processor: it consumes
// payment_requests under a consumer group and publishes exactly one result
// per request onto the work queue.
func RunPaymentService(ctx context.Context, lg *zap.Logger, _ *sdkapp.Telemetry, cfg *Config) error {
	queue, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		return errors.Wrap(err, "connect rabbitmq")
	}
	defer func() { _ = queue.Close() }()

	if err := eventlog.BrokerCheck(cfg.Kafka.Brokers)(ctx); err != nil {
		return errors.Wrap(err, "kafka unreachable")
	}

	consumer := eventlog.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group)
	defer func() { _ = consumer.Close() }()

	processor := payment.NewProcessor(queue, cfg.Payment.BankDelay)

	reg := metrics.NewRegistry("payment_service")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reg.Serve(ctx, cfg.MetricsAddr)
	})
	g.Go(func() error {
		lg.Info("Payment service ready: consuming payment_requests, sending results to payment_results",
			zap.String("group", cfg.Kafka.Group),
			zap.Duration("bankDelay", cfg.Payment.BankDelay),
		)
		return consumer.Run(ctx, func(ctx context.Context, req *order.PaymentRequest) error {
			reg.Consumed.Inc()
			start := time.Now()
			err := processor.Handle(ctx, req)
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
