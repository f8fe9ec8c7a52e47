// Package metrics exposes per-worker Prometheus counters on a side listener.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry aggregates the counters shared by the consumer loops.
type Registry struct {
	reg *prometheus.Registry

	Consumed        prometheus.Counter
	Processed       prometheus.Counter
	Failed          prometheus.Counter
	HandlingSeconds prometheus.Histogram
}

// NewRegistry creates an isolated registry for one worker process. The prefix
// namespaces the metric names (e.g. "order_worker").
func NewRegistry(prefix string) *Registry {
	r := prometheus.NewRegistry()

	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_messages_consumed_total"})
	processed := prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_messages_processed_total"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: prefix + "_messages_failed_total"})
	handling := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "_handling_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(consumed, processed, failed, handling)
	return &Registry{
		reg:             r,
		Consumed:        consumed,
		Processed:       processed,
		Failed:          failed,
		HandlingSeconds: handling,
	}
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve runs a minimal metrics server on addr until ctx is cancelled. An
// empty addr disables the listener.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
