// Package metrics records generation, conversation and export metrics with
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Recorder holds every collector. A nil *Recorder records nothing.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	exportBatches   *prometheus.CounterVec
	exportRecords   *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of generation attempts by provider, task and status",
			},
			[]string{"provider", "task", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of generation attempts in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"provider", "task"},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used by generation attempts",
			},
			[]string{"provider", "task", "type"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_transitions_total",
				Help: "Conversation phase transitions",
			},
			[]string{"from", "to"},
		),
		exportBatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_export_batches_total",
				Help: "Export batches by sink and status",
			},
			[]string{"sink", "status"},
		),
		exportRecords: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_export_records_total",
				Help: "Exported records by sink",
			},
			[]string{"sink"},
		),
	}
}

func (r *Recorder) ObserveRequest(provider, task, status string, d time.Duration, promptTokens, completionTokens int) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(provider, task, status).Inc()
	r.requestDuration.WithLabelValues(provider, task).Observe(d.Seconds())
	if status == "success" {
		r.tokensTotal.WithLabelValues(provider, task, "prompt").Add(float64(promptTokens))
		r.tokensTotal.WithLabelValues(provider, task, "completion").Add(float64(completionTokens))
	}
}

func (r *Recorder) ObserveTransition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) ObserveExportBatch(sink string, records int, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	} else {
		r.exportRecords.WithLabelValues(sink).Add(float64(records))
	}
	r.exportBatches.WithLabelValues(sink, status).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
