package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Panel gateway
	PanelRequests *prometheus.CounterVec
	PanelDuration *prometheus.HistogramVec
	PanelRate     *prometheus.GaugeVec

	// Dispatched commands
	DispatchTotal *prometheus.CounterVec
}

// New creates metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		PanelRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptero_panel_requests_total",
				Help: "Total number of panel API requests by outcome",
			},
			[]string{"operation", "outcome"},
		),

		PanelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptero_panel_request_duration_seconds",
				Help:    "Duration of panel API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		PanelRate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ptero_panel_rate_limit",
				Help: "Current adaptive request rate per panel, in requests per second",
			},
			[]string{"panel"},
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptero_dispatch_total",
				Help: "Total number of dispatched guild commands by outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

// ObservePanel records one panel round trip.
func (m *Metrics) ObservePanel(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PanelRequests.WithLabelValues(operation, outcome).Inc()
	m.PanelDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetPanelRate records the limiter rate currently applied to a panel.
func (m *Metrics) SetPanelRate(panel string, rps float64) {
	if m == nil {
		return
	}
	m.PanelRate.WithLabelValues(panel).Set(rps)
}

// ObserveDispatch records one dispatched command.
func (m *Metrics) ObserveDispatch(action, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(action, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[INFO] Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
