// Package metrics exposes daylog counters over HTTP.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records daylog activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	messages             *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	prompts              *prometheus.CounterVec
	plans                *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Name:      "messages_total",
			Help:      "Incoming messages by how they were handled",
		}, []string{"outcome"}),
		collaboratorFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Name:      "collaborator_failures_total",
			Help:      "Failed calls to the calendar, log store, chat provider or state store",
		}, []string{"subsystem"}),
		prompts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Name:      "prompts_total",
			Help:      "Scheduled prompt evaluations by kind and result",
		}, []string{"kind", "result"}),
		plans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "daylog",
			Name:      "plans_total",
			Help:      "Plan candidates by final result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordMessage(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCollaboratorFailure(subsystem string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(subsystem).Inc()
}

// RecordPrompt counts one scheduler decision; result is sent, skipped or
// failed.
func (m *Metrics) RecordPrompt(kind, result string) {
	if m == nil {
		return
	}
	m.prompts.WithLabelValues(kind, result).Inc()
}

// RecordPlan counts a plan outcome: proposed, created, declined or failed.
func (m *Metrics) RecordPlan(result string) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(result).Inc()
}

// Handler serves /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok\n"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
