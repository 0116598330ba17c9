package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Prometheus implements Collector on a private registry.
type Prometheus struct {
	phases        *prometheus.CounterVec
	launches      *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	readyDuration *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	terminations  *prometheus.CounterVec
	termDuration  *prometheus.HistogramVec
	supervised    prometheus.Gauge

	registry *prometheus.Registry
}

var _ Collector = (*Prometheus)(nil)

func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "stackup"
	}
	p := &Prometheus{registry: prometheus.NewRegistry()}

	p.phases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phase_transitions_total",
		Help:      "Orchestrator state machine transitions",
	}, []string{"from", "to"})

	p.launches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_launches_total",
		Help:      "Service launch attempts by result",
	}, []string{"service", "runtime", "result"})

	p.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readiness_failed_probes_total",
		Help:      "Readiness probes that did not pass",
	}, []string{"service"})

	p.readyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "readiness_wait_seconds",
		Help:      "Time spent waiting for a service to become ready",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 90, 120},
	}, []string{"service"})

	p.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "readiness_outcomes_total",
		Help:      "Readiness waits by outcome",
	}, []string{"service", "outcome"})

	p.terminations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_terminations_total",
		Help:      "Service terminations by the signal that ended them",
	}, []string{"service", "how"})

	p.termDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "service_termination_seconds",
		Help:      "Time from TERM until the service was gone",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service"})

	p.supervised = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "supervised_services",
		Help:      "Services currently registered for shutdown",
	})

	p.registry.MustRegister(
		p.phases,
		p.launches,
		p.attempts,
		p.readyDuration,
		p.outcomes,
		p.terminations,
		p.termDuration,
		p.supervised,
	)
	return p
}

func (p *Prometheus) PhaseEntered(from, to string) {
	p.phases.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) ServiceLaunched(service, runtime string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.launches.WithLabelValues(service, runtime, result).Inc()
}

func (p *Prometheus) ReadinessAttempt(service string) {
	p.attempts.WithLabelValues(service).Inc()
}

func (p *Prometheus) ReadinessOutcome(service string, ready bool, elapsed time.Duration) {
	outcome := "ready"
	if !ready {
		outcome = "timeout"
	}
	p.outcomes.WithLabelValues(service, outcome).Inc()
	p.readyDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (p *Prometheus) ServiceTerminated(service, how string, duration time.Duration) {
	p.terminations.WithLabelValues(service, how).Inc()
	p.termDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (p *Prometheus) Supervised(n int) {
	p.supervised.Set(float64(n))
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen metrics on %s", addr)
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Msg("metrics endpoint stopped")
		}
	}()
	return nil
}
