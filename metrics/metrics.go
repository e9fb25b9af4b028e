// Package metrics exports reactor activity to Prometheus. A *Collector satisfies
// evreactor.Metrics and is passed to the reactor with evreactor.WithMetrics.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Option func(*config)

type config struct {
	namespace string
	registry  prometheus.Registerer
}

func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

func WithRegistry(r prometheus.Registerer) Option {
	return func(c *config) {
		c.registry = r
	}
}

type Collector struct {
	handlers      prometheus.Gauge
	pendingTimers prometheus.Gauge
	dispatched    *prometheus.CounterVec
	timersFired   prometheus.Counter
	waitErrors    *prometheus.CounterVec
	cycles        prometheus.Counter
}

func New(opts ...Option) *Collector {
	c := config{
		namespace: "evreactor",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&c)
	}
	factory := promauto.With(c.registry)

	return &Collector{
		handlers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "registered_handlers",
			Help:      "Number of handles currently registered with the reactor",
		}),
		pendingTimers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "pending_timers",
			Help:      "Number of timer tasks waiting to expire",
		}),
		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "dispatched_total",
			Help:      "Handler callbacks dispatched, by kind",
		}, []string{"kind"}),
		timersFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "timers_fired_total",
			Help:      "Timer callbacks invoked",
		}),
		waitErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "wait_errors_total",
			Help:      "Errors returned by the readiness primitive",
		}, []string{"fatal"}),
		cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "cycles_total",
			Help:      "Completed dispatch cycles",
		}),
	}
}

func (c *Collector) SetHandlers(n int) {
	c.handlers.Set(float64(n))
}

func (c *Collector) SetPendingTimers(n int) {
	c.pendingTimers.Set(float64(n))
}

func (c *Collector) Dispatched(kind string) {
	c.dispatched.WithLabelValues(kind).Inc()
}

func (c *Collector) TimerFired() {
	c.timersFired.Inc()
}

func (c *Collector) WaitError(fatal bool) {
	label := "false"
	if fatal {
		label = "true"
	}
	c.waitErrors.WithLabelValues(label).Inc()
}

func (c *Collector) CycleDone() {
	c.cycles.Inc()
}

// Router serves /metrics from g and a trivial /healthz.
func Router(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}
