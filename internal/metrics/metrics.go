package metrics

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zeitslot/internal/eventbus"
)

// Metrics holds the collectors fed from the event bus. Each instance owns its
// registry so tests and multiple processes in one binary do not collide.
type Metrics struct {
	reg *prometheus.Registry

	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	tickEntries   prometheus.Gauge
	decisions     *prometheus.CounterVec
	sends         *prometheus.CounterVec
	polls         *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	configReloads prometheus.Counter
	panics        *prometheus.CounterVec
	goroutines    prometheus.GaugeFunc

	active atomic.Pointer[func() int64]
}

func New(bus eventbus.Bus) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "zeitslot_ticks_total",
			Help: "Total number of evaluation passes",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "zeitslot_tick_duration_seconds",
			Help:    "Evaluation pass latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		tickEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "zeitslot_entries",
			Help: "Number of entries loaded by the last pass",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zeitslot_decisions_total",
			Help: "Eligibility decisions by stage",
		}, []string{"stage"}),
		sends: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zeitslot_sends_total",
			Help: "Message sends by outcome",
		}, []string{"status"}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zeitslot_polls_total",
			Help: "Follow-up polls by outcome",
		}, []string{"status"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zeitslot_alerts_total",
			Help: "Admin alerts by pipeline event",
		}, []string{"event"}),
		configReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "zeitslot_config_reloads_total",
			Help: "Applied configuration reloads",
		}),
		panics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zeitslot_goroutine_panics_total",
			Help: "Recovered panics in supervised goroutines",
		}, []string{"goroutine"}),
	}
	m.goroutines = f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "zeitslot_supervised_goroutines",
		Help: "Goroutines currently running under the app supervisor",
	}, func() float64 {
		if fn := m.active.Load(); fn != nil {
			return float64((*fn)())
		}
		return 0
	})
	if bus != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "zeitslot_eventbus_dropped_total",
			Help: "Events dropped because a subscriber was full",
		}, func() float64 { return float64(bus.Dropped()) })
	}
	return m
}

// GoroutinePanicked counts a recovered panic. It matches the supervisor's
// panic hook signature.
func (m *Metrics) GoroutinePanicked(name string, _ any) {
	m.panics.WithLabelValues(name).Inc()
}

// TrackActive sets the source of the supervised goroutine gauge.
func (m *Metrics) TrackActive(fn func() int64) {
	if fn == nil {
		m.active.Store(nil)
		return
	}
	m.active.Store(&fn)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe updates collectors for one event. Unknown events are ignored.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TickFinished:
		if d, ok := ev.Data.(eventbus.TickEvent); ok {
			m.ticks.Inc()
			m.tickDuration.Observe(d.Duration.Seconds())
			m.tickEntries.Set(float64(d.Entries))
		}
	case eventbus.Decision:
		if d, ok := ev.Data.(eventbus.DecisionEvent); ok {
			m.decisions.WithLabelValues(d.Stage).Inc()
		}
	case eventbus.SendResult:
		if d, ok := ev.Data.(eventbus.SendEvent); ok {
			m.sends.WithLabelValues(status(d.OK)).Inc()
		}
	case eventbus.PollResult:
		if d, ok := ev.Data.(eventbus.SendEvent); ok {
			m.polls.WithLabelValues(status(d.OK)).Inc()
		}
	case eventbus.AlertQueued, eventbus.AlertDeduped, eventbus.AlertDropped, eventbus.AlertSent, eventbus.AlertFailed:
		m.alerts.WithLabelValues(string(ev.Type)).Inc()
	case eventbus.ConfigReloaded:
		m.configReloads.Inc()
	}
}

// Consume feeds events from the bus into Observe until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}

func status(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
