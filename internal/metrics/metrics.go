// Package metrics exposes the automation machines to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/fsm"
)

// Collector records ticks, transitions, actuator commands, reports and
// landings. A nil *Collector is a valid no-op.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks           *prometheus.CounterVec
	TickInterval    *prometheus.HistogramVec
	Transitions     *prometheus.CounterVec
	MachineState    *prometheus.GaugeVec
	ActuatorActions *prometheus.CounterVec
	ActuatorActive  *prometheus.GaugeVec
	Reports         prometheus.Counter
	Lifecycle       *prometheus.CounterVec
	DescentRate     prometheus.Histogram
}

// NewCollector registers the cockpit metrics against reg, reusing any that
// are already registered.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Ticks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_ticks_total",
		Help: "Ticks evaluated per automation machine.",
	}, []string{"machine", "ready"}), "cockpit_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickInterval, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cockpit_tick_interval_seconds",
		Help:    "Time between consecutive ticks of a machine.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"machine"}), "cockpit_tick_interval_seconds"); err != nil {
		return nil, err
	}
	if c.Transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_state_transitions_total",
		Help: "State transitions per machine.",
	}, []string{"machine", "from", "to"}), "cockpit_state_transitions_total"); err != nil {
		return nil, err
	}
	if c.MachineState, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cockpit_machine_state",
		Help: "1 for the current state of each machine.",
	}, []string{"machine", "state"}), "cockpit_machine_state"); err != nil {
		return nil, err
	}
	if c.ActuatorActions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_actuator_commands_total",
		Help: "Actuator begin and end commands sent to the host.",
	}, []string{"machine", "command", "action"}), "cockpit_actuator_commands_total"); err != nil {
		return nil, err
	}
	if c.ActuatorActive, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cockpit_actuator_active",
		Help: "1 while an actuator command is held active.",
	}, []string{"machine", "command"}), "cockpit_actuator_active"); err != nil {
		return nil, err
	}
	if c.Reports, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cockpit_reports_total",
		Help: "Messages reported to the pilot.",
	}), "cockpit_reports_total"); err != nil {
		return nil, err
	}
	if c.Lifecycle, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cockpit_lifecycle_events_total",
		Help: "Vehicle lifecycle events received from the host.",
	}, []string{"event"}), "cockpit_lifecycle_events_total"); err != nil {
		return nil, err
	}
	if c.DescentRate, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cockpit_touchdown_descent_rate_mps",
		Help:    "Descent rate at touchdown in meters per second.",
		Buckets: []float64{0.1, 0.2, 0.3, 0.5, 0.7, 1, 1.5, 2, 3},
	}), "cockpit_touchdown_descent_rate_mps"); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// StateChanged implements automation.Observer.
func (c *Collector) StateChanged(machine string, from, to fsm.State) {
	if c == nil {
		return
	}
	c.Transitions.WithLabelValues(machine, string(from), string(to)).Inc()
	c.MachineState.WithLabelValues(machine, string(from)).Set(0)
	c.MachineState.WithLabelValues(machine, string(to)).Set(1)
}

// Ticked implements automation.TickObserver.
func (c *Collector) Ticked(machine string, elapsed time.Duration, ready bool) {
	if c == nil {
		return
	}
	c.Ticks.WithLabelValues(machine, fmt.Sprint(ready)).Inc()
	if elapsed > 0 {
		c.TickInterval.WithLabelValues(machine).Observe(elapsed.Seconds())
	}
}

// ActuatorObserver returns a hook for automation.ActuatorHandle.SetObserver.
func (c *Collector) ActuatorObserver(machine string) func(command string, active bool) {
	return func(command string, active bool) {
		if c == nil {
			return
		}
		action, value := "end", 0.0
		if active {
			action, value = "begin", 1.0
		}
		c.ActuatorActions.WithLabelValues(machine, command, action).Inc()
		c.ActuatorActive.WithLabelValues(machine, command).Set(value)
	}
}

// ObserveLanding records a touchdown.
func (c *Collector) ObserveLanding(l automation.Landing) {
	if c == nil {
		return
	}
	c.DescentRate.Observe(l.DescentRate)
}

func (c *Collector) IncReports() {
	if c == nil {
		return
	}
	c.Reports.Inc()
}

func (c *Collector) IncLifecycle(event string) {
	if c == nil {
		return
	}
	c.Lifecycle.WithLabelValues(event).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
