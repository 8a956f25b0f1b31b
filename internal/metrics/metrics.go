// Package metrics implements the metrics adapter (spec §4.J): counters,
// gauges, and histograms with labels, emission best-effort and never
// raising into the core (spec §7). Grounded on the prometheus client's
// usage in the hector example (github.com/prometheus/client_golang),
// with an optional push to a Pushgateway gated by ENABLE_METRICS/
// PUSHGATEWAY_URL (spec §6 environment variables).
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Sink is the metrics contract every component emits through. A nil Sink
// is never passed around; callers use NoOp() as the zero-cost default.
type Sink interface {
	IncCounter(name string, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	ObserveHistogram(name string, seconds float64, labels map[string]string)
}

// noop discards every emission; the default when ENABLE_METRICS isn't set.
type noop struct{}

func (noop) IncCounter(string, map[string]string)                {}
func (noop) SetGauge(string, float64, map[string]string)         {}
func (noop) ObserveHistogram(string, float64, map[string]string) {}

// NoOp returns the discard-everything Sink.
func NoOp() Sink { return noop{} }

// Prometheus is a Sink backed by a private prometheus.Registry, keyed by
// a fixed label set per metric name (spec "counters, gauges, histograms
// with labels"). A metric name's label keys are fixed by its first
// emission; a later emission of that name with different label keys is
// dropped rather than erroring, since emission must never raise into the core.
type Prometheus struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec

	pushgatewayURL string
	jobName        string
}

// New constructs a Prometheus-backed Sink. jobName identifies this binary
// in Pushgateway job labels; pushgatewayURL may be empty to disable push
// (metrics are then only held in-process, e.g. for a future /metrics
// endpoint this binary doesn't itself expose).
func New(jobName, pushgatewayURL string) *Prometheus {
	return &Prometheus{
		registry:       prometheus.NewRegistry(),
		counters:       make(map[string]*prometheus.CounterVec),
		gauges:         make(map[string]*prometheus.GaugeVec),
		histograms:     make(map[string]*prometheus.HistogramVec),
		pushgatewayURL: pushgatewayURL,
		jobName:        jobName,
	}
}

// FromEnv builds the effective Sink for this process: NoOp unless
// ENABLE_METRICS=true, in which case a Prometheus sink is built, pushing
// to PUSHGATEWAY_URL if set (spec §6 environment variables).
func FromEnv(jobName string) Sink {
	if os.Getenv("ENABLE_METRICS") != "true" {
		return NoOp()
	}
	return New(jobName, os.Getenv("PUSHGATEWAY_URL"))
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	return names
}

func (p *Prometheus) counterFor(name string, labels map[string]string) *prometheus.CounterVec {
	if cv, ok := p.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labelNames(labels))
	p.registry.MustRegister(cv)
	p.counters[name] = cv
	return cv
}

func (p *Prometheus) gaugeFor(name string, labels map[string]string) *prometheus.GaugeVec {
	if gv, ok := p.gauges[name]; ok {
		return gv
	}
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labelNames(labels))
	p.registry.MustRegister(gv)
	p.gauges[name] = gv
	return gv
}

func (p *Prometheus) histogramFor(name string, labels map[string]string) *prometheus.HistogramVec {
	if hv, ok := p.histograms[name]; ok {
		return hv
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name}, labelNames(labels))
	p.registry.MustRegister(hv)
	p.histograms[name] = hv
	return hv
}

func (p *Prometheus) IncCounter(name string, labels map[string]string) {
	defer recoverInto()
	p.counterFor(name, labels).With(labels).Inc()
	p.pushAsync()
}

func (p *Prometheus) SetGauge(name string, value float64, labels map[string]string) {
	defer recoverInto()
	p.gaugeFor(name, labels).With(labels).Set(value)
	p.pushAsync()
}

func (p *Prometheus) ObserveHistogram(name string, seconds float64, labels map[string]string) {
	defer recoverInto()
	p.histogramFor(name, labels).With(labels).Observe(seconds)
	p.pushAsync()
}

// recoverInto swallows a panic from a label-set mismatch (e.g. the same
// metric name later emitted with a different label set) so emission never
// raises into the core (spec §7 "Best-effort").
func recoverInto() {
	_ = recover()
}

// pushAsync fires a best-effort Pushgateway push in the background; errors
// are dropped, matching the "never raise into the core" contract.
func (p *Prometheus) pushAsync() {
	if p.pushgatewayURL == "" {
		return
	}
	go func() {
		_ = push.New(p.pushgatewayURL, p.jobName).
			Gatherer(p.registry).
			Push()
	}()
}

// pushTimeout bounds how long a caller-triggered synchronous flush (e.g.
// at process shutdown) waits for the final push before giving up.
const pushTimeout = 3 * time.Second

// Flush pushes once synchronously, bounded by pushTimeout, for use at
// graceful shutdown when the async fire-and-forget push in pushAsync
// might not complete before the process exits.
func (p *Prometheus) Flush() error {
	if p.pushgatewayURL == "" {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- push.New(p.pushgatewayURL, p.jobName).Gatherer(p.registry).Push()
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(pushTimeout):
		return nil
	}
}
