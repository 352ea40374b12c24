package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/relayauth"
	"github.com/MrEthical07/relayauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type source interface {
	Observe() relayauth.Observation
}

type reading struct {
	def internaldefs.Reading
	ins metric.Int64Observable
}

// Exporter publishes a Controller's observation as observable instruments.
// Every instrument is read from one Observe call per collection.
type Exporter struct {
	source       source
	registration metric.Registration

	counters map[relayauth.MetricID]metric.Int64ObservableCounter
	readings []reading

	state       metric.Int64ObservableGauge
	stateAttrs  []metric.ObserveOption
	latency     metric.Int64ObservableGauge
	latencyLast metric.Int64ObservableGauge
}

// New registers instruments on meter that read from c.
func New(meter metric.Meter, c *relayauth.Controller) (*Exporter, error) {
	if c == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, c)
}

// NewFromSource registers instruments on meter that read from src.
func NewFromSource(meter metric.Meter, src source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if src == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   src,
		counters: make(map[relayauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.Counters)),
	}
	var observables []metric.Observable

	for _, c := range internaldefs.Counters {
		ins, err := meter.Int64ObservableCounter(c.Name, metric.WithDescription(c.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.Name, err)
		}
		e.counters[c.ID] = ins
		observables = append(observables, ins)
	}
	for _, r := range internaldefs.Totals {
		ins, err := meter.Int64ObservableCounter(r.Name, metric.WithDescription(r.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", r.Name, err)
		}
		e.readings = append(e.readings, reading{def: r, ins: ins})
		observables = append(observables, ins)
	}
	for _, r := range internaldefs.Gauges {
		ins, err := meter.Int64ObservableGauge(r.Name, metric.WithDescription(r.Help))
		if err != nil {
			return nil, fmt.Errorf("gauge %s: %w", r.Name, err)
		}
		e.readings = append(e.readings, reading{def: r, ins: ins})
		observables = append(observables, ins)
	}

	var err error
	e.state, err = meter.Int64ObservableGauge(internaldefs.StateName, metric.WithDescription(internaldefs.StateHelp))
	if err != nil {
		return nil, fmt.Errorf("gauge %s: %w", internaldefs.StateName, err)
	}
	for _, s := range relayauth.States {
		e.stateAttrs = append(e.stateAttrs, metric.WithAttributes(attribute.String(internaldefs.StateLabel, s.String())))
	}

	e.latency, err = meter.Int64ObservableGauge(internaldefs.LatencyName+"_bucket",
		metric.WithDescription(internaldefs.LatencyHelp+" Cumulative bucket counts."))
	if err != nil {
		return nil, fmt.Errorf("latency buckets: %w", err)
	}
	e.latencyLast, err = meter.Int64ObservableGauge(internaldefs.LatencyName+"_count",
		metric.WithDescription(internaldefs.LatencyHelp+" Total samples."))
	if err != nil {
		return nil, fmt.Errorf("latency count: %w", err)
	}
	observables = append(observables, e.state, e.latency, e.latencyLast)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	obs := e.source.Observe()

	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(obs.Metrics.Counters[id]))
	}
	for _, r := range e.readings {
		o.ObserveInt64(r.ins, r.def.Value(obs))
	}
	for i, s := range relayauth.States {
		o.ObserveInt64(e.state, internaldefs.StateValue(s, obs.State), e.stateAttrs[i])
	}

	buckets := internaldefs.LatencyBuckets(obs.Metrics.Histograms[relayauth.MetricBackendLatency])
	for _, b := range buckets {
		o.ObserveInt64(e.latency, int64(b.Count), metric.WithAttributes(attribute.String(internaldefs.LatencyLabel, b.LE)))
	}
	o.ObserveInt64(e.latencyLast, int64(buckets[len(buckets)-1].Count))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
