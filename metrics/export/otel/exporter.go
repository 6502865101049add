package otel

import (
	"context"
	"errors"
	"fmt"

	goCartes "github.com/MrEthical07/goCartes"
	"github.com/MrEthical07/goCartes/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goCartes.MetricsSnapshot
	EventsDropped() uint64
}

type counterInstrument struct {
	id         goCartes.MetricID
	instrument metric.Int64ObservableCounter
}

// histogramInstruments mirror one client histogram. The otel API has no
// asynchronous histogram, so buckets are cumulative gauges named after their
// upper bound.
type histogramInstruments struct {
	id      goCartes.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableCounter
}

func newHistogramInstruments(meter metric.Meter, def internaldefs.HistogramDef) (histogramInstruments, []metric.Observable, error) {
	h := histogramInstruments{id: def.ID}
	var observables []metric.Observable

	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative count of "+def.Help))
		if err != nil {
			return h, nil, fmt.Errorf("bucket gauge %s: %w", name, err)
		}
		h.buckets[i] = g
		observables = append(observables, g)
	}

	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Samples of "+def.Help))
	if err != nil {
		return h, nil, fmt.Errorf("count gauge %s: %w", def.Name, err)
	}
	sum, err := meter.Float64ObservableCounter(def.Name+"_sum", metric.WithDescription("Total of "+def.Help), metric.WithUnit("s"))
	if err != nil {
		return h, nil, fmt.Errorf("sum counter %s: %w", def.Name, err)
	}
	h.count, h.sum = count, sum
	return h, append(observables, count, sum), nil
}

func (h histogramInstruments) observe(o metric.Observer, snapshot goCartes.MetricsSnapshot) {
	raw, ok := snapshot.Histograms[h.id]
	if !ok {
		return
	}
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, v := range cumulative {
		o.ObserveInt64(h.buckets[i], int64(v))
	}
	o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	o.ObserveFloat64(h.sum, snapshot.LatencySums[h.id].Seconds())
}

// OTelExporter publishes a client's metrics as observable instruments. Each
// collection reads one snapshot.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterInstrument
	histograms   []histogramInstruments
	dropped      metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for client on meter. The caller owns the
// MeterProvider and must Close the exporter before shutting it down.
func NewOTelExporter(meter metric.Meter, client *goCartes.Client) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterInstrument{id: def.ID, instrument: c})
		observables = append(observables, c)
	}
	for _, def := range internaldefs.HistogramDefs {
		h, obs, err := newHistogramInstruments(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms = append(e.histograms, h)
		observables = append(observables, obs...)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.EventsDroppedName,
		metric.WithDescription("Notifications dropped because the dispatcher buffer was full."))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.EventsDroppedName, err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	e.registration, err = meter.RegisterCallback(e.collect, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) collect(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		h.observe(o, snapshot)
	}
	o.ObserveInt64(e.dropped, int64(e.source.EventsDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
