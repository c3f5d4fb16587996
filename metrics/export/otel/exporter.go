package otel

import (
	"context"
	"errors"
	"fmt"

	leadAuth "github.com/MrEthical07/leadAuth"
	"github.com/MrEthical07/leadAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() leadAuth.MetricsSnapshot
}

// latencySeries is the verify latency histogram flattened into one
// cumulative gauge per bucket, told apart by the le attribute, plus a
// sample count.
type latencySeries struct {
	id      leadAuth.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.MeasurementOption
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes engine snapshots through observable instruments.
// Every observation carries the attributes given at construction, which
// lets several engines in one process share a meter.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[leadAuth.MetricID]metric.Int64ObservableCounter
	latency      []latencySeries
	common       metric.MeasurementOption
}

// NewOTelExporter registers one callback on meter that reads engine's
// snapshot on every collection. Close unregisters it.
func NewOTelExporter(meter metric.Meter, engine *leadAuth.Engine, attrs ...attribute.KeyValue) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine, attrs...)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource, attrs ...attribute.KeyValue) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[leadAuth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		common:   metric.WithAttributeSet(attribute.NewSet(attrs...)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help), metric.WithUnit("{event}"))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		s := latencySeries{id: def.ID}
		var err error
		s.buckets, err = meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("gauge %s_bucket: %w", def.Name, err)
		}
		s.count, err = meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("gauge %s_count: %w", def.Name, err)
		}
		for i, le := range internaldefs.HistogramBounds {
			s.bounds[i] = metric.WithAttributeSet(attribute.NewSet(append([]attribute.KeyValue{attribute.String("le", le)}, attrs...)...))
		}
		e.latency = append(e.latency, s)
		observables = append(observables, s.buckets, s.count)
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snapshot.Counters[id]), e.common)
	}
	for _, s := range e.latency {
		raw, ok := snapshot.Histograms[s.id]
		if !ok {
			// latency histograms disabled
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(s.buckets, int64(n), s.bounds[i])
		}
		o.ObserveInt64(s.count, int64(cumulative[len(cumulative)-1]), e.common)
	}
	return nil
}

func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
