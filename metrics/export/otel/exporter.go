package otel

import (
	"context"
	"errors"
	"fmt"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// histogramGauges publishes one cumulative gauge per bucket plus the total.
type histogramGauges struct {
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes every series from one engine read per collection.
type Exporter struct {
	source       internaldefs.Source
	registration metric.Registration
	counters     map[string]metric.Int64ObservableCounter
	histograms   map[string]histogramGauges
}

// New registers the engine's series on meter. Callers own the MeterProvider.
func New(meter metric.Meter, engine *goGate.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource registers the series of any snapshot source on meter.
func NewFromSource(meter metric.Meter, source internaldefs.Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make(map[string]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)+len(internaldefs.DeliveryDefs)),
		histograms: make(map[string]histogramGauges, len(internaldefs.HistogramDefs)),
	}
	var observables []metric.Observable

	addCounter := func(name, help string) error {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create counter %s: %w", name, err)
		}
		e.counters[name] = ins
		observables = append(observables, ins)
		return nil
	}
	for _, def := range internaldefs.CounterDefs {
		if err := addCounter(def.Name, def.Help); err != nil {
			return nil, err
		}
	}
	for _, def := range internaldefs.DeliveryDefs {
		if err := addCounter(def.Name, def.Help); err != nil {
			return nil, err
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		var h histogramGauges
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		ins, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s_count: %w", def.Name, err)
		}
		h.count = ins
		observables = append(observables, ins)
		e.histograms[def.Name] = h
	}

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	for _, s := range internaldefs.Collect(e.source) {
		switch s.Kind {
		case internaldefs.KindCounter:
			if ins, ok := e.counters[s.Name]; ok {
				o.ObserveInt64(ins, int64(s.Value))
			}
		case internaldefs.KindHistogram:
			h, ok := e.histograms[s.Name]
			if !ok {
				continue
			}
			for i := range h.buckets {
				o.ObserveInt64(h.buckets[i], int64(s.Buckets[i]))
			}
			o.ObserveInt64(h.count, int64(s.Buckets[len(s.Buckets)-1]))
		}
	}
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
