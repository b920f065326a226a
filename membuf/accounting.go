package membuf

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

type (
	// Accounting tracks the number of live buffers and the bytes they
	// pin outside the host's managed heap. The zero value is ready to
	// use, buffers report to it on allocation and on release.
	Accounting struct {
		bytes   atomic.Int64
		buffers atomic.Int64

		mSize metric.Int64Histogram
	}

	// Observability is the subset of the embedder's observability
	// toolkit needed by this package.
	Observability interface {
		Meter(name string, opts ...metric.MeterOption) metric.Meter
	}
)

var global Accounting

// Global returns the process wide accounting instance. Buffers are
// attached to it unless constructed with WithAccounting.
func Global() *Accounting { return &global }

func (a *Accounting) add(byteCount int64) {
	a.buffers.Add(1)
	a.bytes.Add(byteCount)
	if a.mSize != nil {
		a.mSize.Record(context.Background(), byteCount)
	}
}

func (a *Accounting) remove(byteCount int64) {
	a.buffers.Add(-1)
	a.bytes.Add(-byteCount)
}

// Bytes returns the amount of external memory currently held by live
// buffers.
func (a *Accounting) Bytes() int64 { return a.bytes.Load() }

// Buffers returns the number of live buffers.
func (a *Accounting) Buffers() int64 { return a.buffers.Load() }

// RegisterMetrics publishes the accounting state through the meter
// provider of obs. Call it during wiring, before buffers start to flow.
func (a *Accounting) RegisterMetrics(obs Observability) (err error) {
	m := obs.Meter("membuf")

	if _, err = m.Int64ObservableUpDownCounter(
		"bytes",
		metric.WithDescription("Bytes of external memory currently allocated to live buffers."),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(a.Bytes())
			return nil
		}),
	); err != nil {
		return fmt.Errorf("creating counter of external bytes: %w", err)
	}

	if _, err = m.Int64ObservableUpDownCounter(
		"buffers",
		metric.WithDescription("Number of live external buffers."),
		metric.WithInt64Callback(func(ctx context.Context, io metric.Int64Observer) error {
			io.Observe(a.Buffers())
			return nil
		}),
	); err != nil {
		return fmt.Errorf("creating counter of live buffers: %w", err)
	}

	if a.mSize, err = m.Int64Histogram(
		"allocation.size",
		metric.WithDescription("Distribution of buffer allocation sizes."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(64, 1024, 16384, 262144, 1<<22, 1<<26, 1<<30),
	); err != nil {
		return fmt.Errorf("creating histogram of allocation sizes: %w", err)
	}
	return nil
}
