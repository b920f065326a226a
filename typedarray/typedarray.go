/*
Package typedarray exposes the construction entry points of the memory
subsystem the way the embedding script host calls them: one constructor
per element kind plus ArrayBuffer, each taking the host's argument list
and returning a host value or an error.

A first argument which is a buffer created by this subsystem selects the
buffer-aliasing shape. Detection is by the concrete Go type, so an
arbitrary host object cannot pose as a buffer no matter its shape; any
other first argument is coerced to an element count and the view gets a
fresh backing buffer.
*/
package typedarray

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/logger"
	"github.com/scripthost/extmem/membuf"
	"github.com/scripthost/extmem/observability"
	"github.com/scripthost/extmem/view"
)

var (
	errNoArgsBuffer = errors.New("ArrayBuffer constructor must have one parameter")
	errNoArgsView   = errors.New("array constructor must have at least one parameter")
)

type (
	// Env binds the construction entry points to one embedding host:
	// its coercion runtime, logging and the accounting the buffers
	// report to.
	Env struct {
		rt      hostrt.Runtime
		log     *slog.Logger
		bufOpts []membuf.Option

		tracer trace.Tracer
		mCtor  metric.Int64Counter
	}

	// Ctor is a construction entry point as the host's script code
	// sees it.
	Ctor func(args ...hostrt.Value) (hostrt.Value, error)

	// Observability is the subset of the embedder's observability
	// toolkit this package reports through.
	Observability interface {
		Meter(name string, opts ...metric.MeterOption) metric.Meter
		Tracer(name string, options ...trace.TracerOption) trace.Tracer
	}

	Option func(*envConf)

	envConf struct {
		log   *slog.Logger
		alloc membuf.Allocator
		acct  *membuf.Accounting
		obs   Observability
	}
)

// WithLogger makes the environment and its buffers log through log.
func WithLogger(log *slog.Logger) Option {
	return func(c *envConf) {
		c.log = log
	}
}

// WithAllocator makes every buffer constructed through the environment
// draw its region from alloc.
func WithAllocator(alloc membuf.Allocator) Option {
	return func(c *envConf) {
		c.alloc = alloc
	}
}

// WithAccounting attaches buffers constructed through the environment
// to acct instead of the process wide instance.
func WithAccounting(acct *membuf.Accounting) Option {
	return func(c *envConf) {
		c.acct = acct
	}
}

// WithObservability turns on construction metrics and traces, reported
// through the providers of obs.
func WithObservability(obs Observability) Option {
	return func(c *envConf) {
		c.obs = obs
	}
}

// New creates a construction environment for the host runtime rt.
func New(rt hostrt.Runtime, opts ...Option) (*Env, error) {
	if rt == nil {
		return nil, errors.New("host runtime is nil")
	}
	cfg := &envConf{
		log:  slog.Default(),
		acct: membuf.Global(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := &Env{
		rt:     rt,
		log:    cfg.log,
		tracer: noop.NewTracerProvider().Tracer(""),
		bufOpts: []membuf.Option{
			membuf.WithAccounting(cfg.acct),
			membuf.WithLogger(cfg.log),
		},
	}
	if cfg.alloc != nil {
		e.bufOpts = append(e.bufOpts, membuf.WithAllocator(cfg.alloc))
	}
	if cfg.obs != nil {
		e.tracer = cfg.obs.Tracer("typedarray")
		if err := e.initMetrics(cfg.obs); err != nil {
			return nil, fmt.Errorf("initializing metrics: %w", err)
		}
	}
	return e, nil
}

func (e *Env) initMetrics(obs Observability) (err error) {
	m := obs.Meter("typedarray")

	if e.mCtor, err = m.Int64Counter(
		"created",
		metric.WithDescription("Number of view construction attempts, by element kind and outcome."),
	); err != nil {
		return fmt.Errorf("creating counter of view constructions: %w", err)
	}
	return nil
}

/*
Constructors returns the entry points to install into the host's global
scope, keyed by the name script code calls them by.
*/
func (e *Env) Constructors() map[string]Ctor {
	return map[string]Ctor{
		"ArrayBuffer":  e.ArrayBuffer,
		"Int8Array":    e.Int8Array,
		"Uint8Array":   e.Uint8Array,
		"Int16Array":   e.Int16Array,
		"Uint16Array":  e.Uint16Array,
		"Int32Array":   e.Int32Array,
		"Uint32Array":  e.Uint32Array,
		"Float32Array": e.Float32Array,
		"Float64Array": e.Float64Array,
	}
}

// ArrayBuffer constructs a standalone buffer of the given byte length.
func (e *Env) ArrayBuffer(args ...hostrt.Value) (hostrt.Value, error) {
	_, span := e.tracer.Start(context.Background(), "Env.ArrayBuffer")
	defer span.End()

	if len(args) == 0 {
		return nil, errNoArgsBuffer
	}
	byteLength, err := e.coerceLength(args[0])
	if err != nil {
		return nil, err
	}
	buf, err := membuf.New(int64(byteLength), e.bufOpts...)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.ByteSize(int64(buf.ByteLength())))
	return buf, nil
}

func (e *Env) Int8Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Int8, args)
}

func (e *Env) Uint8Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Uint8, args)
}

func (e *Env) Int16Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Int16, args)
}

func (e *Env) Uint16Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Uint16, args)
}

func (e *Env) Int32Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Int32, args)
}

func (e *Env) Uint32Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Uint32, args)
}

func (e *Env) Float32Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Float32, args)
}

func (e *Env) Float64Array(args ...hostrt.Value) (hostrt.Value, error) {
	return e.newView(view.Float64, args)
}

func (e *Env) newView(kind view.Kind, args []hostrt.Value) (hostrt.Value, error) {
	_, span := e.tracer.Start(context.Background(), "Env.newView",
		trace.WithAttributes(observability.ElemKind(kind)))
	defer span.End()

	v, err := e.buildView(kind, args)
	if e.mCtor != nil {
		e.mCtor.Add(context.Background(), 1, observability.Construction(kind, err))
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(observability.ByteSize(int64(v.ByteLength())))
	e.log.Debug(fmt.Sprintf("constructed %s view of %d elements", kind, v.Len()), logger.BufferID(v.Buffer().ID()))
	return v, nil
}

// buildView resolves the two constructor shapes: (count) making a fresh
// backing buffer, or (buffer, byteOffset?, count?) aliasing an existing
// one. Arguments are coerced and validated strictly left to right, a
// failure never leaves a partially constructed view or an orphaned
// allocation behind.
func (e *Env) buildView(kind view.Kind, args []hostrt.Value) (*view.View, error) {
	if len(args) == 0 {
		return nil, errNoArgsView
	}
	if buf, ok := args[0].(*membuf.Buffer); ok {
		return e.aliasView(kind, buf, args[1:])
	}

	count, err := e.coerceLength(args[0])
	if err != nil {
		return nil, err
	}
	return view.New(kind, count, e.bufOpts...)
}

func (e *Env) aliasView(kind view.Kind, buf *membuf.Buffer, rest []hostrt.Value) (*view.View, error) {
	var byteOffset int32
	if len(rest) > 0 && rest[0].Kind() != hostrt.KindUndefined {
		var err error
		if byteOffset, err = e.coerceLength(rest[0]); err != nil {
			return nil, err
		}
		if err = view.CheckOffset(kind, buf, byteOffset); err != nil {
			return nil, err
		}
	}

	if len(rest) < 2 || rest[1].Kind() == hostrt.KindUndefined {
		return view.Of(kind, buf, byteOffset)
	}

	count, err := e.coerceLength(rest[1])
	if err != nil {
		return nil, err
	}
	return view.OfLen(kind, buf, byteOffset, count)
}
