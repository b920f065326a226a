package membuf

import "log/slog"

type Option func(*options)

type options struct {
	alloc Allocator
	acct  *Accounting
	log   *slog.Logger
}

func defaultOptions() *options {
	return &options{
		alloc: GoAllocator{},
		acct:  Global(),
		log:   slog.Default(),
	}
}

// WithAllocator makes the buffer draw its region from alloc instead of
// the Go heap.
func WithAllocator(alloc Allocator) Option {
	return func(o *options) {
		o.alloc = alloc
	}
}

// WithAccounting attaches the buffer to acct instead of the process
// wide instance.
func WithAccounting(acct *Accounting) Option {
	return func(o *options) {
		o.acct = acct
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}
