/*
Package membuf implements fixed size byte buffers held outside the
embedding script host's managed heap. A buffer is allocated up front,
zero filled, and released by the Go garbage collector once the last
reference to it is gone, its footprint is reported to an Accounting
instance for the whole of its lifetime so the host can weigh external
memory in its collection heuristics.
*/
package membuf

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/logger"
)

// MaxByteLength is the largest byte length a single buffer can have.
const MaxByteLength = 0x7fffffff

var (
	// ErrSizeOutOfRange is returned when the requested byte length is
	// negative or larger than MaxByteLength.
	ErrSizeOutOfRange = errors.New("buffer exceeds maximum size")
	// ErrOutOfMemory is returned when the allocator cannot provide the
	// requested region.
	ErrOutOfMemory = errors.New("memory allocation failed")
)

var bufSeq atomic.Uint64

// Buffer owns a contiguous byte region outside the host's managed heap.
// The region is released when the collector finds the Buffer
// unreachable, holders of aliases returned by Bytes must therefore keep
// the Buffer itself reachable for as long as they touch the bytes.
type Buffer struct {
	id         uint64
	data       []byte
	byteLength int32
	alloc      Allocator
	acct       *Accounting
	log        *slog.Logger
	released   atomic.Bool
}

// New allocates a zero filled buffer of byteLength bytes.
func New(byteLength int64, opts ...Option) (*Buffer, error) {
	if byteLength < 0 || byteLength > MaxByteLength {
		return nil, fmt.Errorf("%w: requested %d bytes", ErrSizeOutOfRange, byteLength)
	}
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	data := options.alloc.Alloc(int(byteLength))
	if data == nil && byteLength > 0 {
		return nil, fmt.Errorf("%w: requested %d bytes", ErrOutOfMemory, byteLength)
	}
	clear(data)

	b := &Buffer{
		id:         bufSeq.Add(1),
		data:       data,
		byteLength: int32(byteLength),
		alloc:      options.alloc,
		acct:       options.acct,
		log:        options.log,
	}
	b.acct.add(int64(b.byteLength))
	runtime.SetFinalizer(b, (*Buffer).release)
	b.log.Debug(fmt.Sprintf("allocated external buffer of %d bytes", b.byteLength), logger.BufferID(b.id))
	return b, nil
}

// release returns the region to the allocator and settles the
// accounting. It runs as the finalizer, at most once.
func (b *Buffer) release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.acct.remove(int64(b.byteLength))
	b.alloc.Free(b.data)
	b.data = nil
	b.log.Debug(fmt.Sprintf("released external buffer of %d bytes", b.byteLength), logger.BufferID(b.id))
}

// ID returns the process unique identity of the buffer, usable for
// correlating log records.
func (b *Buffer) ID() uint64 { return b.id }

// ByteLength returns the fixed size of the buffer.
func (b *Buffer) ByteLength() int32 { return b.byteLength }

// Bytes returns the backing region. The slice aliases the buffer, it
// does not copy, and it must not be used past the Buffer's lifetime.
func (b *Buffer) Bytes() []byte { return b.data }

// Kind reports the host value kind, buffers travel across the host
// boundary as objects.
func (b *Buffer) Kind() hostrt.Kind { return hostrt.KindObject }
