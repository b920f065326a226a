/*
Package view implements fixed geometry, element typed views over membuf
regions. A view aliases a sub-range of one buffer and interprets it as a
sequence of 8, 16, 32 or 64 bit elements in native byte order. Any
number of views may alias the same buffer, overlapping or not, with no
guarding between them: the embedding host executes on a single thread
and concurrent mutation cannot happen by construction.

Every view holds a strong reference to its buffer, so a buffer is never
finalized, and its region never released, while a view over it is still
reachable.
*/
package view

import (
	"errors"
	"fmt"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/membuf"
)

// MaxLength is the largest element count any view can be constructed
// with, regardless of kind.
const MaxLength = 0x3fffffff

var (
	// ErrNegativeLength is returned when a requested element count is
	// negative.
	ErrNegativeLength = errors.New("length must not be negative")
	// ErrLengthExceeded is returned when a requested element count is
	// over MaxLength.
	ErrLengthExceeded = errors.New("length exceeds maximum length")
	// ErrOffsetOutOfBounds is returned when a view's start lies outside
	// its buffer.
	ErrOffsetOutOfBounds = errors.New("byteOffset out of bounds")
	// ErrOffsetUnaligned is returned when a view's start is not on an
	// element size boundary.
	ErrOffsetUnaligned = errors.New("byteOffset must be multiple of element size")
	// ErrSizeUnaligned is returned when the span from the view's start
	// to the end of the buffer is not a whole number of elements. The
	// span is never truncated to fit.
	ErrSizeUnaligned = errors.New("buffer size must be multiple of element size")
	// ErrLengthOutOfBounds is returned when the requested element count
	// reaches past the end of the buffer.
	ErrLengthOutOfBounds = errors.New("length out of bounds")
)

/*
View is an element typed alias into a sub-range of a buffer. Its
geometry is validated once, on construction, and is immutable
afterwards; element accessors are the only way to touch the underlying
bytes through it.
*/
type View struct {
	kind       Kind
	buffer     *membuf.Buffer
	byteOffset int32
	byteLength int32
	length     int32
	data       []byte
}

// New allocates a fresh zero filled buffer sized for count elements of
// kind and returns a view over the whole of it. The buffer options are
// handed to membuf.New.
func New(kind Kind, count int32, opts ...membuf.Option) (*View, error) {
	elemSize := kind.ElemSize()
	if elemSize == 0 {
		return nil, fmt.Errorf("invalid element kind %d", kind)
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}

	byteLength := int64(count) * int64(elemSize)
	buf, err := membuf.New(byteLength, opts...)
	if err != nil {
		return nil, err
	}
	return assemble(kind, buf, 0, int32(byteLength), count), nil
}

// Of returns a view of kind over everything from byteOffset to the end
// of buf. The remaining span must divide evenly into elements, a
// trailing fragment fails the construction outright.
func Of(kind Kind, buf *membuf.Buffer, byteOffset int32) (*View, error) {
	if err := CheckOffset(kind, buf, byteOffset); err != nil {
		return nil, err
	}
	byteLength := buf.ByteLength() - byteOffset
	if rem := byteLength % kind.ElemSize(); rem != 0 {
		return nil, fmt.Errorf("%w: %d bytes remain from byteOffset %d, element size %d",
			ErrSizeUnaligned, byteLength, byteOffset, kind.ElemSize())
	}
	return assemble(kind, buf, byteOffset, byteLength, byteLength/kind.ElemSize()), nil
}

// OfLen returns a view of kind over count elements of buf starting at
// byteOffset.
func OfLen(kind Kind, buf *membuf.Buffer, byteOffset, count int32) (*View, error) {
	if err := CheckOffset(kind, buf, byteOffset); err != nil {
		return nil, err
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	byteLength := int64(count) * int64(kind.ElemSize())
	if int64(byteOffset)+byteLength > int64(buf.ByteLength()) {
		return nil, fmt.Errorf("%w: %d elements of %d bytes at byteOffset %d exceed buffer size %d",
			ErrLengthOutOfBounds, count, kind.ElemSize(), byteOffset, buf.ByteLength())
	}
	return assemble(kind, buf, byteOffset, int32(byteLength), count), nil
}

/*
CheckOffset reports whether a view of kind could start at byteOffset in
buf: the offset must lie inside the buffer and on an element size
boundary. Every constructor runs the same checks, CheckOffset lets a
caller resolving its arguments one by one fail in argument order.
*/
func CheckOffset(kind Kind, buf *membuf.Buffer, byteOffset int32) error {
	elemSize := kind.ElemSize()
	if elemSize == 0 {
		return fmt.Errorf("invalid element kind %d", kind)
	}
	if byteOffset < 0 || byteOffset > buf.ByteLength() {
		return fmt.Errorf("%w: byteOffset %d, buffer size %d", ErrOffsetOutOfBounds, byteOffset, buf.ByteLength())
	}
	if byteOffset%elemSize != 0 {
		return fmt.Errorf("%w: byteOffset %d, element size %d", ErrOffsetUnaligned, byteOffset, elemSize)
	}
	return nil
}

func checkCount(count int32) error {
	if count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeLength, count)
	}
	if count > MaxLength {
		return fmt.Errorf("%w: %d", ErrLengthExceeded, count)
	}
	return nil
}

// assemble builds the view value, geometry must have been validated by
// the caller.
func assemble(kind Kind, buf *membuf.Buffer, byteOffset, byteLength, count int32) *View {
	return &View{
		kind:       kind,
		buffer:     buf,
		byteOffset: byteOffset,
		byteLength: byteLength,
		length:     count,
		data:       buf.Bytes()[byteOffset : byteOffset+byteLength : byteOffset+byteLength],
	}
}

// ElemKind returns the element kind the view was constructed with.
func (v *View) ElemKind() Kind { return v.kind }

// Buffer returns the buffer the view aliases. The reference is what
// keeps the buffer from being finalized while the view is reachable.
func (v *View) Buffer() *membuf.Buffer { return v.buffer }

// ByteOffset returns the view's start within the buffer.
func (v *View) ByteOffset() int32 { return v.byteOffset }

// ByteLength returns the size of the aliased range in bytes.
func (v *View) ByteLength() int32 { return v.byteLength }

// Len returns the number of elements in the view.
func (v *View) Len() int { return int(v.length) }

// BytesPerElement returns the width of one element in bytes.
func (v *View) BytesPerElement() int32 { return v.kind.ElemSize() }

// Kind reports the host value kind, views travel across the host
// boundary as objects.
func (v *View) Kind() hostrt.Kind { return hostrt.KindObject }
