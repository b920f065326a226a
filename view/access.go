package view

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/scripthost/extmem/hostrt"
)

// element constrains the Go types a view can expose its bytes as.
type element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~float32 | ~float64
}

/*
load reads element i of v, reinterpreting the underlying bytes as E in
native byte order. E must have the view's element width and i must be
inside the view; a violation is a bug in the caller, not bad input, and
panics the way an out of range slice index does.

The buffer wrapper is kept alive across the raw access so its finalizer
cannot release the region mid-read.
*/
func load[E element](v *View, i int) E {
	var e E
	size := int(unsafe.Sizeof(e))
	if int32(size) != v.kind.ElemSize() {
		panic(fmt.Sprintf("view: %T access to %s view", e, v.kind))
	}
	if i < 0 || i >= int(v.length) {
		panic(fmt.Sprintf("view: element index %d out of range [0:%d]", i, v.length))
	}
	e = *(*E)(unsafe.Pointer(&v.data[i*size]))
	runtime.KeepAlive(v.buffer)
	return e
}

// store writes element i of v, with the same contract as load.
func store[E element](v *View, i int, e E) {
	size := int(unsafe.Sizeof(e))
	if int32(size) != v.kind.ElemSize() {
		panic(fmt.Sprintf("view: %T access to %s view", e, v.kind))
	}
	if i < 0 || i >= int(v.length) {
		panic(fmt.Sprintf("view: element index %d out of range [0:%d]", i, v.length))
	}
	*(*E)(unsafe.Pointer(&v.data[i*size])) = e
	runtime.KeepAlive(v.buffer)
}

// Element accessors, one getter and setter pair per kind. The accessor
// width must match the view's element kind.

func (v *View) Int8(i int) int8             { return load[int8](v, i) }
func (v *View) SetInt8(i int, x int8)       { store(v, i, x) }
func (v *View) Uint8(i int) uint8           { return load[uint8](v, i) }
func (v *View) SetUint8(i int, x uint8)     { store(v, i, x) }
func (v *View) Int16(i int) int16           { return load[int16](v, i) }
func (v *View) SetInt16(i int, x int16)     { store(v, i, x) }
func (v *View) Uint16(i int) uint16         { return load[uint16](v, i) }
func (v *View) SetUint16(i int, x uint16)   { store(v, i, x) }
func (v *View) Int32(i int) int32           { return load[int32](v, i) }
func (v *View) SetInt32(i int, x int32)     { store(v, i, x) }
func (v *View) Uint32(i int) uint32         { return load[uint32](v, i) }
func (v *View) SetUint32(i int, x uint32)   { store(v, i, x) }
func (v *View) Float32(i int) float32       { return load[float32](v, i) }
func (v *View) SetFloat32(i int, x float32) { store(v, i, x) }
func (v *View) Float64(i int) float64       { return load[float64](v, i) }
func (v *View) SetFloat64(i int, x float64) { store(v, i, x) }

/*
Number returns element i widened to a float64, the way the embedding
host reads any element as a generic number. Every integer kind's value
range is exactly representable.
*/
func (v *View) Number(i int) float64 {
	switch v.kind {
	case Int8:
		return float64(load[int8](v, i))
	case Uint8:
		return float64(load[uint8](v, i))
	case Int16:
		return float64(load[int16](v, i))
	case Uint16:
		return float64(load[uint16](v, i))
	case Int32:
		return float64(load[int32](v, i))
	case Uint32:
		return float64(load[uint32](v, i))
	case Float32:
		return float64(load[float32](v, i))
	case Float64:
		return load[float64](v, i)
	default:
		panic(fmt.Sprintf("view: invalid kind %d", v.kind))
	}
}

/*
SetNumber stores a host number into element i. Integer kinds truncate
toward zero and wrap modulo their width, the host's number to integer
conversion; float kinds round to their precision.
*/
func (v *View) SetNumber(i int, f float64) {
	switch v.kind {
	case Int8:
		store(v, i, int8(hostrt.ToUint32(f)))
	case Uint8:
		store(v, i, uint8(hostrt.ToUint32(f)))
	case Int16:
		store(v, i, int16(hostrt.ToUint32(f)))
	case Uint16:
		store(v, i, uint16(hostrt.ToUint32(f)))
	case Int32:
		store(v, i, hostrt.ToInt32(f))
	case Uint32:
		store(v, i, hostrt.ToUint32(f))
	case Float32:
		store(v, i, float32(f))
	case Float64:
		store(v, i, f)
	default:
		panic(fmt.Sprintf("view: invalid kind %d", v.kind))
	}
}

// Bytes returns the window of the underlying buffer the view exposes.
// The slice aliases the region, it does not copy; writes through it are
// visible to the buffer and to every overlapping view.
func (v *View) Bytes() []byte { return v.data }
