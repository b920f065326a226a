package membuf

import "unsafe"

const baseAlignment = 64

/*
Allocator provides the raw regions backing buffers. Alloc returns a
slice of exactly byteCount bytes (nil signals allocation failure), Free
gives the region back once no alias can touch it anymore.

Implementations must hand out regions whose base address is aligned to
the largest element width served by views, the package wide default
aligns to baseAlignment which covers all of them with room for wider
vector loads.
*/
type Allocator interface {
	Alloc(byteCount int) []byte
	Free(region []byte)
}

// GoAllocator allocates regions on the Go heap, shifting the base
// address up to the next baseAlignment boundary. Free is a no-op, the
// garbage collector reclaims the region once the last alias is gone.
type GoAllocator struct{}

var _ Allocator = GoAllocator{}

func (GoAllocator) Alloc(byteCount int) []byte {
	buf := make([]byte, byteCount+baseAlignment)
	shift := 0
	if r := int(uintptr(unsafe.Pointer(unsafe.SliceData(buf))) & (baseAlignment - 1)); r != 0 {
		shift = baseAlignment - r
	}
	return buf[shift : byteCount+shift : byteCount+shift]
}

func (GoAllocator) Free(region []byte) {}
