package view

import (
	"fmt"
	"strings"
)

// Kind enumerates the element types a view can impose over a buffer's
// bytes. The zero value is Int8.
type Kind uint8

const (
	Int8 Kind = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float32
	Float64
)

// ElemSize returns the width of one element in bytes, zero for an
// invalid Kind.
func (k Kind) ElemSize() int32 {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind maps an element kind name, as produced by Kind.String, back
// to the Kind. The match is case insensitive.
func ParseKind(name string) (Kind, error) {
	for k := Int8; k <= Float64; k++ {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown element kind %q", name)
}
