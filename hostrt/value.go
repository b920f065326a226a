// Package hostrt defines the narrow slice of an embedding script host
// the memory subsystem interacts with: tagged values crossing the host
// boundary and the numeric coercion rules applied to them.
package hostrt

import "fmt"

// Kind tags the host level type of a Value.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindNumber
	KindString
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

/*
Value is a script host value handed to the construction entry points.
Scalar kinds have concrete types in this package, host object types
(buffers, views) implement the interface themselves.
*/
type Value interface {
	Kind() Kind
}

// Undefined is the host's "no value" marker. An omitted optional
// argument arrives either as a short argument list or as Undefined.
type Undefined struct{}

func (Undefined) Kind() Kind { return KindUndefined }

type Null struct{}

func (Null) Kind() Kind { return KindNull }

type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }

type Number float64

func (Number) Kind() Kind { return KindNumber }

type String string

func (String) Kind() Kind { return KindString }

// Thrown is an error carrying a value thrown by script code during a
// host callback (coercion may invoke user defined conversion). It is
// passed through the construction pipeline without translation so the
// embedder can rethrow the original value.
type Thrown struct {
	Value Value
}

func (t *Thrown) Error() string {
	return fmt.Sprintf("uncaught host exception (%s)", t.Value.Kind())
}
