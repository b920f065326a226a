// Package observability holds the OTEL attribute constructors shared by
// the packages which report metrics or traces.
package observability

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/scripthost/extmem/view"
)

const ElemKindKey attribute.Key = "elem.kind"

// ElemKind is the element kind of the view a measurement is about.
func ElemKind(kind view.Kind) attribute.KeyValue {
	return ElemKindKey.String(kind.String())
}

// ByteSize is the size, in bytes, of the region a measurement is about.
func ByteSize(n int64) attribute.KeyValue {
	return attribute.Int64("byte.size", n)
}

// Construction bundles the attributes of a buffer or view construction
// event into a measurement option.
func Construction(kind view.Kind, err error) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(ElemKind(kind), ErrStatus(err)))
}

/*
ErrStatus returns attribute named "status" with value "ok" if the param
err is nil and "err" when it is not.
*/
func ErrStatus(err error) attribute.KeyValue {
	status := "ok"
	if err != nil {
		status = "err"
	}
	return attribute.String("status", status)
}
