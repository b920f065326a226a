package typedarray

import (
	"fmt"
	"math"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/view"
)

/*
coerceLength applies the host's numeric argument coercion: a number
which already is a non-negative integral in uint32 range is used as is,
anything else goes through the host's ToNumber and ToInt32 conversions.
Those may run script code and fail, such failures propagate unchanged.
The result must then be a valid element count.
*/
func (e *Env) coerceLength(val hostrt.Value) (int32, error) {
	var raw int64
	if n, ok := val.(hostrt.Number); ok && isUint32(float64(n)) {
		raw = int64(n)
	} else {
		f, err := e.rt.ToNumber(val)
		if err != nil {
			return 0, err
		}
		n, err := e.rt.ToInt32(hostrt.Number(f))
		if err != nil {
			return 0, err
		}
		raw = int64(n)
	}

	if raw < 0 {
		return 0, fmt.Errorf("%w: %d", view.ErrNegativeLength, raw)
	}
	if raw > view.MaxLength {
		return 0, fmt.Errorf("%w: %d", view.ErrLengthExceeded, raw)
	}
	return int32(raw), nil
}

// isUint32 reports whether f is integral and in uint32 range, the fast
// path of the host's length coercion.
func isUint32(f float64) bool {
	return f == math.Trunc(f) && f >= 0 && f <= math.MaxUint32
}
