package hostrt

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

/*
Runtime is the coercion capability of the embedding host. Coercing an
object may run script (valueOf and friends), so either method can fail
with an error, typically a *Thrown wrapping the script exception.

StdRuntime is a self contained implementation for hosts that do not
hook value conversion.
*/
type Runtime interface {
	// ToNumber coerces v to a numeric value.
	ToNumber(v Value) (float64, error)
	// ToInt32 coerces v to a signed 32 bit integer, wrapping modulo 2^32.
	ToInt32(v Value) (int32, error)
}

// StdRuntime coerces values the way a vanilla ECMAScript host does:
// undefined is NaN, null and false are 0, true is 1, strings parse as
// numeric literals and plain objects convert to NaN. It never throws.
type StdRuntime struct{}

var _ Runtime = StdRuntime{}

func (StdRuntime) ToNumber(v Value) (float64, error) {
	switch tv := v.(type) {
	case Number:
		return float64(tv), nil
	case Undefined:
		return math.NaN(), nil
	case Null:
		return 0, nil
	case Boolean:
		if tv {
			return 1, nil
		}
		return 0, nil
	case String:
		return stringToNumber(string(tv)), nil
	default:
		return math.NaN(), nil
	}
}

func (r StdRuntime) ToInt32(v Value) (int32, error) {
	n, err := r.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return ToInt32(n), nil
}

// ToInt32 wraps x into the signed 32 bit range with modular semantics,
// NaN and infinities map to zero.
func ToInt32(x float64) int32 {
	return int32(ToUint32(x))
}

// ToUint32 wraps x into the unsigned 32 bit range with modular
// semantics, NaN and infinities map to zero.
func ToUint32(x float64) uint32 {
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	r := math.Mod(math.Trunc(x), 1<<32)
	if r < 0 {
		r += 1 << 32
	}
	return uint32(r)
}

// stringToNumber implements the numeric literal grammar of script
// string to number conversion: optional sign, decimal or hex literal,
// "Infinity", whitespace trimmed, empty string is zero. Anything else
// is NaN.
func stringToNumber(s string) float64 {
	s = strings.TrimFunc(s, isStrWhiteSpace)
	if s == "" {
		return 0
	}

	sign := 1.0
	rest := s
	switch s[0] {
	case '+':
		rest = s[1:]
	case '-':
		sign = -1.0
		rest = s[1:]
	}
	if rest == "" {
		return math.NaN()
	}

	if rest == "Infinity" {
		return sign * math.Inf(1)
	}

	// Hex literals take no sign and no fraction.
	if len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		if sign < 0 || s[0] == '+' {
			return math.NaN()
		}
		f := 0.0
		for _, c := range rest[2:] {
			d := hexDigit(c)
			if d < 0 {
				return math.NaN()
			}
			f = f*16 + float64(d)
		}
		return f
	}

	// The decimal grammar starts with a digit or a point. Rejecting
	// everything else up front also keeps out the spellings only Go's
	// parser knows (inf, nan, 1_000).
	if c := rest[0]; (c < '0' || c > '9') && c != '.' {
		return math.NaN()
	}
	if strings.ContainsAny(rest, "_xXpP") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return math.NaN()
	}
	return sign * f
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}

// isStrWhiteSpace matches the host grammar's whitespace set: space
// separators, the usual control whitespace, line terminators and the BOM.
func isStrWhiteSpace(c rune) bool {
	switch c {
	case '\t', '\n', '\v', '\f', '\r', 0x2028, 0x2029, 0xfeff:
		return true
	}
	return unicode.Is(unicode.Zs, c)
}
