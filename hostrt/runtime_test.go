package hostrt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_StdRuntime_ToNumber(t *testing.T) {
	rt := StdRuntime{}

	num := func(v Value) float64 {
		t.Helper()
		f, err := rt.ToNumber(v)
		require.NoError(t, err)
		return f
	}

	t.Run("scalars", func(t *testing.T) {
		require.Equal(t, 42.5, num(Number(42.5)))
		require.Equal(t, 0.0, num(Null{}))
		require.Equal(t, 0.0, num(Boolean(false)))
		require.Equal(t, 1.0, num(Boolean(true)))
		require.True(t, math.IsNaN(num(Undefined{})))
	})

	t.Run("objects convert to NaN", func(t *testing.T) {
		require.True(t, math.IsNaN(num(objectValue{})))
	})

	t.Run("strings", func(t *testing.T) {
		cases := []struct {
			in  string
			out float64
		}{
			{"", 0},
			{"   \t\n ", 0},
			{"16", 16},
			{"  16  ", 16},
			{"-12.5", -12.5},
			{"+3", 3},
			{".5", 0.5},
			{"5.", 5},
			{"1e3", 1000},
			{"0x10", 16},
			{"0Xff", 255},
			{"Infinity", math.Inf(1)},
			{"-Infinity", math.Inf(-1)},
			{" 12 ", 12},
		}
		for _, tc := range cases {
			require.Equal(t, tc.out, num(String(tc.in)), "input %q", tc.in)
		}

		nans := []string{
			"abc", "12px", "-", "+", ".", "-0x10", "+0x10", "0xzz",
			"inf", "infinity", "NaN", "nan", "1_000", "0x1p4", "1 2",
		}
		for _, in := range nans {
			require.True(t, math.IsNaN(num(String(in))), "input %q", in)
		}
	})
}

func Test_ToInt32(t *testing.T) {
	cases := []struct {
		in  float64
		out int32
	}{
		{0, 0},
		{math.Copysign(0, -1), 0},
		{1, 1},
		{-1, -1},
		{12.9, 12},
		{-12.9, -12},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
		{2147483647, 2147483647},
		{2147483648, -2147483648},
		{4294967296, 0},
		{4294967297, 1},
		{-4294967295, 1},
		{1e21, -559939584},
	}
	for _, tc := range cases {
		require.Equal(t, tc.out, ToInt32(tc.in), "input %v", tc.in)
	}
}

func Test_ToUint32(t *testing.T) {
	cases := []struct {
		in  float64
		out uint32
	}{
		{0, 0},
		{1, 1},
		{-1, 4294967295},
		{256.7, 256},
		{4294967296, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.out, ToUint32(tc.in), "input %v", tc.in)
	}
}

func Test_StdRuntime_ToInt32_Value(t *testing.T) {
	rt := StdRuntime{}

	n, err := rt.ToInt32(String("0x20"))
	require.NoError(t, err)
	require.EqualValues(t, 32, n)

	n, err = rt.ToInt32(Undefined{})
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = rt.ToInt32(Number(-2.9))
	require.NoError(t, err)
	require.EqualValues(t, -2, n)
}

func Test_Kind_String(t *testing.T) {
	require.Equal(t, "undefined", KindUndefined.String())
	require.Equal(t, "object", KindObject.String())
	require.Equal(t, "kind(99)", Kind(99).String())
}

// objectValue stands in for a host object with no numeric conversion.
type objectValue struct{}

func (objectValue) Kind() Kind { return KindObject }
