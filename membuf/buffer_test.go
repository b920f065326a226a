package membuf

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testlogger "github.com/scripthost/extmem/internal/testutils/logger"
	"github.com/scripthost/extmem/hostrt"
)

func Test_New(t *testing.T) {
	t.Run("negative size", func(t *testing.T) {
		acct := &Accounting{}
		b, err := New(-1, WithAccounting(acct))
		require.ErrorIs(t, err, ErrSizeOutOfRange)
		require.EqualError(t, err, `buffer exceeds maximum size: requested -1 bytes`)
		require.Nil(t, b)
		require.Zero(t, acct.Buffers(), "failed validation must not touch accounting")
		require.Zero(t, acct.Bytes())
	})

	t.Run("size over maximum", func(t *testing.T) {
		acct := &Accounting{}
		b, err := New(MaxByteLength+1, WithAccounting(acct))
		require.ErrorIs(t, err, ErrSizeOutOfRange)
		require.Nil(t, b)
		require.Zero(t, acct.Bytes())
	})

	t.Run("allocation failure", func(t *testing.T) {
		acct := &Accounting{}
		b, err := New(16, WithAccounting(acct), WithAllocator(failingAllocator{}))
		require.ErrorIs(t, err, ErrOutOfMemory)
		require.Nil(t, b)
		require.Zero(t, acct.Buffers(), "failed allocation must not touch accounting")
		require.Zero(t, acct.Bytes())
	})

	t.Run("empty buffer", func(t *testing.T) {
		acct := &Accounting{}
		b, err := New(0, WithAccounting(acct), WithLogger(testlogger.New(t)))
		require.NoError(t, err)
		require.NotNil(t, b)
		require.Zero(t, b.ByteLength())
		require.Empty(t, b.Bytes())
		require.EqualValues(t, 1, acct.Buffers())
		require.Zero(t, acct.Bytes())
	})

	t.Run("success", func(t *testing.T) {
		acct := &Accounting{}
		b, err := New(16, WithAccounting(acct), WithLogger(testlogger.New(t)))
		require.NoError(t, err)
		require.NotNil(t, b)
		require.EqualValues(t, 16, b.ByteLength())
		require.Len(t, b.Bytes(), 16)
		require.NotZero(t, b.ID())
		require.Equal(t, hostrt.KindObject, b.Kind())
		require.EqualValues(t, 1, acct.Buffers())
		require.EqualValues(t, 16, acct.Bytes())
	})

	t.Run("region is zero filled", func(t *testing.T) {
		b, err := New(64, WithAccounting(&Accounting{}), WithAllocator(dirtyAllocator{}), WithLogger(testlogger.New(t)))
		require.NoError(t, err)
		for i, c := range b.Bytes() {
			require.Zerof(t, c, "byte %d not zeroed", i)
		}
	})

	t.Run("maximum size is accepted", func(t *testing.T) {
		// do not actually allocate 2G, just drive the size through
		// validation into the allocator
		alloc := &recordingAllocator{}
		b, err := New(MaxByteLength, WithAccounting(&Accounting{}), WithAllocator(alloc), WithLogger(testlogger.NOP()))
		require.NoError(t, err)
		require.EqualValues(t, MaxByteLength, b.ByteLength())
		require.Equal(t, []int{MaxByteLength}, alloc.allocs)
	})
}

func Test_Buffer_release(t *testing.T) {
	t.Run("settles accounting and frees the region", func(t *testing.T) {
		acct := &Accounting{}
		alloc := &recordingAllocator{}
		b, err := New(32, WithAccounting(acct), WithAllocator(alloc), WithLogger(testlogger.New(t)))
		require.NoError(t, err)
		require.EqualValues(t, 32, acct.Bytes())

		b.release()
		require.Zero(t, acct.Buffers())
		require.Zero(t, acct.Bytes())
		require.EqualValues(t, 1, alloc.freed())
		require.Nil(t, b.data)
	})

	t.Run("runs at most once", func(t *testing.T) {
		acct := &Accounting{}
		alloc := &recordingAllocator{}
		b, err := New(32, WithAccounting(acct), WithAllocator(alloc), WithLogger(testlogger.New(t)))
		require.NoError(t, err)

		b.release()
		b.release()
		require.Zero(t, acct.Buffers(), "accounting must be decremented exactly once")
		require.Zero(t, acct.Bytes())
		require.EqualValues(t, 1, alloc.freed())
	})
}

func Test_Buffer_finalizer(t *testing.T) {
	acct := &Accounting{}
	alloc := &recordingAllocator{}

	const bufCount = 10
	// allocate in a helper so no local keeps the buffers reachable
	allocate := func(t *testing.T) {
		for i := 0; i < bufCount; i++ {
			b, err := New(1024, WithAccounting(acct), WithAllocator(alloc), WithLogger(testlogger.New(t)))
			require.NoError(t, err)
			require.NotNil(t, b)
		}
	}
	allocate(t)
	require.EqualValues(t, bufCount, acct.Buffers())
	require.EqualValues(t, bufCount*1024, acct.Bytes())

	// the collector decides when to run the finalizers, nudge it until
	// every buffer has been released
	require.Eventually(t, func() bool {
		runtime.GC()
		return acct.Buffers() == 0
	}, 5*time.Second, 10*time.Millisecond, "buffers were not finalized")

	require.Zero(t, acct.Bytes(), "external memory accounting did not drain to zero")
	require.Eventually(t, func() bool { return alloc.freed() == bufCount }, time.Second, 10*time.Millisecond)
}

type failingAllocator struct{}

func (failingAllocator) Alloc(byteCount int) []byte { return nil }
func (failingAllocator) Free(region []byte)         {}

// dirtyAllocator hands out regions full of garbage to prove the buffer
// zero fills what it got.
type dirtyAllocator struct{}

func (dirtyAllocator) Alloc(byteCount int) []byte {
	data := make([]byte, byteCount)
	for i := range data {
		data[i] = 0xa5
	}
	return data
}

func (dirtyAllocator) Free(region []byte) {}

// recordingAllocator counts Alloc and Free calls. Free arrives from the
// finalizer goroutine so the records are mutex guarded.
type recordingAllocator struct {
	mu      sync.Mutex
	allocs  []int
	freeCnt int
}

func (a *recordingAllocator) Alloc(byteCount int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allocs = append(a.allocs, byteCount)
	if byteCount == MaxByteLength {
		// pretend-allocation for the max size test
		return make([]byte, 0)
	}
	return make([]byte, byteCount)
}

func (a *recordingAllocator) Free(region []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeCnt++
}

func (a *recordingAllocator) freed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeCnt
}
