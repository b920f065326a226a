package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/logger"
	"github.com/scripthost/extmem/membuf"
	"github.com/scripthost/extmem/view"
)

const (
	memModule = "extmem"

	fnBufferNew     = "buffer_new"
	fnBufferLen     = "buffer_len"
	fnBufferRelease = "buffer_release"
	fnBufferRead    = "buffer_read"
	fnBufferWrite   = "buffer_write"
	fnViewNew       = "view_new"
	fnViewLen       = "view_len"
	fnViewGet       = "view_get"
	fnViewSet       = "view_set"
	fnMemBytes      = "mem_bytes"
)

// Status codes returned to the guest, any negative value is a failure.
const (
	OK              = 0
	ErrCodeHandle   = -1 // unknown handle or a handle of the wrong type
	ErrCodeArgument = -2 // construction or range argument rejected
	ErrCodeIndex    = -3 // element index out of range
	ErrCodeMemory   = -4 // guest linear memory access failed
)

// guestMemory is the slice of the guest's linear memory API the host
// functions touch, kept narrow so tests can drive them with a fake.
type guestMemory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	WriteUint64Le(offset uint32, v uint64) bool
}

/*
memHost implements the "extmem" host module: guests refer to buffers
and views through integer handles, each handle pinning its object until
buffer_release drops it. The table is mutex guarded as host functions
run on whatever goroutine drives the guest.
*/
type memHost struct {
	log     *slog.Logger
	acct    *membuf.Accounting
	bufOpts []membuf.Option

	mu      sync.Mutex
	nextID  int32
	handles map[int32]hostrt.Value
}

/*
BuildMemHostModule returns the host module giving WASM guests access to
the buffer subsystem. Buffers constructed by the guest attach to acct.

Exported functions, i32 arguments and results unless noted:

	buffer_new(byteLength) -> handle
	buffer_len(h) -> i64 byte length
	buffer_release(h) -> status, drops any handle, buffer or view
	buffer_read(h, ptr, byteOffset, n) -> n, copies buffer bytes to guest memory
	buffer_write(h, ptr, byteOffset, n) -> n, copies guest memory into the buffer
	view_new(kind, h, byteOffset, count) -> handle, h=0 makes a fresh
	    backing buffer, count<0 takes the remainder of the buffer
	view_len(h) -> element count
	view_get(h, i, outPtr) -> status, stores the element as f64 bits at outPtr
	view_set(h, i, f64 value) -> status
	mem_bytes() -> i64 bytes of live external memory
*/
func BuildMemHostModule(acct *membuf.Accounting, log *slog.Logger) (HostModuleFn, error) {
	if acct == nil {
		return nil, errors.New("accounting is nil")
	}
	if log == nil {
		return nil, errors.New("logger is nil")
	}
	return newMemHost(acct, log).module, nil
}

func newMemHost(acct *membuf.Accounting, log *slog.Logger) *memHost {
	return &memHost{
		log:  log,
		acct: acct,
		bufOpts: []membuf.Option{
			membuf.WithAccounting(acct),
			membuf.WithLogger(log),
		},
		nextID:  1,
		handles: map[int32]hostrt.Value{},
	}
}

func (h *memHost) module(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	f64 := api.ValueTypeF64
	return rt.NewHostModuleBuilder(memModule).
		NewFunctionBuilder().WithGoModuleFunction(h.bufferNewFn(), []api.ValueType{i32}, []api.ValueType{i32}).Export(fnBufferNew).
		NewFunctionBuilder().WithGoModuleFunction(h.bufferLenFn(), []api.ValueType{i32}, []api.ValueType{i64}).Export(fnBufferLen).
		NewFunctionBuilder().WithGoModuleFunction(h.bufferReleaseFn(), []api.ValueType{i32}, []api.ValueType{i32}).Export(fnBufferRelease).
		NewFunctionBuilder().WithGoModuleFunction(h.bufferReadFn(), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).Export(fnBufferRead).
		NewFunctionBuilder().WithGoModuleFunction(h.bufferWriteFn(), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).Export(fnBufferWrite).
		NewFunctionBuilder().WithGoModuleFunction(h.viewNewFn(), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).Export(fnViewNew).
		NewFunctionBuilder().WithGoModuleFunction(h.viewLenFn(), []api.ValueType{i32}, []api.ValueType{i32}).Export(fnViewLen).
		NewFunctionBuilder().WithGoModuleFunction(h.viewGetFn(), []api.ValueType{i32, i32, i32}, []api.ValueType{i32}).Export(fnViewGet).
		NewFunctionBuilder().WithGoModuleFunction(h.viewSetFn(), []api.ValueType{i32, i32, f64}, []api.ValueType{i32}).Export(fnViewSet).
		NewFunctionBuilder().WithGoModuleFunction(h.memBytesFn(), nil, []api.ValueType{i64}).Export(fnMemBytes).
		Instantiate(ctx)
}

func (h *memHost) bufferNewFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.bufferNew(ctx, api.DecodeI32(stack[0])))
	}
}

func (h *memHost) bufferLenFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI64(h.bufferLen(api.DecodeI32(stack[0])))
	}
}

func (h *memHost) bufferReleaseFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.release(api.DecodeI32(stack[0])))
	}
}

func (h *memHost) bufferReadFn() api.GoModuleFunc {
	return func(ctx context.Context, m api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.bufferRead(ctx, m.Memory(),
			api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), api.DecodeI32(stack[2]), api.DecodeI32(stack[3])))
	}
}

func (h *memHost) bufferWriteFn() api.GoModuleFunc {
	return func(ctx context.Context, m api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.bufferWrite(ctx, m.Memory(),
			api.DecodeI32(stack[0]), api.DecodeU32(stack[1]), api.DecodeI32(stack[2]), api.DecodeI32(stack[3])))
	}
}

func (h *memHost) viewNewFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.viewNew(ctx,
			api.DecodeI32(stack[0]), api.DecodeI32(stack[1]), api.DecodeI32(stack[2]), api.DecodeI32(stack[3])))
	}
}

func (h *memHost) viewLenFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.viewLen(api.DecodeI32(stack[0])))
	}
}

func (h *memHost) viewGetFn() api.GoModuleFunc {
	return func(ctx context.Context, m api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.viewGet(ctx, m.Memory(),
			api.DecodeI32(stack[0]), api.DecodeI32(stack[1]), api.DecodeU32(stack[2])))
	}
}

func (h *memHost) viewSetFn() api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI32(h.viewSet(ctx,
			api.DecodeI32(stack[0]), api.DecodeI32(stack[1]), api.DecodeF64(stack[2])))
	}
}

func (h *memHost) memBytesFn() api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		stack[0] = api.EncodeI64(h.acct.Bytes())
	}
}

func (h *memHost) pin(v hostrt.Value) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.handles[id] = v
	return id
}

func (h *memHost) release(handle int32) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.handles[handle]; !ok {
		return ErrCodeHandle
	}
	delete(h.handles, handle)
	return OK
}

func (h *memHost) buffer(handle int32) *membuf.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, _ := h.handles[handle].(*membuf.Buffer)
	return buf
}

func (h *memHost) view(handle int32) *view.View {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, _ := h.handles[handle].(*view.View)
	return v
}

func (h *memHost) bufferNew(ctx context.Context, byteLength int32) int32 {
	buf, err := membuf.New(int64(byteLength), h.bufOpts...)
	if err != nil {
		h.log.WarnContext(ctx, "buffer construction failed", logger.Error(err))
		return ErrCodeArgument
	}
	return h.pin(buf)
}

func (h *memHost) bufferLen(handle int32) int64 {
	buf := h.buffer(handle)
	if buf == nil {
		return ErrCodeHandle
	}
	return int64(buf.ByteLength())
}

func (h *memHost) bufferRead(ctx context.Context, mem guestMemory, handle int32, ptr uint32, byteOffset, byteCount int32) int32 {
	buf := h.buffer(handle)
	if buf == nil {
		return ErrCodeHandle
	}
	if byteOffset < 0 || byteCount < 0 || int64(byteOffset)+int64(byteCount) > int64(buf.ByteLength()) {
		return ErrCodeArgument
	}
	if mem == nil || !mem.Write(ptr, buf.Bytes()[byteOffset:byteOffset+byteCount]) {
		h.log.WarnContext(ctx, "copying buffer content to guest memory failed")
		return ErrCodeMemory
	}
	return byteCount
}

func (h *memHost) bufferWrite(ctx context.Context, mem guestMemory, handle int32, ptr uint32, byteOffset, byteCount int32) int32 {
	buf := h.buffer(handle)
	if buf == nil {
		return ErrCodeHandle
	}
	if byteOffset < 0 || byteCount < 0 || int64(byteOffset)+int64(byteCount) > int64(buf.ByteLength()) {
		return ErrCodeArgument
	}
	var data []byte
	if mem != nil {
		var ok bool
		if data, ok = mem.Read(ptr, uint32(byteCount)); !ok {
			data = nil
		}
	}
	if data == nil && byteCount > 0 {
		h.log.WarnContext(ctx, "reading buffer content from guest memory failed")
		return ErrCodeMemory
	}
	copy(buf.Bytes()[byteOffset:byteOffset+byteCount], data)
	return byteCount
}

func (h *memHost) viewNew(ctx context.Context, kindCode, handle, byteOffset, count int32) int32 {
	if kindCode < int32(view.Int8) || kindCode > int32(view.Float64) {
		h.log.WarnContext(ctx, fmt.Sprintf("view construction failed: invalid element kind %d", kindCode))
		return ErrCodeArgument
	}
	kind := view.Kind(kindCode)

	var v *view.View
	var err error
	if handle == 0 {
		if byteOffset != 0 || count < 0 {
			return ErrCodeArgument
		}
		v, err = view.New(kind, count, h.bufOpts...)
	} else {
		buf := h.buffer(handle)
		if buf == nil {
			return ErrCodeHandle
		}
		if count < 0 {
			v, err = view.Of(kind, buf, byteOffset)
		} else {
			v, err = view.OfLen(kind, buf, byteOffset, count)
		}
	}
	if err != nil {
		h.log.WarnContext(ctx, "view construction failed", logger.Error(err))
		return ErrCodeArgument
	}
	return h.pin(v)
}

func (h *memHost) viewLen(handle int32) int32 {
	v := h.view(handle)
	if v == nil {
		return ErrCodeHandle
	}
	return int32(v.Len())
}

func (h *memHost) viewGet(ctx context.Context, mem guestMemory, handle, index int32, outPtr uint32) int32 {
	v := h.view(handle)
	if v == nil {
		return ErrCodeHandle
	}
	if index < 0 || int(index) >= v.Len() {
		return ErrCodeIndex
	}
	if mem == nil || !mem.WriteUint64Le(outPtr, math.Float64bits(v.Number(int(index)))) {
		h.log.WarnContext(ctx, "writing element value to guest memory failed")
		return ErrCodeMemory
	}
	return OK
}

func (h *memHost) viewSet(ctx context.Context, handle, index int32, value float64) int32 {
	v := h.view(handle)
	if v == nil {
		return ErrCodeHandle
	}
	if index < 0 || int(index) >= v.Len() {
		return ErrCodeIndex
	}
	v.SetNumber(int(index), value)
	return OK
}
