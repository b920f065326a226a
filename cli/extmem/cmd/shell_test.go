package cmd

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scripthost/extmem/hostrt"
	testlogger "github.com/scripthost/extmem/internal/testutils/logger"
	testobserve "github.com/scripthost/extmem/internal/testutils/observability"
	"github.com/scripthost/extmem/membuf"
	"github.com/scripthost/extmem/typedarray"
)

func Test_shellRunner_run(t *testing.T) {
	t.Run("session", func(t *testing.T) {
		sh, out, acct := newTestShell(t)

		input := strings.Join([]string{
			"buffer 16",
			"view int32 $1",
			"set $2 0 258",
			"get $2 0",
			"hex $2",
			"view uint8 $1 4 4",
			"stats",
			"drop $1",
			"quit",
		}, "\n")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, sh.run(ctx, strings.NewReader(input)))

		wantBytes := make([]byte, 16)
		binary.NativeEndian.PutUint32(wantBytes, 258)

		lines := out.output()
		require.Len(t, lines, 6)
		require.Contains(t, lines[0], "$1 = buffer of 16 bytes")
		require.Equal(t, "$2 = int32 view of 4 elements at byteOffset 0", lines[1])
		require.Equal(t, "258", lines[2])
		require.Equal(t, hex.EncodeToString(wantBytes), lines[3])
		require.Equal(t, "$3 = uint8 view of 4 elements at byteOffset 4", lines[4])
		require.Equal(t, "buffers=1 bytes=16", lines[5])

		// $1 was dropped but the views still pin the buffer
		require.EqualValues(t, 1, acct.Buffers())
	})

	t.Run("errors do not end the session", func(t *testing.T) {
		sh, out, _ := newTestShell(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, sh.run(ctx, strings.NewReader("bogus\nbuffer -1\nquit")))

		lines := out.output()
		require.Len(t, lines, 2)
		require.Equal(t, `error: unknown command "bogus", try help`, lines[0])
		require.Equal(t, "error: length must not be negative: -1", lines[1])
	})

	t.Run("EOF ends the shell", func(t *testing.T) {
		sh, _, acct := newTestShell(t)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, sh.run(ctx, strings.NewReader("buffer 8\n")))

		require.Contains(t, sh.vars, "$1")
		require.EqualValues(t, 1, acct.Buffers())
	})

	t.Run("context cancellation stops the shell", func(t *testing.T) {
		sh, _, _ := newTestShell(t)

		r, w := io.Pipe()
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- sh.run(ctx, r) }()
		cancel()

		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("shell did not stop on context cancellation")
		}
	})
}

func Test_shellRunner_eval(t *testing.T) {
	t.Run("argument errors", func(t *testing.T) {
		sh, _, _ := newTestShell(t)
		_, err := sh.eval("buffer 16")
		require.NoError(t, err)
		_, err = sh.eval("view uint8 $1")
		require.NoError(t, err)

		cases := []struct {
			line string
			err  string
		}{
			{line: "buffer", err: "usage: buffer BYTES"},
			{line: "buffer 1 2", err: "usage: buffer BYTES"},
			{line: "view", err: "usage: view KIND COUNT | view KIND $BUF [OFF [COUNT]]"},
			{line: "view quux 4", err: `unknown element kind "quux"`},
			{line: "view uint8 $9", err: "unknown binding $9"},
			{line: "set $1 0 7", err: "$1 is not a view"},
			{line: "set $2 0", err: "usage: set $VIEW INDEX VALUE"},
			{line: "set $2 x 7", err: `invalid index "x"`},
			{line: "set $2 16 7", err: "index 16 out of range [0:16]"},
			{line: "set $2 0 x", err: `invalid value "x"`},
			{line: "get $2 -1", err: "index -1 out of range [0:16]"},
			{line: "hex $9", err: "unknown binding $9"},
			{line: "hex 12", err: "12 is not a buffer or a view"},
			{line: "drop $9", err: "unknown binding $9"},
			{line: "frobnicate", err: `unknown command "frobnicate", try help`},
		}
		for _, tc := range cases {
			t.Run(tc.line, func(t *testing.T) {
				quit, err := sh.eval(tc.line)
				require.False(t, quit)
				require.EqualError(t, err, tc.err)
			})
		}
	})

	t.Run("quit and exit", func(t *testing.T) {
		sh, _, _ := newTestShell(t)
		for _, line := range []string{"quit", "exit"} {
			quit, err := sh.eval(line)
			require.NoError(t, err)
			require.True(t, quit)
		}
	})

	t.Run("empty line is a no-op", func(t *testing.T) {
		sh, out, _ := newTestShell(t)
		quit, err := sh.eval("   ")
		require.NoError(t, err)
		require.False(t, quit)
		require.Empty(t, out.lines)
	})

	t.Run("hex literal length", func(t *testing.T) {
		sh, out, _ := newTestShell(t)
		_, err := sh.eval("buffer 0x10")
		require.NoError(t, err)
		require.Contains(t, out.lines[0], "$1 = buffer of 16 bytes")
	})

	t.Run("help lists every command", func(t *testing.T) {
		sh, out, _ := newTestShell(t)
		_, err := sh.eval("help")
		require.NoError(t, err)
		joined := strings.Join(out.lines, "\n")
		for _, name := range []string{"buffer", "view", "set", "get", "hex", "stats", "drop", "gc", "quit"} {
			require.Contains(t, joined, name)
		}
	})
}

func Test_runShell(t *testing.T) {
	t.Run("session over the console writer", func(t *testing.T) {
		out := &testConsoleWriter{}
		consoleWriter = out

		obs := testobserve.Default(t)
		config := &baseConfiguration{observe: obs, log: obs.Logger()}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, runShell(ctx, config, strings.NewReader("stats\nquit"), "127.0.0.1:0"))

		lines := out.output()
		require.Len(t, lines, 1)
		require.Equal(t, "buffers=0 bytes=0", lines[0])
	})

	t.Run("prometheus exporter serves metrics", func(t *testing.T) {
		consoleWriter = &testConsoleWriter{}

		obs, err := newObservability("prometheus", "", testlogger.NOP())
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, obs.Shutdown()) })
		config := &baseConfiguration{observe: obs, log: obs.Logger()}

		addr := freeLocalAddr(t)
		in, w := io.Pipe()
		defer w.Close()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- runShell(ctx, config, in, addr) }()

		var body []byte
		require.Eventually(t, func() bool {
			rsp, err := http.Get("http://" + addr + "/metrics")
			if err != nil {
				return false
			}
			defer rsp.Body.Close()
			body, err = io.ReadAll(rsp.Body)
			return err == nil && rsp.StatusCode == http.StatusOK
		}, 3*time.Second, 50*time.Millisecond, "the /metrics endpoint must come up")
		require.Contains(t, string(body), "membuf")

		cancel()
		select {
		case err := <-done:
			require.ErrorIs(t, err, context.Canceled)
		case <-time.After(3 * time.Second):
			t.Fatal("shell did not stop on context cancellation")
		}
	})
}

func Test_shellRunner_gc(t *testing.T) {
	sh, _, acct := newTestShell(t)

	_, err := sh.eval("buffer 64")
	require.NoError(t, err)
	require.EqualValues(t, 1, acct.Buffers())
	require.EqualValues(t, 64, acct.Bytes())

	_, err = sh.eval("drop $1")
	require.NoError(t, err)
	_, err = sh.eval("gc")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		runtime.GC()
		return acct.Buffers() == 0 && acct.Bytes() == 0
	}, 5*time.Second, 10*time.Millisecond, "dropped buffer must be reclaimed")
}

func freeLocalAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestShell(t *testing.T) (*shellRunner, *testConsoleWriter, *membuf.Accounting) {
	t.Helper()

	acct := &membuf.Accounting{}
	env, err := typedarray.New(hostrt.StdRuntime{},
		typedarray.WithLogger(testlogger.NOP()),
		typedarray.WithAccounting(acct),
	)
	require.NoError(t, err)

	out := &testConsoleWriter{}
	return &shellRunner{env: env, acct: acct, out: out, vars: map[string]hostrt.Value{}}, out, acct
}

type testConsoleWriter struct {
	lines []string
}

func (w *testConsoleWriter) Println(a ...any) {
	s := fmt.Sprintln(a...)
	w.lines = append(w.lines, s[:len(s)-1]) // remove newline
}

func (w *testConsoleWriter) Print(a ...any) {
	w.Println(a...)
}

// output returns the captured lines with prompts filtered out.
func (w *testConsoleWriter) output() []string {
	var lines []string
	for _, l := range w.lines {
		if l != "> " {
			lines = append(lines, l)
		}
	}
	return lines
}
