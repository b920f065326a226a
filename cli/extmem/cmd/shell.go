package cmd

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ainvaltin/httpsrv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scripthost/extmem/hostrt"
	"github.com/scripthost/extmem/internal/debug"
	"github.com/scripthost/extmem/membuf"
	"github.com/scripthost/extmem/typedarray"
	"github.com/scripthost/extmem/view"
)

func newShellCmd(baseConfig *baseConfiguration) *cobra.Command {
	var metricsAddr string
	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Run the interactive memory shell",
		Long: `The shell reads one command per line and binds every buffer and view
it constructs to the next $n symbol. Type "help" for the command list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd.Context(), baseConfig, os.Stdin, metricsAddr)
		},
	}
	shellCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":7070", "address of the /metrics endpoint, served when the prometheus exporter is selected")
	return shellCmd
}

func runShell(ctx context.Context, config *baseConfiguration, in io.Reader, metricsAddr string) error {
	obs := config.observe
	log := obs.Logger()

	acct := &membuf.Accounting{}
	if err := acct.RegisterMetrics(obs); err != nil {
		return fmt.Errorf("registering memory metrics: %w", err)
	}

	env, err := typedarray.New(hostrt.StdRuntime{},
		typedarray.WithLogger(log),
		typedarray.WithAccounting(acct),
		typedarray.WithObservability(obs),
	)
	if err != nil {
		return fmt.Errorf("creating construction environment: %w", err)
	}

	log.InfoContext(ctx, fmt.Sprintf("starting memory shell: BuildInfo=%s", debug.ReadBuildInfo()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if handler := obs.MetricsHandler(); handler != nil {
		g.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			server := http.Server{
				Addr:              metricsAddr,
				Handler:           mux,
				ReadTimeout:       3 * time.Second,
				ReadHeaderTimeout: time.Second,
				WriteTimeout:      5 * time.Second,
				IdleTimeout:       30 * time.Second,
			}
			return httpsrv.Run(ctx, &server, httpsrv.ShutdownTimeout(5*time.Second))
		})
	}

	g.Go(func() error {
		// quitting the shell stops the metrics server as well
		defer cancel()
		sh := &shellRunner{
			env:  env,
			acct: acct,
			out:  consoleWriter,
			vars: map[string]hostrt.Value{},
		}
		return sh.run(ctx, in)
	})

	return g.Wait()
}

/*
shellRunner evaluates memory shell commands. Constructed buffers and
views are bound to $1, $2, ... in order of construction and stay live,
and thus accounted, until dropped.
*/
type shellRunner struct {
	env  *typedarray.Env
	acct *membuf.Accounting
	out  consoleWrapper
	vars map[string]hostrt.Value
	seq  int
}

func (s *shellRunner) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	s.out.Print("> ")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			quit, err := s.eval(line)
			if err != nil {
				s.out.Println("error:", err)
			}
			if quit {
				return nil
			}
			s.out.Print("> ")
		}
	}
}

func (s *shellRunner) eval(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "buffer":
		if len(args) != 1 {
			return false, errors.New("usage: buffer BYTES")
		}
		return false, s.construct(s.env.ArrayBuffer, args)
	case "view":
		if len(args) < 1 {
			return false, errors.New("usage: view KIND COUNT | view KIND $BUF [OFF [COUNT]]")
		}
		kind, err := view.ParseKind(args[0])
		if err != nil {
			return false, err
		}
		return false, s.construct(s.ctor(kind), args[1:])
	case "set":
		if len(args) != 3 {
			return false, errors.New("usage: set $VIEW INDEX VALUE")
		}
		v, i, err := s.element(args[0], args[1])
		if err != nil {
			return false, err
		}
		f, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return false, fmt.Errorf("invalid value %q", args[2])
		}
		v.SetNumber(i, f)
		return false, nil
	case "get":
		if len(args) != 2 {
			return false, errors.New("usage: get $VIEW INDEX")
		}
		v, i, err := s.element(args[0], args[1])
		if err != nil {
			return false, err
		}
		s.out.Println(strconv.FormatFloat(v.Number(i), 'g', -1, 64))
		return false, nil
	case "hex":
		if len(args) != 1 {
			return false, errors.New("usage: hex $NAME")
		}
		val, err := s.value(args[0])
		if err != nil {
			return false, err
		}
		switch v := val.(type) {
		case *membuf.Buffer:
			s.out.Println(hex.EncodeToString(v.Bytes()))
		case *view.View:
			s.out.Println(hex.EncodeToString(v.Bytes()))
		default:
			return false, fmt.Errorf("%s is not a buffer or a view", args[0])
		}
		return false, nil
	case "stats":
		s.out.Println(fmt.Sprintf("buffers=%d bytes=%d", s.acct.Buffers(), s.acct.Bytes()))
		return false, nil
	case "drop":
		if len(args) != 1 {
			return false, errors.New("usage: drop $NAME")
		}
		if _, ok := s.vars[args[0]]; !ok {
			return false, fmt.Errorf("unknown binding %s", args[0])
		}
		delete(s.vars, args[0])
		return false, nil
	case "gc":
		runtime.GC()
		return false, nil
	case "help":
		s.printHelp()
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
}

// construct builds a buffer or view, binds the result to the next $n
// symbol and prints the binding.
func (s *shellRunner) construct(ctor typedarray.Ctor, args []string) error {
	vals := make([]hostrt.Value, 0, len(args))
	for _, arg := range args {
		val, err := s.value(arg)
		if err != nil {
			return err
		}
		vals = append(vals, val)
	}

	res, err := ctor(vals...)
	if err != nil {
		return err
	}

	s.seq++
	name := fmt.Sprintf("$%d", s.seq)
	s.vars[name] = res
	s.out.Println(name + " = " + describe(res))
	return nil
}

/*
value resolves one command argument: $ names resolve to their binding,
"undefined" to the undefined value, numeric literals to numbers and
everything else is passed on as a string. Construction coerces strings
the same way the host does, so hex literals like 0xff work as lengths.
*/
func (s *shellRunner) value(arg string) (hostrt.Value, error) {
	if strings.HasPrefix(arg, "$") {
		val, ok := s.vars[arg]
		if !ok {
			return nil, fmt.Errorf("unknown binding %s", arg)
		}
		return val, nil
	}
	if arg == "undefined" {
		return hostrt.Undefined{}, nil
	}
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return hostrt.Number(f), nil
	}
	return hostrt.String(arg), nil
}

// element resolves a view binding and an element index inside it.
func (s *shellRunner) element(name, index string) (*view.View, int, error) {
	val, err := s.value(name)
	if err != nil {
		return nil, 0, err
	}
	v, ok := val.(*view.View)
	if !ok {
		return nil, 0, fmt.Errorf("%s is not a view", name)
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid index %q", index)
	}
	if i < 0 || i >= v.Len() {
		return nil, 0, fmt.Errorf("index %d out of range [0:%d]", i, v.Len())
	}
	return v, i, nil
}

func (s *shellRunner) ctor(kind view.Kind) typedarray.Ctor {
	switch kind {
	case view.Int8:
		return s.env.Int8Array
	case view.Uint8:
		return s.env.Uint8Array
	case view.Int16:
		return s.env.Int16Array
	case view.Uint16:
		return s.env.Uint16Array
	case view.Int32:
		return s.env.Int32Array
	case view.Uint32:
		return s.env.Uint32Array
	case view.Float32:
		return s.env.Float32Array
	default:
		return s.env.Float64Array
	}
}

func describe(val hostrt.Value) string {
	switch v := val.(type) {
	case *membuf.Buffer:
		return fmt.Sprintf("buffer of %d bytes (id %d)", v.ByteLength(), v.ID())
	case *view.View:
		return fmt.Sprintf("%s view of %d elements at byteOffset %d", v.ElemKind(), v.Len(), v.ByteOffset())
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (s *shellRunner) printHelp() {
	s.out.Println("commands:")
	s.out.Println("  buffer BYTES                  allocate a buffer, bind it to the next $n")
	s.out.Println("  view KIND COUNT               allocate a view over a fresh buffer")
	s.out.Println("  view KIND $BUF [OFF [COUNT]]  view an existing buffer, OFF in bytes")
	s.out.Println("  set $VIEW INDEX VALUE         store a number into a view element")
	s.out.Println("  get $VIEW INDEX               load a view element")
	s.out.Println("  hex $NAME                     dump buffer or view bytes")
	s.out.Println("  stats                         live buffer and byte counts")
	s.out.Println("  drop $NAME                    remove a binding")
	s.out.Println("  gc                            run a garbage collection cycle")
	s.out.Println("  quit                          leave the shell")
	s.out.Println("KIND is one of: int8, uint8, int16, uint16, int32, uint32, float32, float64")
}
