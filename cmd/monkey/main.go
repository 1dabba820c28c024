// Monkey CLI - runs Monkey programs, the REPL, the evaluation server and the
// language server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/server"
	"github.com/chazu/monkey/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("monkey.cli")

// options holds the command line. Fields left at their zero value fall back
// to the manifest.
type options struct {
	expr        string
	interactive bool
	engine      string
	disassemble bool
	trace       bool
	profile     bool
	serve       bool
	port        int
	lsp         bool
	verbosity   int
	logFile     string
	file        string

	set map[string]bool // flags given explicitly
}

func main() {
	var o options
	flag.StringVar(&o.expr, "e", "", "Evaluate an expression and print the result")
	flag.BoolVar(&o.interactive, "i", false, "Start interactive REPL")
	flag.StringVar(&o.engine, "engine", "", "Execution engine: vm or eval (default from monkey.toml, else vm)")
	flag.BoolVar(&o.disassemble, "d", false, "Print bytecode instead of running")
	flag.BoolVar(&o.trace, "trace", false, "Trace each VM instruction to stderr")
	flag.BoolVar(&o.profile, "profile", false, "Print opcode counts to stderr after running")
	flag.BoolVar(&o.serve, "serve", false, "Start evaluation server (Connect + gRPC)")
	flag.IntVar(&o.port, "port", 0, "Server port (used with -serve, default 4567)")
	flag.BoolVar(&o.lsp, "lsp", false, "Start language server on stdio")
	flag.IntVar(&o.verbosity, "v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	flag.StringVar(&o.logFile, "log", "", "Write logs to this file instead of stderr")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: monkey [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Monkey program. Without a file, runs the monkey.toml entry or starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  monkey                      # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  monkey fib.monkey           # Run a file\n")
		fmt.Fprintf(os.Stderr, "  monkey -e 'len(\"abc\")'      # Evaluate an expression\n")
		fmt.Fprintf(os.Stderr, "  monkey -d fib.monkey        # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  monkey -engine eval -i      # REPL on the tree-walking evaluator\n")
		fmt.Fprintf(os.Stderr, "\nServers:\n")
		fmt.Fprintf(os.Stderr, "  monkey -serve -port 8080    # Evaluation server on :8080\n")
		fmt.Fprintf(os.Stderr, "  monkey -lsp                 # Language server on stdio\n")
	}
	flag.Parse()

	if flag.NArg() > 1 {
		flag.Usage()
		os.Exit(2)
	}
	o.file = flag.Arg(0)
	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	m, err := loadManifest(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := o.apply(m); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	os.Exit(run(&o, m, os.Stdin, os.Stdout, os.Stderr))
}

// loadManifest finds monkey.toml above dir, or returns the defaults.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// apply overrides manifest settings with flags given on the command line.
func (o *options) apply(m *manifest.Manifest) error {
	if o.set["engine"] {
		m.VM.Engine = o.engine
	}
	if o.set["trace"] {
		m.VM.Trace = o.trace
	}
	if o.set["port"] {
		m.Server.Addr = fmt.Sprintf(":%d", o.port)
	}
	if o.set["v"] {
		m.Log.Verbosity = o.verbosity
	}
	if o.set["log"] {
		m.Log.File = o.logFile
	}
	return m.Validate()
}

// run executes the selected mode and returns the process exit status.
func run(o *options, m *manifest.Manifest, stdin io.Reader, stdout, stderr io.Writer) int {
	var logPath *string
	if m.Log.File != "" {
		logPath = &m.Log.File
	}
	commonlog.Configure(m.Log.Verbosity, logPath)

	switch {
	case o.lsp:
		if err := server.NewLSP().Run(); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0

	case o.serve:
		if err := serve(m); err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
		return 0
	}

	var extra []vm.Option
	if m.VM.Trace {
		extra = append(extra, vm.WithTrace(stderr))
	}
	s := newState(m, stdout, extra...)
	if o.profile {
		s.profiler = vm.NewProfiler()
		defer s.profiler.Report(stderr)
	}

	source, name, err := programSource(o, m)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if source != "" {
		if o.disassemble {
			bc, err := compiler.Compile(source)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %s: %v\n", name, err)
				return 1
			}
			fmt.Fprint(stdout, bc.Disassemble())
			return 0
		}

		log.Debugf("running %s on the %s engine", name, s.engine)
		result, quiet, err := s.eval(source)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", name, err)
			return 1
		}
		if o.expr != "" && !quiet && result != nil {
			fmt.Fprintln(stdout, result.Inspect())
		}
		if !o.interactive {
			return 0
		}
	}

	runREPL(s, stdin, stdout, m.VM.GlobalsSize)
	return 0
}

// programSource picks the program to run: -e, then the file argument, then
// the manifest entry. An empty source means there is nothing to run.
func programSource(o *options, m *manifest.Manifest) (source, name string, err error) {
	switch {
	case o.expr != "":
		return o.expr, "-e", nil
	case o.file != "":
		data, err := os.ReadFile(o.file)
		if err != nil {
			return "", "", err
		}
		return string(data), o.file, nil
	case m.EntryPath() != "" && !o.interactive:
		path := m.EntryPath()
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("manifest entry: %w", err)
		}
		return string(data), path, nil
	}
	return "", "", nil
}

// serve runs the evaluation server until interrupted.
func serve(m *manifest.Manifest) error {
	opts := []server.ServerOption{
		server.WithVMOptions(m.VMOptions()...),
		server.WithGlobalsSize(m.VM.GlobalsSize),
		server.WithMaxFrames(m.VM.MaxFrames),
	}
	if path := m.HistoryPath(); path != "" {
		history, err := server.OpenHistory(path)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithHistory(history))
	}
	srv := server.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(m.Server.Addr) }()

	select {
	case err := <-errc:
		srv.Stop(context.Background())
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errc
}
