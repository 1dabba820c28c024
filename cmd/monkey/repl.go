package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/evaluator"
	"github.com/chazu/monkey/manifest"
	"github.com/chazu/monkey/vm"
)

// state holds everything that survives between evaluations: the compiler's
// symbol table and constants and the VM globals for the vm engine, the
// environment for the eval engine.
type state struct {
	engine   string
	vmOpts   []vm.Option
	maxDepth int
	out      io.Writer

	symbols   *compiler.SymbolTable
	constants []vm.Object
	globals   []vm.Object
	env       *evaluator.Environment

	profiler *vm.Profiler
}

func newState(m *manifest.Manifest, out io.Writer, extra ...vm.Option) *state {
	s := &state{
		engine:   m.VM.Engine,
		vmOpts:   append(m.VMOptions(), extra...),
		maxDepth: m.VM.MaxFrames,
		out:      out,
	}
	s.reset(m.VM.GlobalsSize)
	return s
}

func (s *state) reset(globalsSize int) {
	s.symbols = compiler.NewSymbolTableWithBuiltins()
	s.constants = nil
	s.globals = make([]vm.Object, globalsSize)
	s.env = evaluator.NewEnvironment()
}

// eval runs source and returns its value. quiet is true when the program
// ends in a let statement and there is nothing worth printing.
func (s *state) eval(source string) (result vm.Object, quiet bool, err error) {
	program, err := compiler.Parse(source)
	if err != nil {
		return nil, false, err
	}
	if n := len(program.Statements); n == 0 {
		quiet = true
	} else if _, ok := program.Statements[n-1].(*compiler.LetStatement); ok {
		quiet = true
	}

	if s.engine == manifest.EngineEval {
		ev := evaluator.New(evaluator.WithOutput(s.out), evaluator.WithMaxDepth(s.maxDepth))
		result, err = ev.Run(program, s.env)
		return result, quiet, err
	}

	c := compiler.NewWithState(s.symbols, s.constants)
	if err := c.Compile(program); err != nil {
		return nil, quiet, err
	}
	s.constants = c.Constants()

	opts := append([]vm.Option{}, s.vmOpts...)
	opts = append(opts, vm.WithGlobals(s.globals), vm.WithOutput(s.out))
	if s.profiler != nil {
		opts = append(opts, vm.WithProfiler(s.profiler))
	}
	machine := vm.New(c.Bytecode(), opts...)
	if err := machine.Run(); err != nil {
		return nil, quiet, err
	}
	return machine.LastPoppedStackElem(), quiet, nil
}

// needsMore reports whether input has unclosed brackets, braces or parens.
func needsMore(input string) bool {
	depth := 0
	for _, tok := range compiler.Tokenize(input) {
		switch tok.Type {
		case compiler.TokenLParen, compiler.TokenLBrace, compiler.TokenLBracket:
			depth++
		case compiler.TokenRParen, compiler.TokenRBrace, compiler.TokenRBracket:
			depth--
		}
	}
	return depth > 0
}

// runREPL starts an interactive read-eval-print loop
func runREPL(s *state, in io.Reader, out io.Writer, globalsSize int) {
	fmt.Fprintln(out, "Monkey REPL (type 'exit' to quit, ':help' for commands)")
	fmt.Fprintf(out, "Engine: %s\n\n", s.engine)

	scanner := bufio.NewScanner(in)
	lineBuffer := strings.Builder{}

	for {
		if lineBuffer.Len() == 0 {
			fmt.Fprint(out, ">> ")
		} else {
			fmt.Fprint(out, ".. ")
		}

		if !scanner.Scan() {
			break
		}
		line := scanner.Text()

		if lineBuffer.Len() == 0 {
			trimmed := strings.TrimSpace(line)
			if trimmed == "exit" || trimmed == "quit" {
				break
			}
			if strings.HasPrefix(trimmed, ":") {
				handleREPLCommand(s, trimmed, out, globalsSize)
				continue
			}
		}

		if lineBuffer.Len() > 0 {
			lineBuffer.WriteString("\n")
		}
		lineBuffer.WriteString(line)

		input := lineBuffer.String()
		if needsMore(input) && line != "" {
			continue
		}
		lineBuffer.Reset()

		if strings.TrimSpace(input) == "" {
			continue
		}
		evalAndPrint(s, input, out)
	}

	fmt.Fprintln(out)
}

// handleREPLCommand handles REPL meta-commands
func handleREPLCommand(s *state, cmd string, out io.Writer, globalsSize int) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(out, "REPL Commands:")
		fmt.Fprintln(out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(out, "  :engine [vm|eval] Show or switch the execution engine")
		fmt.Fprintln(out, "  :dis <expr>       Show the bytecode for an expression")
		fmt.Fprintln(out, "  :reset            Forget all definitions")
		fmt.Fprintln(out, "  exit, quit        Exit REPL")
	case ":engine":
		if len(fields) == 1 {
			fmt.Fprintf(out, "Current engine: %s\n", s.engine)
			return
		}
		switch fields[1] {
		case manifest.EngineVM, manifest.EngineEval:
			s.engine = fields[1]
			fmt.Fprintf(out, "Switched to %s engine (definitions are kept per engine)\n", s.engine)
		default:
			fmt.Fprintf(out, "Unknown engine: %s (use vm or eval)\n", fields[1])
		}
	case ":dis":
		source := strings.TrimSpace(strings.TrimPrefix(cmd, ":dis"))
		if source == "" {
			fmt.Fprintln(out, "Usage: :dis <expr>")
			return
		}
		program, err := compiler.Parse(source)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		// Copies keep the listing out of the session.
		constants := append([]vm.Object{}, s.constants...)
		c := compiler.NewWithState(s.symbols.Clone(), constants)
		if err := c.Compile(program); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			return
		}
		fmt.Fprint(out, c.Bytecode().Disassemble())
	case ":reset":
		s.reset(globalsSize)
		fmt.Fprintln(out, "State cleared")
	default:
		fmt.Fprintf(out, "Unknown command: %s (type :help for commands)\n", cmd)
	}
}

// evalAndPrint evaluates input, printing the result or the error
func evalAndPrint(s *state, input string, out io.Writer) {
	result, quiet, err := s.eval(input)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}
	if !quiet && result != nil {
		fmt.Fprintln(out, result.Inspect())
	}
}
