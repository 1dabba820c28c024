// Package manifest handles monkey.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/monkey/vm"
)

// FileName is the name of the manifest file.
const FileName = "monkey.toml"

// Execution engines.
const (
	EngineVM   = "vm"
	EngineEval = "eval"
)

// DefaultAddr is the listen address used by -serve when none is configured.
const DefaultAddr = ":4567"

// Manifest represents a monkey.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	VM      VMConfig     `toml:"vm"`
	Server  ServerConfig `toml:"server"`
	Log     LogConfig    `toml:"log"`

	// Dir is the directory containing the monkey.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"` // program run when no file is given
}

// VMConfig configures the execution engine.
type VMConfig struct {
	Engine      string `toml:"engine"` // "vm" or "eval"
	StackSize   int    `toml:"stack-size"`
	GlobalsSize int    `toml:"globals-size"`
	MaxFrames   int    `toml:"max-frames"`
	Trace       bool   `toml:"trace"`
}

// ServerConfig configures the evaluation server.
type ServerConfig struct {
	Addr    string `toml:"addr"`
	History string `toml:"history"` // sqlite database path; empty disables history
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no manifest is present.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.VM.Engine == "" {
		m.VM.Engine = EngineVM
	}
	if m.VM.StackSize == 0 {
		m.VM.StackSize = vm.StackSize
	}
	if m.VM.GlobalsSize == 0 {
		m.VM.GlobalsSize = vm.GlobalsSize
	}
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = vm.MaxFrames
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
}

// Validate checks values that defaults cannot repair.
func (m *Manifest) Validate() error {
	switch m.VM.Engine {
	case EngineVM, EngineEval:
	default:
		return fmt.Errorf("vm.engine must be %q or %q, got %q", EngineVM, EngineEval, m.VM.Engine)
	}
	if m.VM.StackSize < 1 {
		return fmt.Errorf("vm.stack-size must be positive, got %d", m.VM.StackSize)
	}
	if m.VM.GlobalsSize < 1 || m.VM.GlobalsSize > vm.GlobalsSize {
		return fmt.Errorf("vm.globals-size must be between 1 and %d, got %d", vm.GlobalsSize, m.VM.GlobalsSize)
	}
	if m.VM.MaxFrames < 1 {
		return fmt.Errorf("vm.max-frames must be positive, got %d", m.VM.MaxFrames)
	}
	return nil
}

// Load parses a monkey.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a monkey.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry program, or "" if none
// is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// HistoryPath returns the absolute path of the history database, or "" if
// history is disabled.
func (m *Manifest) HistoryPath() string {
	if m.Server.History == "" {
		return ""
	}
	if filepath.IsAbs(m.Server.History) {
		return m.Server.History
	}
	return filepath.Join(m.Dir, m.Server.History)
}

// VMOptions converts the [vm] table into VM options.
func (m *Manifest) VMOptions() []vm.Option {
	return []vm.Option{
		vm.WithStackSize(m.VM.StackSize),
		vm.WithGlobalsSize(m.VM.GlobalsSize),
		vm.WithMaxFrames(m.VM.MaxFrames),
	}
}
