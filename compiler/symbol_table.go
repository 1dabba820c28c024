package compiler

// ---------------------------------------------------------------------------
// Symbol table: name resolution across nested function scopes
// ---------------------------------------------------------------------------

// SymbolScope identifies where a symbol's value lives at runtime.
type SymbolScope string

const (
	GlobalScope   SymbolScope = "GLOBAL"
	LocalScope    SymbolScope = "LOCAL"
	BuiltinScope  SymbolScope = "BUILTIN"
	FreeScope     SymbolScope = "FREE"
	FunctionScope SymbolScope = "FUNCTION"
)

// Symbol is a resolved name.
type Symbol struct {
	Name  string
	Scope SymbolScope
	Index int
}

// SymbolTable maps names to symbols for one function scope. Outer is nil for
// the global table.
type SymbolTable struct {
	Outer *SymbolTable

	store          map[string]Symbol
	numDefinitions int

	// FreeSymbols holds the original (outer) symbols captured by this scope,
	// in capture order. The index of a FREE symbol is its position here.
	FreeSymbols []Symbol
}

// NewSymbolTable creates a global symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]Symbol)}
}

// NewEnclosedSymbolTable creates a table for a function nested in outer.
func NewEnclosedSymbolTable(outer *SymbolTable) *SymbolTable {
	s := NewSymbolTable()
	s.Outer = outer
	return s
}

// Define binds name to the next slot of this table. Redefining a name
// shadows it with a fresh slot.
func (s *SymbolTable) Define(name string) Symbol {
	symbol := Symbol{Name: name, Index: s.numDefinitions}
	if s.Outer == nil {
		symbol.Scope = GlobalScope
	} else {
		symbol.Scope = LocalScope
	}
	s.store[name] = symbol
	s.numDefinitions++
	return symbol
}

// DefineBuiltin binds name to the builtin at index.
func (s *SymbolTable) DefineBuiltin(index int, name string) Symbol {
	symbol := Symbol{Name: name, Scope: BuiltinScope, Index: index}
	s.store[name] = symbol
	return symbol
}

// DefineFunctionName binds the name of the function this table belongs to,
// so the body can refer to itself without capturing.
func (s *SymbolTable) DefineFunctionName(name string) Symbol {
	symbol := Symbol{Name: name, Scope: FunctionScope, Index: 0}
	s.store[name] = symbol
	return symbol
}

// Clone returns a copy of the table that can be extended without affecting
// s. Enclosing tables are shared.
func (s *SymbolTable) Clone() *SymbolTable {
	c := &SymbolTable{
		Outer:          s.Outer,
		store:          make(map[string]Symbol, len(s.store)),
		numDefinitions: s.numDefinitions,
		FreeSymbols:    append([]Symbol(nil), s.FreeSymbols...),
	}
	for name, symbol := range s.store {
		c.store[name] = symbol
	}
	return c
}

// NumDefinitions returns how many slots Define has allocated.
func (s *SymbolTable) NumDefinitions() int {
	return s.numDefinitions
}

func (s *SymbolTable) defineFree(original Symbol) Symbol {
	s.FreeSymbols = append(s.FreeSymbols, original)
	symbol := Symbol{Name: original.Name, Scope: FreeScope, Index: len(s.FreeSymbols) - 1}
	s.store[original.Name] = symbol
	return symbol
}

// Resolve looks name up in this table, then in enclosing tables. Locals and
// free variables of an enclosing function are promoted to FREE here, which
// also registers them as free in every table in between.
func (s *SymbolTable) Resolve(name string) (Symbol, bool) {
	if symbol, ok := s.store[name]; ok {
		return symbol, true
	}
	if s.Outer == nil {
		return Symbol{}, false
	}

	symbol, ok := s.Outer.Resolve(name)
	if !ok {
		return symbol, false
	}
	if symbol.Scope == GlobalScope || symbol.Scope == BuiltinScope {
		return symbol, true
	}
	return s.defineFree(symbol), true
}
