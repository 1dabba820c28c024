package evaluator

import "github.com/chazu/monkey/vm"

// Environment binds names to values. Function calls get an environment
// enclosed by the one the function was defined in.
type Environment struct {
	store map[string]vm.Object
	outer *Environment
}

// NewEnvironment creates a top-level environment.
func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]vm.Object)}
}

// NewEnclosedEnvironment creates an environment whose lookups fall back to
// outer.
func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// Get looks name up here and then in enclosing environments.
func (e *Environment) Get(name string) (vm.Object, bool) {
	obj, ok := e.store[name]
	if !ok && e.outer != nil {
		return e.outer.Get(name)
	}
	return obj, ok
}

// Set binds name in this environment.
func (e *Environment) Set(name string, val vm.Object) vm.Object {
	e.store[name] = val
	return val
}
