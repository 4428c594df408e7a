package loopguard

type binding struct {
	value    Value
	constant bool
}

// Env is one lexical scope.
type Env struct {
	vars   map[string]*binding
	parent *Env
	// redeclare lets a later submission declare a top-level name again.
	redeclare bool
}

func NewEnv(parent *Env) *Env {
	return &Env{vars: map[string]*binding{}, parent: parent}
}

func (e *Env) lookup(name string) *binding {
	for env := e; env != nil; env = env.parent {
		if b, ok := env.vars[name]; ok {
			return b
		}
	}
	return nil
}

// Define declares name in this scope.
func (e *Env) Define(name string, v Value, constant bool) error {
	if _, exists := e.vars[name]; exists && !e.redeclare {
		return runtimeErrorf(Pos{}, "name %s declared twice", name)
	}
	e.vars[name] = &binding{value: v, constant: constant}
	return nil
}

// Get returns the value bound to name in this scope or an enclosing one.
func (e *Env) Get(name string) (Value, bool) {
	b := e.lookup(name)
	if b == nil {
		return nil, false
	}
	return b.value, true
}

// Set assigns to an existing, non-constant binding.
func (e *Env) Set(name string, v Value) error {
	b := e.lookup(name)
	switch {
	case b == nil:
		return runtimeErrorf(Pos{}, "name %s not declared", name)
	case b.constant:
		return runtimeErrorf(Pos{}, "cannot assign new value to constant %s", name)
	}
	b.value = v
	return nil
}
