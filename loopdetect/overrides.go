package loopdetect

import (
	"github.com/speakeasy-api/loopguard"
)

type overrideStrategy uint8

const (
	// strategyConcretize strips hybrids from the arguments and marks the
	// result as untracked.
	strategyConcretize overrideStrategy = iota
	// strategyNullTest feeds the stream heuristic.
	strategyNullTest
	// strategySuppress drops output during analysis.
	strategySuppress
)

// builtinOverrides lists the builtins that need more than concretization.
var builtinOverrides = map[string]overrideStrategy{
	"is_null": strategyNullTest,
	"display": strategySuppress,
}

func strategyFor(name string) overrideStrategy {
	if st, ok := builtinOverrides[name]; ok {
		return st
	}
	return strategyConcretize
}

// BuiltinTable returns the builtins instrumented programs call through,
// each wrapped according to its override strategy.
func (s *State) BuiltinTable() loopguard.Record {
	base := loopguard.Builtins()
	rec := make(loopguard.Record, len(base))
	for name, b := range base {
		rec[name] = s.override(b)
	}
	return rec
}

func (s *State) override(b *loopguard.Builtin) *loopguard.Builtin {
	switch strategyFor(b.Name) {
	case strategyNullTest:
		return &loopguard.Builtin{Name: b.Name, Arity: 1, Fn: func(in *loopguard.Interpreter, args []Value) (Value, error) {
			return s.nullTest(in, args[0])
		}}
	case strategySuppress:
		return &loopguard.Builtin{Name: b.Name, Arity: b.Arity, Fn: func(in *loopguard.Interpreter, args []Value) (Value, error) {
			return hookNoOp(in, s, args)
		}}
	default:
		return &loopguard.Builtin{Name: b.Name, Arity: b.Arity, Fn: func(in *loopguard.Interpreter, args []Value) (Value, error) {
			plain := make([]Value, len(args))
			for i, a := range args {
				plain[i] = Concretize(a)
			}
			v, err := b.Call(in, plain)
			if err != nil {
				return nil, err
			}
			return MakeDummy(v), nil
		}}
	}
}
