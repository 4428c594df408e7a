package loopguard

import (
	"math"
	"strings"
)

// EvalBinary applies a binary operator to two values with the language's
// strict typing: arithmetic needs numbers, + also joins two strings, and
// ordering compares two numbers or two strings.
func EvalBinary(op string, l, r Value) (Value, error) {
	l, r = Unshadow(l), Unshadow(r)
	switch op {
	case "===":
		return Equal(l, r), nil
	case "!==":
		return !Equal(l, r), nil
	case "+":
		switch x := l.(type) {
		case float64:
			if y, ok := r.(float64); ok {
				return x + y, nil
			}
		case string:
			if y, ok := r.(string); ok {
				return x + y, nil
			}
		}
		return nil, runtimeErrorf(Pos{}, "expected string or number on both sides of +, got %s and %s", TypeName(l), TypeName(r))
	case "-", "*", "/", "%":
		x, ok1 := l.(float64)
		y, ok2 := r.(float64)
		if !ok1 || !ok2 {
			return nil, runtimeErrorf(Pos{}, "expected number on both sides of %s, got %s and %s", op, TypeName(l), TypeName(r))
		}
		switch op {
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		case "/":
			return x / y, nil
		default:
			return math.Mod(x, y), nil
		}
	case "<", "<=", ">", ">=":
		if x, ok := l.(float64); ok {
			if y, ok := r.(float64); ok {
				return compare(op, cmpFloat(x, y), math.IsNaN(x) || math.IsNaN(y)), nil
			}
		}
		if x, ok := l.(string); ok {
			if y, ok := r.(string); ok {
				return compare(op, strings.Compare(x, y), false), nil
			}
		}
		return nil, runtimeErrorf(Pos{}, "expected string or number on both sides of %s, got %s and %s", op, TypeName(l), TypeName(r))
	}
	return nil, runtimeErrorf(Pos{}, "unknown operator %s", op)
}

// EvalUnary applies ! to a boolean or - to a number.
func EvalUnary(op string, v Value) (Value, error) {
	v = Unshadow(v)
	switch op {
	case "!":
		if b, ok := v.(bool); ok {
			return !b, nil
		}
		return nil, runtimeErrorf(Pos{}, "expected boolean, got %s", TypeName(v))
	case "-":
		if f, ok := v.(float64); ok {
			return -f, nil
		}
		return nil, runtimeErrorf(Pos{}, "expected number, got %s", TypeName(v))
	}
	return nil, runtimeErrorf(Pos{}, "unknown operator %s", op)
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compare(op string, c int, nan bool) bool {
	if nan {
		return false
	}
	switch op {
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}
