package loopguard

import "context"

// PreludeSource defines the list and stream library every session starts with.
const PreludeSource = `function is_list(xs) {
    return is_null(xs) || (is_pair(xs) && is_list(tail(xs)));
}

function length(xs) {
    return is_null(xs) ? 0 : 1 + length(tail(xs));
}

function map(f, xs) {
    return is_null(xs) ? null : pair(f(head(xs)), map(f, tail(xs)));
}

function filter(pred, xs) {
    return is_null(xs)
        ? xs
        : pred(head(xs))
        ? pair(head(xs), filter(pred, tail(xs)))
        : filter(pred, tail(xs));
}

function accumulate(f, initial, xs) {
    return is_null(xs) ? initial : f(head(xs), accumulate(f, initial, tail(xs)));
}

function append(xs, ys) {
    return is_null(xs) ? ys : pair(head(xs), append(tail(xs), ys));
}

function reverse(xs) {
    let result = null;
    let rest = xs;
    while (!is_null(rest)) {
        result = pair(head(rest), result);
        rest = tail(rest);
    }
    return result;
}

function enum_list(start, end) {
    return start > end ? null : pair(start, enum_list(start + 1, end));
}

function list_ref(xs, n) {
    return n === 0 ? head(xs) : list_ref(tail(xs), n - 1);
}

function for_each(f, xs) {
    let rest = xs;
    while (!is_null(rest)) {
        f(head(rest));
        rest = tail(rest);
    }
    return true;
}

function build_list(f, n) {
    let result = null;
    for (let i = n - 1; i >= 0; i = i - 1) {
        result = pair(f(i), result);
    }
    return result;
}

function stream_tail(s) {
    return tail(s)();
}

function enum_stream(start, end) {
    return start > end ? null : pair(start, () => enum_stream(start + 1, end));
}

function integers_from(n) {
    return pair(n, () => integers_from(n + 1));
}

function stream_ref(s, n) {
    return n === 0 ? head(s) : stream_ref(stream_tail(s), n - 1);
}

function stream_map(f, s) {
    return is_null(s) ? null : pair(f(head(s)), () => stream_map(f, stream_tail(s)));
}

function stream_filter(pred, s) {
    return is_null(s)
        ? null
        : pred(head(s))
        ? pair(head(s), () => stream_filter(pred, stream_tail(s)))
        : stream_filter(pred, stream_tail(s));
}

function stream_to_list(s) {
    return is_null(s) ? null : pair(head(s), stream_to_list(stream_tail(s)));
}

function list_to_stream(xs) {
    return is_null(xs) ? null : pair(head(xs), () => list_to_stream(tail(xs)));
}

function eval_stream(s, n) {
    return n === 0 ? null : pair(head(s), eval_stream(stream_tail(s), n - 1));
}
`

// ParsePrelude returns a freshly parsed prelude program with Index 0.
func ParsePrelude() *Program {
	prog, err := Parse(PreludeSource)
	if err != nil {
		panic("prelude: " + err.Error())
	}
	return prog
}

// LoadPrelude runs the prelude in the interpreter's top-level scope.
func (in *Interpreter) LoadPrelude(ctx context.Context) error {
	_, err := in.Exec(ctx, ParsePrelude())
	return err
}
