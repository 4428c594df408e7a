package loopdetect

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/speakeasy-api/loopguard"
)

// Analyze runs candidate under the detector after replaying the prelude and
// the prior programs of the session, oldest first. It returns a diagnostic
// when the run was stopped by a verdict or by the analysis budget, and nil
// when the candidate finished or failed with an ordinary runtime error. A nil
// diagnostic is not a proof of termination.
//
// Example:
//
//	diag, err := loopdetect.Analyze(ctx, "let i = 0; while (i < 10) { i = i - 1; }", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if diag != nil {
//	    fmt.Println(diag)
//	}
func Analyze(ctx context.Context, candidate string, prior []string, opts ...Options) (*Diagnostic, error) {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if err := opt.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	progs, cand, err := ParseSession(candidate, prior)
	if err != nil {
		return nil, err
	}
	return AnalyzePrograms(ctx, progs, cand, opt)
}

// ParseSession parses the prelude, the prior programs and the candidate and
// numbers them in session order. A prior program that no longer parses is an
// analysis failure; a candidate that does not parse is the caller's error.
func ParseSession(candidate string, prior []string) ([]*loopguard.Program, *loopguard.Program, error) {
	progs := make([]*loopguard.Program, 0, len(prior)+1)
	progs = append(progs, loopguard.ParsePrelude())
	for i, src := range prior {
		p, err := loopguard.Parse(src)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: prior program %d: %w", ErrAnalysis, i+1, err)
		}
		p.Index = i + 1
		progs = append(progs, p)
	}
	cand, err := loopguard.Parse(candidate)
	if err != nil {
		return nil, nil, err
	}
	cand.Index = len(prior) + 1
	return progs, cand, nil
}

// AnalyzePrograms is Analyze over programs that are already parsed. prior
// must start with the prelude when the candidate relies on it.
func AnalyzePrograms(ctx context.Context, prior []*loopguard.Program, candidate *loopguard.Program, opts Options) (*Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := loggerFor(opts).With(map[string]any{"program": candidate.Index})

	ins, err := Instrument(prior, candidate, loopguard.BuiltinNames())
	if err != nil {
		return nil, err
	}
	logger.Debugf("instrumented %d programs with %d locations", len(ins.Programs), len(ins.Locations))

	state := NewState(ctx, ins.Locations, opts, logger)
	in := loopguard.NewIsolated(io.Discard)
	in.MaxCallDepth = opts.MaxCallDepth
	in.Define(ins.Hooks, HookTable())
	in.Define(ins.State, state)
	in.Define(ins.Builtins, state.BuiltinTable())

	last := len(ins.Programs) - 1
	for _, p := range ins.Programs[:last] {
		_, err := in.Exec(ctx, p)
		state.resetStacks()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Debugf("prior program %d stopped: %v", p.Index, err)
		}
		if state.timedOut || errors.Is(err, ErrTimeout) {
			return verdictOf(ctx, &DetectionError{
				Kind: Internal,
				Msg:  fmt.Sprintf("prior program %d exhausted the analysis budget", p.Index),
			}, logger)
		}
	}

	_, err = in.Exec(ctx, ins.Programs[last])
	state.resetStacks()
	return verdictOf(ctx, err, logger)
}

// verdictOf converts the way the candidate run ended into Analyze's result.
func verdictOf(ctx context.Context, err error, logger Logger) (*Diagnostic, error) {
	if err == nil {
		return nil, nil
	}
	var de *DetectionError
	if errors.As(err, &de) {
		if de.Kind == Internal {
			return nil, fmt.Errorf("%w: %s", ErrAnalysis, de.Msg)
		}
		return de.Diagnostic(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, ErrAnalysis) {
		return nil, err
	}
	var re *loopguard.RuntimeError
	if errors.As(err, &re) {
		logger.Debugf("candidate failed: %v", err)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrAnalysis, err)
}
