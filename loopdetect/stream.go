package loopdetect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/speakeasy-api/loopguard"
)

// asStream returns v as a stream cell: a pair whose tail is a function.
func asStream(v Value) (*loopguard.Pair, bool) {
	p, ok := Concretize(v).(*loopguard.Pair)
	return p, ok && loopguard.IsCallable(p.Tail)
}

func (s *State) counterFor(fn string) *streamCounter {
	c, ok := s.streams[fn]
	if !ok {
		c = &streamCounter{}
		s.streams[fn] = c
	}
	return c
}

// nullTest replaces is_null. Consecutive tests of stream cells in one
// function count towards stream mode; in stream mode every test forces the
// stream ahead to see whether it ends.
func (s *State) nullTest(in *loopguard.Interpreter, arg Value) (Value, error) {
	v := Concretize(arg)
	result := v == nil
	if s.forcing {
		return MakeDummy(result), nil
	}
	fn := s.currentFunction()
	c := s.counterFor(fn)
	p, ok := asStream(v)
	if result || !ok {
		if result {
			c.count, c.mode = 0, false
		}
		return MakeDummy(result), nil
	}
	c.count++
	switch {
	case c.mode:
		if err := s.forceStream(in, fn, c, p); err != nil {
			return nil, err
		}
	case c.count > s.opts.StreamThreshold:
		c.mode = true
		s.logger.Debugf("%s consumed %d stream cells, forcing ahead", streamOwner(fn), c.count)
	}
	return MakeDummy(result), nil
}

// forceStream evaluates up to Threshold tails past p. Every tracking hook is
// disabled meanwhile. A runtime error ends the stream.
func (s *State) forceStream(in *loopguard.Interpreter, fn string, c *streamCounter, p *loopguard.Pair) error {
	calls, locs, site := len(s.calls), len(s.locStack), s.lastLoc
	s.forcing = true
	defer func() {
		s.forcing = false
		s.calls = s.calls[:calls]
		s.locStack = s.locStack[:locs]
		s.lastLoc = site
		s.nextCallIsArg = false
	}()

	cur := p
	for i := 0; i < s.opts.Threshold; i++ {
		next, err := in.Call(cur.Tail)
		if err != nil {
			var de *DetectionError
			if errors.As(err, &de) || s.ctx.Err() != nil {
				return err
			}
			c.count, c.mode = 0, false
			return nil
		}
		np, ok := asStream(next)
		if !ok {
			c.count, c.mode = 0, false
			return nil
		}
		cur = np
	}
	return &DetectionError{
		Kind: Timeout,
		Name: fn,
		Loc:  site,
		Msg:  fmt.Sprintf("The stream consumed by %s does not end. It may be infinite.", streamOwner(fn)),
	}
}

func streamOwner(fn string) string {
	if fn == "" {
		return "the program"
	}
	return "function " + strings.TrimPrefix(DisplayName(fn), "*")
}
