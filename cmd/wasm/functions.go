//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/speakeasy-api/loopguard/loopdetect"
	"github.com/speakeasy-api/loopguard/pkg/session"
	"github.com/speakeasy-api/loopguard/pkg/srcfmt"
)

// The page holds one session; promises may resolve concurrently.
var (
	mu      sync.Mutex
	current = newSession()
)

func newSession() *session.Session {
	opts := session.DefaultOptions()
	opts.Detect.LogLevel = "error"
	return session.New(opts)
}

// AnalyzeProgram checks candidate for infinite loops after the programs in
// priorsJSON, a JSON array of strings.
func AnalyzeProgram(candidate, priorsJSON string) (string, error) {
	var prior []string
	if priorsJSON != "" {
		if err := json.Unmarshal([]byte(priorsJSON), &prior); err != nil {
			return "", fmt.Errorf("failed to parse prior programs: %w", err)
		}
	}
	opts := loopdetect.DefaultOptions()
	opts.LogLevel = "error"
	report, err := session.Analyze(context.Background(), candidate, prior, opts)
	if err != nil {
		return "", err
	}
	return marshal(report)
}

// SubmitProgram runs src in the page's session.
func SubmitProgram(src string) (string, error) {
	mu.Lock()
	defer mu.Unlock()
	res, err := current.Submit(context.Background(), src)
	if err != nil {
		return "", err
	}
	return marshal(current.Report(src, res))
}

// ResetSession forgets every accepted program.
func ResetSession() {
	mu.Lock()
	defer mu.Unlock()
	current = newSession()
}

// FormatProgram formats src with the default printer settings.
func FormatProgram(src string) (string, error) {
	formatted, err := srcfmt.Format(src, srcfmt.Config{})
	if err != nil {
		return "", fmt.Errorf("failed to format program: %w", err)
	}
	return formatted, nil
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

// promisify wraps a Go function to return a JavaScript Promise
func promisify(fn func(args []js.Value) (string, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) any {
			resolve := promiseArgs[0]
			reject := promiseArgs[1]

			go func() {
				result, err := fn(args)
				if err != nil {
					reject.Invoke(js.Global().Get("Error").New(err.Error()))
					return
				}
				resolve.Invoke(result)
			}()

			return nil
		})

		return js.Global().Get("Promise").New(handler)
	})
}

func main() {
	js.Global().Set("AnalyzeProgram", promisify(func(args []js.Value) (string, error) {
		if len(args) != 2 {
			return "", fmt.Errorf("AnalyzeProgram: expected 2 args (candidate, priorsJSON), got %v", len(args))
		}
		return AnalyzeProgram(args[0].String(), args[1].String())
	}))

	js.Global().Set("SubmitProgram", promisify(func(args []js.Value) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("SubmitProgram: expected 1 arg (source), got %v", len(args))
		}
		return SubmitProgram(args[0].String())
	}))

	js.Global().Set("ResetSession", promisify(func(args []js.Value) (string, error) {
		ResetSession()
		return "", nil
	}))

	js.Global().Set("FormatProgram", promisify(func(args []js.Value) (string, error) {
		if len(args) != 1 {
			return "", fmt.Errorf("FormatProgram: expected 1 arg (source), got %v", len(args))
		}
		return FormatProgram(args[0].String())
	}))

	<-make(chan bool)
}
