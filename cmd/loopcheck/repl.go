package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/pkg/session"
	"github.com/spf13/cobra"
)

const (
	historyFile = ".loopcheck_history"
	promptMain  = "> "
	promptCont  = ". "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive session",
	Long: `repl reads programs from the terminal and runs each one after the previous
ones. Type :history to list accepted programs and :quit to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		home, _ := os.UserHomeDir()
		histPath := filepath.Join(home, historyFile)

		ln := liner.NewLiner()
		defer ln.Close()
		ln.SetCtrlCAborts(true)

		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, paint(MutedStyle, "loopcheck "+version+" - :quit to exit"))
		for {
			src, ok := readByParseProbe(ln, promptMain, promptCont)
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			trimmed := strings.TrimSpace(src)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, ":") {
				if quit := replCommand(out, s, trimmed); quit {
					return nil
				}
				continue
			}

			res, err := s.Submit(cmd.Context(), src)
			if err != nil {
				return err
			}
			printResult(out, s, src, res)
			ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		}
	},
}

// replCommand runs a colon command and reports whether the REPL should stop.
func replCommand(w io.Writer, s *session.Session, cmd string) bool {
	switch strings.ToLower(cmd) {
	case ":quit", ":q":
		return true
	case ":history":
		for i, src := range s.History() {
			fmt.Fprintf(w, "%s %s\n", paint(InfoStyle, fmt.Sprintf("[%d]", i+1)), strings.ReplaceAll(src, "\n", "\n    "))
		}
	default:
		fmt.Fprintln(w, "unknown command. Type :history or :quit.")
	}
	return false
}

// readByParseProbe reads lines until they form a program that parses, or
// fails for a reason other than running out of input.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = cont
		}
		line, err := ln.Prompt(p)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, true
		}
		if _, perr := loopguard.Parse(src); loopguard.IsIncomplete(perr) {
			continue
		}
		return src, true
	}
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().DurationVar(&runTimeout, "run-timeout", 2*time.Second, "Time a program may run before it is analyzed")
}
