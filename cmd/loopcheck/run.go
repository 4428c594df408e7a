package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/speakeasy-api/loopguard/pkg/session"
	"github.com/spf13/cobra"
)

var (
	runTranscript string
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [program-file...]",
	Short: "Run programs as one session",
	Long: `run submits the programs one after another, the way a student would in the
playground. A program that does not finish within --run-timeout is analyzed
for infinite loops.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if runTranscript == "" && len(args) == 0 {
			return fmt.Errorf("requires at least one program file or --transcript")
		}
		if runTranscript != "" && len(args) > 0 {
			return fmt.Errorf("program files and --transcript are mutually exclusive")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd)
		if err != nil {
			return err
		}

		t := &session.Transcript{}
		if runTranscript != "" {
			if t, err = session.LoadTranscript(runTranscript); err != nil {
				return err
			}
		} else {
			for _, path := range args {
				src, err := readSource(path)
				if err != nil {
					return err
				}
				t.Programs = append(t.Programs, session.Entry{Name: path, Source: src})
			}
		}

		detected := false
		out := cmd.OutOrStdout()
		for _, e := range t.Programs {
			res, err := s.Submit(cmd.Context(), e.Source)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Name, err)
			}
			fmt.Fprintln(out, paint(InfoStyle, "== "+e.Name))
			printResult(out, s, e.Source, res)
			if res.Diagnostic != nil {
				detected = true
			}
		}
		if detected {
			return errDetected
		}
		return nil
	},
}

func newSession(cmd *cobra.Command) (*session.Session, error) {
	detect, err := detectOptions(cmd)
	if err != nil {
		return nil, err
	}
	opts := session.DefaultOptions()
	opts.Detect = detect
	if runTimeout > 0 {
		opts.RunTimeout = runTimeout
	}
	return session.New(opts), nil
}

// printResult writes what the student sees after a submission. src is the
// submitted text; s must not have accepted another submission since.
func printResult(w io.Writer, s *session.Session, src string, res *session.Result) {
	if res.Output != "" {
		fmt.Fprint(w, res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Fprintln(w)
		}
	}
	switch res.Status {
	case session.Completed:
		if res.Value != "undefined" {
			fmt.Fprintln(w, paint(GoodStyle, res.Value))
		}
	case session.Failed:
		fmt.Fprint(w, paint(CriticalStyle, session.FormatError(src, res.Err)))
	case session.TimedOut:
		if res.Diagnostic == nil {
			fmt.Fprintln(w, paint(WarningStyle, res.Message()))
			return
		}
		printDiagnostic(w, s.Source(res.Diagnostic.Location.Program, src), res.Diagnostic)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTranscript, "transcript", "t", "", "YAML transcript of a recorded session")
	runCmd.Flags().DurationVar(&runTimeout, "run-timeout", 2*time.Second, "Time a program may run before it is analyzed")
}
