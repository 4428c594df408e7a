package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/itchyny/go-yaml"
	"github.com/speakeasy-api/loopguard"
	"github.com/speakeasy-api/loopguard/loopdetect"
	"github.com/speakeasy-api/loopguard/pkg/session"
	"github.com/spf13/cobra"
)

var (
	checkPrior       []string
	checkOutput      string
	showInstrumented bool
)

var checkCmd = &cobra.Command{
	Use:   "check [program-file]",
	Short: "Analyze a program for infinite loops",
	Long: `check runs the program under the loop detector, after the programs given
with --prior, and reports a loop or recursion that never ends.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		validFormats := []string{"text", "yaml", "json"}
		if !slices.Contains(validFormats, checkOutput) {
			return fmt.Errorf("invalid output format: %s. Valid options: %v", checkOutput, validFormats)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := detectOptions(cmd)
		if err != nil {
			return err
		}
		candidate, err := readSource(args[0])
		if err != nil {
			return err
		}
		prior := make([]string, 0, len(checkPrior))
		for _, p := range checkPrior {
			src, err := readSource(p)
			if err != nil {
				return err
			}
			prior = append(prior, src)
		}

		out := cmd.OutOrStdout()
		if showInstrumented {
			if err := printInstrumented(out, candidate, prior); err != nil {
				return err
			}
		}

		diag, err := loopdetect.Analyze(cmd.Context(), candidate, prior, opts)
		if err != nil {
			return err
		}
		src := candidate
		if diag != nil {
			src = session.SourceOf(diag.Location.Program, candidate, prior)
		}
		if err := writeDiagnostic(out, diag, src); err != nil {
			return err
		}
		if diag != nil {
			return errDetected
		}
		return nil
	},
}

func writeDiagnostic(w io.Writer, d *loopdetect.Diagnostic, src string) error {
	switch checkOutput {
	case "yaml":
		data, err := yaml.Marshal(struct {
			Detected   bool                   `yaml:"detected"`
			Diagnostic *loopdetect.Diagnostic `yaml:"diagnostic,omitempty"`
		}{d != nil, d})
		if err != nil {
			return fmt.Errorf("failed to encode diagnostic: %w", err)
		}
		_, err = w.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Detected   bool                   `json:"detected"`
			Diagnostic *loopdetect.Diagnostic `json:"diagnostic,omitempty"`
		}{d != nil, d})
	}

	if d == nil {
		fmt.Fprintln(w, paint(GoodStyle, "No infinite loop detected."))
		return nil
	}
	printDiagnostic(w, src, d)
	if d.Evidence != "" {
		fmt.Fprintf(w, "%s %s\n", paint(InfoStyle, "evidence:"), d.Evidence)
	}
	return nil
}

// printDiagnostic writes the headline in the color of d's kind and the
// snippet muted.
func printDiagnostic(w io.Writer, src string, d *loopdetect.Diagnostic) {
	style := CriticalStyle
	if d.Kind == loopdetect.Timeout {
		style = WarningStyle
	}
	head, rest, _ := strings.Cut(session.FormatDiagnostic(src, d), "\n")
	fmt.Fprintln(w, paint(style, head))
	fmt.Fprint(w, paint(MutedStyle, rest))
}

func printInstrumented(w io.Writer, candidate string, prior []string) error {
	progs, cand, err := loopdetect.ParseSession(candidate, prior)
	if err != nil {
		return err
	}
	ins, err := loopdetect.Instrument(progs, cand, loopguard.BuiltinNames())
	if err != nil {
		return err
	}
	// Only the candidate; the prelude and priors are long and unchanged.
	last := &loopdetect.Instrumented{Programs: ins.Programs[len(ins.Programs)-1:]}
	fmt.Fprintln(w, paint(MutedStyle, "// instrumented candidate"))
	fmt.Fprintln(w, last.Source())
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringSliceVarP(&checkPrior, "prior", "p", nil, "Earlier programs of the session, oldest first")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "text", "Output format")
	checkCmd.Flags().BoolVar(&showInstrumented, "show-instrumented", false, "Print the instrumented candidate")

	checkCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "yaml", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
}
