package main

import (
	"fmt"
	"os"

	"github.com/speakeasy-api/loopguard/pkg/srcfmt"
	"github.com/spf13/cobra"
)

var (
	fmtOps    []string
	fmtIndent int
	fmtWrite  bool
	fmtCheck  bool
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [program-file...]",
	Short: "Format programs",
	Long: `fmt prints programs in canonical form. With --write the files are rewritten
in place; with --check nothing is written and the command fails when a file
is not formatted.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if fmtWrite && fmtCheck {
			return fmt.Errorf("--write and --check are mutually exclusive")
		}
		_, err := srcfmt.ValidateConfig(srcfmt.Config{Indent: fmtIndent, Ops: fmtOps})
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := srcfmt.Config{Indent: fmtIndent, Ops: fmtOps}
		unformatted := 0
		for _, path := range args {
			src, err := readSource(path)
			if err != nil {
				return err
			}
			out, err := srcfmt.Format(src, cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			switch {
			case fmtCheck:
				if out != src {
					unformatted++
					fmt.Fprintln(cmd.OutOrStdout(), path)
				}
			case fmtWrite && path != "-":
				if out == src {
					continue
				}
				if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
			default:
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
		}
		if unformatted > 0 {
			return fmt.Errorf("%d file(s) not formatted", unformatted)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fmtCmd)

	fmtCmd.Flags().StringSliceVar(&fmtOps, "ops", nil, "Break lines after these operators (or, and, eq, ne, lt, le, gt, ge, add, sub, mul, div, mod)")
	fmtCmd.Flags().IntVar(&fmtIndent, "indent", 4, "Spaces per nesting level")
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "Rewrite files in place")
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "List files that are not formatted and fail")
}
