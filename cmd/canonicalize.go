package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/a11y-tracker/internal/report"
	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

type canonicalizeOptions struct {
	in     string
	out    string
	max    int
	counts bool
}

func newCanonicalizeCmd() *cobra.Command {
	var opts canonicalizeOptions
	cmd := &cobra.Command{
		Use:   "canonicalize",
		Short: "Canonicalize a scanner CSV report without publishing it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config.Report
			if !cmd.Flags().Changed("max") {
				opts.max = cfg.MaxRecords
			}
			if !cmd.Flags().Changed("counts") {
				opts.counts = cfg.CountDuplicates
			}
			cfg.CountDuplicates = opts.counts
			canon, err := buildCanonicalizer(cfg, appInstance.Logger)
			if err != nil {
				return err
			}
			rep, err := canon.Canonicalize(cmd.Context(), opts.in, opts.max)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.out != "" {
				f, err := os.Create(opts.out)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						appInstance.Logger.Warn("close output", zap.String("path", opts.out), zap.Error(cerr))
					}
				}()
				w = f
			}
			if err := writeRecords(w, rep.Records, opts.counts); err != nil {
				return err
			}
			appInstance.Logger.Info("canonical report written",
				zap.Int("parsed", rep.Total),
				zap.Int("kept", len(rep.Records)),
				zap.Float64("score", rep.Score.Value),
				zap.String("grade", rep.Score.Grade),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.in, "in", "", "scanner CSV report to read")
	cmd.Flags().StringVar(&opts.out, "out", "", "file to write (default stdout)")
	cmd.Flags().IntVar(&opts.max, "max", 0, "maximum records to keep (default report.max_records)")
	cmd.Flags().BoolVar(&opts.counts, "counts", false, "append duplicate count columns")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// writeRecords emits the canonical records as CSV in sheet column order.
func writeRecords(w io.Writer, records []tracker.CanonicalRecord, withCounts bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(report.Columns(withCounts)); err != nil {
		return err
	}
	for _, rec := range records {
		if err := cw.Write(report.Row(rec, withCounts)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
