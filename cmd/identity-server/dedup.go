package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clinicops/identity/internal/config"
	"github.com/clinicops/identity/internal/domain/dedup"
)

func dedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Find and merge duplicate patient records",
	}
	cmd.AddCommand(dedupPreviewCmd())
	cmd.AddCommand(dedupCommitCmd())
	return cmd
}

func dedupPreviewCmd() *cobra.Command {
	var asJSON bool
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Report duplicate clusters without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDedup(cmd.Context(), func(ctx context.Context, _ *config.Config, svc *dedup.Service) error {
				report, err := svc.Preview(ctx)
				if err != nil {
					return err
				}
				if err := maybeWriteXLSX(xlsxPath, report); err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printClusters(cmd.OutOrStdout(), report)
				printSummary(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the report to this XLSX file")
	return cmd
}

func dedupCommitCmd() *cobra.Command {
	var yes bool
	var workers int
	var ops float64
	var xlsxPath string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Merge duplicate clusters into their canonical records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("commit deletes duplicate patient records; re-run with --yes after reviewing `dedup preview`")
			}

			// Ctrl-C stops the run after the clusters already in flight.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withDedup(ctx, func(ctx context.Context, cfg *config.Config, svc *dedup.Service) error {
				if workers <= 0 {
					workers = cfg.MergeWorkers
				}
				if ops < 0 {
					ops = cfg.MergeOpsPerSecond
				}

				var bar *pb.ProgressBar
				opts := dedup.Options{
					Workers:      workers,
					OpsPerSecond: ops,
					OnStart: func(total int) {
						bar = pb.Full.New(total).
							SetWriter(cmd.ErrOrStderr()).
							Set("prefix", "merging ").
							Set(pb.CleanOnFinish, true).
							Start()
					},
					OnCluster: func(dedup.ClusterReport) {
						if bar != nil {
							bar.Increment()
						}
					},
				}

				report, runErr := svc.RunWith(ctx, dedup.ModeCommit, opts)
				if bar != nil {
					bar.Finish()
				}
				if report == nil {
					return runErr
				}
				if err := maybeWriteXLSX(xlsxPath, report); err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), report)
				if runErr != nil {
					return runErr
				}
				if report.HasErrors() {
					return fmt.Errorf("%d merge operation(s) failed", len(report.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm that duplicates should be merged and deleted")
	cmd.Flags().IntVar(&workers, "workers", 0, "Clusters merged concurrently (default MERGE_WORKERS)")
	cmd.Flags().Float64Var(&ops, "ops-per-second", -1, "Cap on store writes per second (default MERGE_OPS_PER_SECOND)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Also write the report to this XLSX file")
	return cmd
}

// withDedup opens the configured store and merge lock for the duration of fn.
func withDedup(ctx context.Context, fn func(context.Context, *config.Config, *dedup.Service) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	svc, closeLock, err := newDedupService(ctx, cfg, b.store, logger, nil)
	if err != nil {
		return err
	}
	defer closeLock()

	return fn(ctx, cfg, svc)
}

func maybeWriteXLSX(path string, r *dedup.Report) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := dedup.WriteXLSX(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printClusters(w io.Writer, r *dedup.Report) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for i, c := range r.Clusters {
		fmt.Fprintf(w, "%s %s (%s)\n", bold(fmt.Sprintf("#%d", i+1)), c.CanonicalName, c.Reason)
		for _, m := range c.Members {
			role := "duplicate"
			if m.Canonical {
				role = "keep"
			}
			fmt.Fprintf(w, "  %-9s %s  %s  %s  %s\n", role, m.ID, m.Email, m.Phone,
				gray(m.CreatedAt.Format("2006-01-02 15:04")))
		}
		for _, f := range c.Backfill {
			fmt.Fprintf(w, "  %s %s = %q from %s\n", gray("fill"), f.Field, f.Value, f.SourceID)
		}
	}
}

func printSummary(w io.Writer, r *dedup.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "\n%s %s run in %s\n", cyan("dedup"), r.Mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  patients scanned:   %s\n", humanize.Comma(int64(r.TotalPatients)))
	fmt.Fprintf(w, "  clusters found:     %s\n", humanize.Comma(int64(r.ClustersFound)))
	fmt.Fprintf(w, "  duplicates found:   %s\n", humanize.Comma(int64(r.DuplicatesFound)))

	if r.Mode != dedup.ModeCommit {
		return
	}
	fmt.Fprintf(w, "  duplicates removed: %s\n", green(humanize.Comma(int64(r.DuplicatesRemoved))))
	fmt.Fprintf(w, "  rows repointed:     %s\n", humanize.Comma(r.Counts.RowsRepointed))
	fmt.Fprintf(w, "  backfills applied:  %s\n", humanize.Comma(int64(r.Counts.BackfillsApplied)))
	if r.Counts.AlreadyDeleted > 0 {
		fmt.Fprintf(w, "  already deleted:    %s\n", yellow(humanize.Comma(int64(r.Counts.AlreadyDeleted))))
	}
	if len(r.MissingTables) > 0 {
		fmt.Fprintf(w, "  missing tables:     %s %v\n", yellow(len(r.MissingTables)), r.MissingTables)
	}
	if r.HasErrors() {
		fmt.Fprintf(w, "  errors:             %s\n", red(len(r.Errors)))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s\n", red(e.Error()))
		}
	}
	if r.Aborted {
		fmt.Fprintf(w, "  %s\n", yellow("run cancelled before all clusters were merged"))
	}
}
