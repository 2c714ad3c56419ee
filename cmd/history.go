package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/observability"
	"github.com/xkilldash9x/mailpilot/internal/runlog"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		follow bool
		asJSON bool
		fromDB bool
	)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if follow && fromDB {
				return fmt.Errorf("--follow reads the run log file and cannot be combined with --db")
			}
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			var outcomes []schemas.RunOutcome
			if fromDB {
				if cfg.RunLog.DatabaseURL == "" {
					return fmt.Errorf("runlog.database_url is not configured (MAILPILOT_RUNLOG_DATABASE_URL)")
				}
				sink, err := runlog.OpenPostgres(ctx, cfg.RunLog.DatabaseURL, logger)
				if err != nil {
					return err
				}
				defer sink.Close()
				if outcomes, err = sink.Recent(ctx, limit); err != nil {
					return err
				}
			} else {
				var skipped int
				outcomes, skipped, err = runlog.Read(cfg.RunLog.Path, limit)
				if err != nil {
					return err
				}
				if skipped > 0 {
					logger.Warn("Skipped unreadable run log lines", zap.Int("count", skipped), zap.String("path", cfg.RunLog.Path))
				}
			}

			if err := writeOutcomes(out, outcomes, asJSON); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return runlog.Follow(ctx, cfg.RunLog.Path, logger, func(o schemas.RunOutcome) {
				if err := writeOutcomes(out, []schemas.RunOutcome{o}, asJSON); err != nil {
					logger.Warn("Failed to print run", zap.Error(err))
				}
			})
		},
	}

	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of most recent runs to show (0 for all)")
	historyCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing runs as they are recorded")
	historyCmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON lines")
	historyCmd.Flags().BoolVar(&fromDB, "db", false, "Read from the PostgreSQL run log instead of the file")
	return historyCmd
}

func writeOutcomes(w io.Writer, outcomes []schemas.RunOutcome, asJSON bool) error {
	if asJSON {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		for _, o := range outcomes {
			if err := enc.Encode(o); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, o := range outcomes {
		detail := o.Subject
		if o.Failed() {
			detail = o.ErrorMessage()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Timestamp.Local().Format(time.DateTime), o.Status, o.Provider, o.Parsed.Recipient, detail, o.RunID)
	}
	return tw.Flush()
}
