package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/browser"
	"github.com/xkilldash9x/mailpilot/internal/config"
	"github.com/xkilldash9x/mailpilot/internal/intent"
	"github.com/xkilldash9x/mailpilot/internal/llmclient"
	"github.com/xkilldash9x/mailpilot/internal/observability"
	"github.com/xkilldash9x/mailpilot/internal/orchestrator"
	"github.com/xkilldash9x/mailpilot/internal/provider"
	"github.com/xkilldash9x/mailpilot/internal/runlog"
)

// runner executes one send request.
type runner interface {
	Run(ctx context.Context, req orchestrator.Request) schemas.RunOutcome
}

// buildRunner wires the production components. Tests replace it.
var buildRunner = newProductionRunner

func newSendCmd() *cobra.Command {
	var (
		providerName string
		subject      string
		dryRun       bool
	)

	sendCmd := &cobra.Command{
		Use:   "send <instruction>",
		Short: "Understand an instruction and send the email through a webmail client",
		Example: `  mailpilot send "Email dana@example.com saying 'Let's meet Friday'"
  mailpilot send --provider outlook --subject "Status" "write to ana@example.org: the report is attached"
  mailpilot send --dry-run "email sam@example.com saying 'hi'"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			cfg.Send = config.SendConfig{
				Instruction:     strings.TrimSpace(strings.Join(args, " ")),
				Provider:        providerName,
				SubjectOverride: subject,
				DryRun:          dryRun,
			}

			r, cleanup, err := buildRunner(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer cleanup()

			outcome := r.Run(ctx, orchestrator.Request{
				Instruction:     cfg.Send.Instruction,
				Provider:        cfg.Send.Provider,
				SubjectOverride: cfg.Send.SubjectOverride,
				DryRun:          cfg.Send.DryRun,
			})
			printOutcome(cmd.OutOrStdout(), outcome)
			if outcome.Failed() {
				return errRunFailed
			}
			return nil
		},
	}

	sendCmd.Flags().StringVarP(&providerName, "provider", "p", "auto", "Mail provider: gmail, outlook or auto")
	sendCmd.Flags().StringVarP(&subject, "subject", "s", "", "Override the subject")
	sendCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan and locate every element, but do not click or type")
	sendCmd.Flags().Bool("headless", false, "Run the browser without a window (Overrides config/env)")
	return sendCmd
}

func printOutcome(w io.Writer, o schemas.RunOutcome) {
	if o.Failed() {
		fmt.Fprintf(w, "Failed: %s\n", o.ErrorMessage())
	} else {
		fmt.Fprintf(w, "Success: provider=%s dry_run=%t status=%s\n", o.Provider, o.DryRun, o.Status)
	}
	fmt.Fprintf(w, "Run ID: %s\n", o.RunID)
	if o.Parsed.Recipient != "" {
		fmt.Fprintf(w, "To: %s  Subject: %s\n", o.Parsed.Recipient, o.Subject)
	}
	for _, step := range o.FailedSteps {
		fmt.Fprintf(w, "  warning: %s\n", step)
	}
}

// newProductionRunner builds the orchestrator and everything it depends on.
// The returned cleanup releases the LLM client and run log sinks.
func newProductionRunner(ctx context.Context, cfg *config.Config, logger *zap.Logger) (runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	llm, err := llmclient.NewClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if llm != nil {
		closers = append(closers, func() {
			if err := llm.Close(); err != nil {
				logger.Warn("Failed to close LLM client", zap.Error(err))
			}
		})
	} else {
		logger.Info("No language model configured, using pattern-based extraction.")
	}

	sink := openSinks(ctx, cfg.RunLog, logger)
	closers = append(closers, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("Failed to close run log", zap.Error(err))
		}
	})

	orch, err := orchestrator.New(
		intent.NewExtractor(llm, cfg.LLM, logger),
		provider.NewRegistry(cfg.Providers, cfg.Browser.Viewport, logger),
		browser.NewManager(cfg.Browser, logger),
		sink,
		cfg.Sender.Name,
		logger,
	)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	if !cfg.Browser.Headless {
		orch.WithLinger(func(ctx context.Context, s schemas.Session) {
			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupts)
			browser.Linger(ctx, cfg.Browser.Linger, cfg.Browser.LingerExtension, interrupts, logger)
		})
	}
	return orch, cleanup, nil
}

// openSinks opens every configured run log. A sink that cannot be opened is
// logged and skipped so the send itself still happens.
func openSinks(ctx context.Context, cfg config.RunLogConfig, logger *zap.Logger) *runlog.Multi {
	var sinks []runlog.Sink
	if cfg.Path != "" {
		fileSink, err := runlog.NewFileSink(cfg.Path)
		if err != nil {
			logger.Warn("Run log file unavailable", zap.String("path", cfg.Path), zap.Error(err))
		} else {
			sinks = append(sinks, fileSink)
		}
	}
	if cfg.DatabaseURL != "" {
		pgSink, err := runlog.OpenPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("Run log database unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, pgSink)
		}
	}
	return runlog.NewMulti(sinks...)
}
