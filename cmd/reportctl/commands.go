package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/maturity-report/internal/app"
	"github.com/ashureev/maturity-report/internal/briefing"
	"github.com/ashureev/maturity-report/internal/config"
	"github.com/ashureev/maturity-report/internal/history"
	"github.com/ashureev/maturity-report/internal/normalize"
	"github.com/ashureev/maturity-report/internal/poller"
)

var errJobDidNotComplete = errors.New("job did not complete")

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "reportctl",
		Short:         "Inspect digital maturity analysis payloads and jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("CONFIG_FILE"), "YAML configuration file")

	root.AddCommand(
		newNormalizeCmd(),
		newBriefCmd(),
		newWatchCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadFile(o.configPath)
}

// readPayload reads a file, or stdin when path is "-".
func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return raw, nil
}

func newNormalizeCmd() *cobra.Command {
	var dialectOnly bool
	cmd := &cobra.Command{
		Use:   "normalize <file|->",
		Short: "Print the canonical result for a raw analysis payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			if dialectOnly {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), normalize.DetectRaw(raw))
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(normalize.Normalize(raw))
		},
	}
	cmd.Flags().BoolVar(&dialectOnly, "dialect", false, "only print the detected payload dialect")
	return cmd
}

func newBriefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "brief <file|->",
		Short: "Print the chat briefing built from a raw analysis payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), briefing.Build(nil, normalize.Normalize(raw)))
			return err
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it completes, fails or times out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel()}))
			return watch(ctx, cmd.OutOrStdout(), app.NewPoller(cfg, stores.Jobs, logger), args[0])
		},
	}
}

func watch(ctx context.Context, out io.Writer, p *poller.Poller, jobID string) error {
	var final poller.Event
	err := p.Poll(ctx, jobID, func(ev poller.Event) {
		final = ev
		switch ev.Kind {
		case poller.EventProgress:
			fmt.Fprintf(out, "%3d%%  %s (attempt %d)\n", ev.Progress, ev.Status, ev.Attempt)
		case poller.EventCompleted:
			fmt.Fprintf(out, "100%%  completed\n")
			if ev.Lenient {
				fmt.Fprintf(out, "note: completed with unrecognized status %q\n", ev.Status)
			}
		default:
			fmt.Fprintf(out, "%s: %s\n", ev.Kind, ev.Error)
		}
	})
	if err != nil {
		return err
	}
	if final.Kind != poller.EventCompleted {
		return fmt.Errorf("%w: %s", errJobDidNotComplete, final.Kind)
	}
	if final.Result != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, briefing.Build(final.Job, *final.Result))
	}
	return nil
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			stores, err := app.OpenStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			hist, err := history.New(stores.Jobs, 1, nil)
			if err != nil {
				return err
			}
			return printHistory(cmd.Context(), cmd.OutOrStdout(), hist, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	return cmd
}

func printHistory(ctx context.Context, out io.Writer, hist *history.Store, limit int) error {
	reports, err := hist.List(ctx, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tWEBSITE\tCREATED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.CompanyName, r.Website, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
