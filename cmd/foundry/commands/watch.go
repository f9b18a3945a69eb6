package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/internal/watch"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	watchOutputFormat string
	watchFrom         int
)

var watchCmd = &cobra.Command{
	Use:   "watch <request-id>",
	Short: "Stream a request's new versions as they are written",
	Long: `Stream the versions of a request as they are committed.

By default only versions written after the command starts are shown; use
--from 0 to replay the whole history first. The stream ends after a finalized
version, when the request is approved or declined, or on Ctrl-C.

Output Formats:
  default - Human-readable lines with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  foundry watch 3f2a9c1e
  foundry watch 3f2a9c1e --from 0 --output json > versions.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().IntVar(&watchFrom, "from", -1, "Replay versions after this number (0 = all)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	requestID, err := resolveRequest(ctx, client, args[0])
	if err != nil {
		return err
	}

	after := watchFrom
	if after < 0 {
		after, err = client.LatestVersionNumber(ctx, requestID)
		if err != nil {
			return err
		}
	}

	if format == watch.OutputFormatDefault {
		printer.Step("Watching %s from v%d (Ctrl-C to stop)\n", requestID, after+1)
	}

	feed := watch.NewFeed(client, cfg.PollInterval())
	_, err = feed.Follow(ctx, requestID, after, blackboard.RequestStatus.IsAbsorbing, format, printer.Out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
