package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/internal/watch"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	startWait         bool
	startTimeout      time.Duration
	startOutputFormat string
)

var startCmd = &cobra.Command{
	Use:   "start <intent>",
	Short: "Submit a protocol request",
	Long: `Create a request for the given intent and queue its first run.

By default the command returns as soon as the run is queued. With --wait it
follows the live feed until the run finalizes, stops, or --timeout elapses, and
then prints the final state.

Examples:
  foundry start "Exposure hierarchy for agoraphobia"
  foundry start --wait --timeout 5m "Sleep hygiene protocol for insomnia"
  foundry start --wait --output json "Worry time exercise" > versions.jsonl`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&startWait, "wait", "w", false, "Follow the run until it finishes")
	startCmd.Flags().DurationVar(&startTimeout, "timeout", 10*time.Minute, "Maximum time to wait with --wait")
	startCmd.Flags().StringVarP(&startOutputFormat, "output", "o", "default", "Feed output format with --wait (default or json)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(startOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, json"})
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	intent := strings.Join(args, " ")
	requestID, err := newController(client).Start(ctx, intent)
	if err != nil {
		if requestID == "" {
			return lifecycleError("start", requestID, err)
		}
		return fmt.Errorf("request %s created but not queued: %w", requestID, err)
	}

	if !startWait {
		printer.Success("Request %s queued\n", requestID)
		printer.Info("  Follow it:  foundry watch %s --from 0\n", requestID)
		return nil
	}

	if format == watch.OutputFormatDefault {
		printer.Step("Request %s queued, waiting for the run...\n", requestID)
	}

	waitCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	feed := watch.NewFeed(client, cfg.PollInterval())
	_, err = feed.Follow(waitCtx, requestID, 0, runFinished, format, printer.Out)
	if errors.Is(err, context.DeadlineExceeded) {
		return printer.Error(
			"timed out waiting for the run",
			fmt.Sprintf("Request %s did not finish within %s.", requestID, startTimeout),
			[]string{
				fmt.Sprintf("Keep following it:\n  foundry watch %s", requestID),
				"Check that a worker is running:\n  foundry serve",
			},
		)
	}
	if err != nil {
		return err
	}

	if format == watch.OutputFormatJSON {
		return nil
	}

	// The finalized version is written just before the status moves on
	awaitStatus(waitCtx, client, requestID, runFinished, cfg.PollInterval())
	return printState(ctx, client, requestID, false)
}

// awaitStatus polls until done reports true for the request's status or ctx ends.
func awaitStatus(ctx context.Context, client *blackboard.Client, requestID string, done func(blackboard.RequestStatus) bool, interval time.Duration) {
	for {
		req, err := client.GetRequest(ctx, requestID)
		if err != nil || done(req.Status) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// runFinished reports statuses a run leaves its request in.
func runFinished(s blackboard.RequestStatus) bool {
	return s != blackboard.RequestStatusPending && s != blackboard.RequestStatusRunning
}
