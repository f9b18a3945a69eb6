package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/history"
	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/internal/timespec"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	historyOutputFormat string
	historySince        string
	historyUntil        string
	historyKind         string
	historyAgent        string
	historyStatus       string
	historyVersion      int
)

var historyCmd = &cobra.Command{
	Use:   "history [request-id]",
	Short: "List requests, or the versions of one request",
	Long: `Without a request ID, list every request of the instance.
With a request ID, list that request's versions in order.

Output Formats:
  default - Table with truncated text
  jsonl   - One complete JSON record per line

Filters (combined with AND):
  --since / --until  Time bounds: durations ("2h", "3d") or RFC3339 timestamps
  --kind             Version kind glob, e.g. "human_*"
  --agent            Only versions with a note from this agent
  --status           Only requests with this status

Examples:
  foundry history --status completed
  foundry history 3f2a9c1e --kind 'human_*'
  foundry history 3f2a9c1e --version 3
  foundry history 3f2a9c1e -o jsonl | jq .safety_score`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	flags := historyCmd.Flags()
	flags.StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	flags.StringVar(&historySince, "since", "", "Only records created after this time")
	flags.StringVar(&historyUntil, "until", "", "Only records created before this time")
	flags.StringVar(&historyKind, "kind", "", "Version kind glob")
	flags.StringVar(&historyAgent, "agent", "", "Agent name (drafter, safety, critic, supervisor, human)")
	flags.StringVar(&historyStatus, "status", "", "Request status")
	flags.IntVar(&historyVersion, "version", -1, "Print one version as JSON (0 = latest)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := history.ParseOutputFormat(historyOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	since, until, err := timespec.ParseRange(historySince, historyUntil)
	if err != nil {
		return printer.Error("invalid time range", err.Error(), nil)
	}

	filters := &history.Criteria{
		SinceTimestampMs: since,
		UntilTimestampMs: until,
		KindGlob:         historyKind,
		Agent:            historyAgent,
	}
	if historyStatus != "" {
		status := blackboard.RequestStatus(historyStatus)
		if err := status.Validate(); err != nil {
			return printer.Error("invalid status", err.Error(), nil)
		}
		filters.Status = status
	}

	ctx := context.Background()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		if historyVersion >= 0 {
			return printer.Error("--version needs a request ID", "", []string{"foundry history <request-id> --version N"})
		}
		return history.ListRequests(ctx, client, format, filters, printer.Out)
	}

	requestID, err := resolveRequest(ctx, client, args[0])
	if err != nil {
		return err
	}

	if historyVersion >= 0 {
		err = history.ShowVersion(ctx, client, requestID, historyVersion, printer.Out)
	} else {
		err = history.ShowHistory(ctx, client, requestID, format, filters, printer.Out)
	}
	if history.IsNotFound(err) {
		return printer.Error("not found", err.Error(), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	return nil
}
