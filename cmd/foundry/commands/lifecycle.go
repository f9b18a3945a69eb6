package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var (
	approveText     string
	approveTextFile string
	declineReason   string
	rerunFeedback   string
)

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a request's protocol",
	Long: `Approve the protocol of a request. The approved text is recorded as a new
version and the request becomes approved, which is final.

Without --text or --text-file the latest draft is approved as is.

Examples:
  foundry approve 3f2a9c1e
  foundry approve 3f2a9c1e --text-file edited.md`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

var declineCmd = &cobra.Command{
	Use:   "decline <request-id>",
	Short: "Decline a request",
	Long: `Decline a request. The reason is recorded as a new version and the request
becomes declined, which is final.

Example:
  foundry decline 3f2a9c1e --reason "Not appropriate for adolescents"`,
	Args: cobra.ExactArgs(1),
	RunE: runDecline,
}

var haltCmd = &cobra.Command{
	Use:   "halt <request-id>",
	Short: "Stop a request's run",
	Long: `Mark a request halted. A run in progress stops at its next cycle boundary and
checkpoints the draft it has. A halted request can still be approved, declined
or rerun.`,
	Args: cobra.ExactArgs(1),
	RunE: runHalt,
}

var rerunCmd = &cobra.Command{
	Use:   "rerun <request-id>",
	Short: "Run a request again with reviewer feedback",
	Long: `Queue another run seeded from the latest version. The feedback is added to
the notes the drafter sees.

Example:
  foundry rerun 3f2a9c1e --feedback "Use simpler language and shorter steps"`,
	Args: cobra.ExactArgs(1),
	RunE: runRerun,
}

func init() {
	approveCmd.Flags().StringVar(&approveText, "text", "", "Final protocol text (defaults to the latest draft)")
	approveCmd.Flags().StringVar(&approveTextFile, "text-file", "", "Read the final protocol text from a file")
	approveCmd.MarkFlagsMutuallyExclusive("text", "text-file")

	declineCmd.Flags().StringVarP(&declineReason, "reason", "r", "", "Reason for declining")
	rerunCmd.Flags().StringVarP(&rerunFeedback, "feedback", "f", "", "Feedback for the next run")

	rootCmd.AddCommand(approveCmd, declineCmd, haltCmd, rerunCmd)
}

// withRequest connects, resolves the request argument and runs fn.
func withRequest(arg string, fn func(ctx context.Context, client *blackboard.Client, requestID string) error) error {
	ctx := context.Background()
	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	requestID, err := resolveRequest(ctx, client, arg)
	if err != nil {
		return err
	}
	return fn(ctx, client, requestID)
}

func runApprove(cmd *cobra.Command, args []string) error {
	text := approveText
	if approveTextFile != "" {
		data, err := os.ReadFile(approveTextFile)
		if err != nil {
			return printer.Error("cannot read --text-file", err.Error(), nil)
		}
		text = string(data)
	}

	return withRequest(args[0], func(ctx context.Context, client *blackboard.Client, requestID string) error {
		v, err := newController(client).Approve(ctx, requestID, text)
		if err != nil {
			return lifecycleError("approve", requestID, err)
		}
		printer.Success("Request %s approved (v%d)\n", requestID, v.Version)
		return nil
	})
}

func runDecline(cmd *cobra.Command, args []string) error {
	return withRequest(args[0], func(ctx context.Context, client *blackboard.Client, requestID string) error {
		v, err := newController(client).Decline(ctx, requestID, declineReason)
		if err != nil {
			return lifecycleError("decline", requestID, err)
		}
		printer.Success("Request %s declined (v%d)\n", requestID, v.Version)
		return nil
	})
}

func runHalt(cmd *cobra.Command, args []string) error {
	return withRequest(args[0], func(ctx context.Context, client *blackboard.Client, requestID string) error {
		if err := newController(client).Halt(ctx, requestID); err != nil {
			return lifecycleError("halt", requestID, err)
		}
		printer.Success("Request %s halted\n", requestID)
		return nil
	})
}

func runRerun(cmd *cobra.Command, args []string) error {
	return withRequest(args[0], func(ctx context.Context, client *blackboard.Client, requestID string) error {
		seed, err := newController(client).Rerun(ctx, requestID, rerunFeedback)
		if err != nil {
			if seed != nil {
				return fmt.Errorf("rerun seeded at v%d but not queued: %w", seed.Version, err)
			}
			return lifecycleError("rerun", requestID, err)
		}
		printer.Success("Rerun of %s queued from v%d\n", requestID, seed.Version)
		if strings.TrimSpace(rerunFeedback) == "" {
			printer.Warning("No --feedback given; the next run only sees the previous notes\n")
		}
		return nil
	})
}
