package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/history"
	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state <request-id>",
	Short: "Show a request's status and latest version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRequest(args[0], func(ctx context.Context, client *blackboard.Client, requestID string) error {
			return printState(ctx, client, requestID, stateJSON)
		})
	},
}

func init() {
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the request and latest version as JSON")
	rootCmd.AddCommand(stateCmd)
}

func printState(ctx context.Context, client *blackboard.Client, requestID string, asJSON bool) error {
	state, err := newController(client).State(ctx, requestID)
	if err != nil {
		return lifecycleError("read", requestID, err)
	}

	if asJSON {
		return history.FormatSingleJSON(printer.Out, state)
	}

	printer.Printf("Request:  %s\n", state.Request.ID)
	printer.Printf("Intent:   %s\n", state.Request.UserIntent)
	printer.Printf("Status:   %s\n", printer.Status(state.Request.Status))

	v := state.Latest
	if v == nil {
		printer.Println(printer.Faint("No versions yet"))
		return nil
	}

	finalized := ""
	if v.Finalized {
		finalized = ", finalized"
	}
	printer.Printf("Version:  v%d (%s%s)\n", v.Version, v.Kind, finalized)
	printer.Printf("Scores:   iteration %d, safety %.2f, empathy %.2f\n", v.Iteration, v.SafetyScore, v.EmpathyScore)

	if len(v.Notes) > 0 {
		printer.Println("Notes:")
		for _, n := range v.Notes {
			printer.Printf("  %s\n", printer.Faint(fmt.Sprintf("[%s] %s", n.Agent, n.Message)))
		}
	}

	if v.DraftText != "" {
		printer.Println("\nDraft:")
		printer.Println(v.DraftText)
	}
	return nil
}
