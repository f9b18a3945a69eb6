package commands

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/config"
	"github.com/Keerthana203/cerina-foundry/internal/llm"
	"github.com/Keerthana203/cerina-foundry/internal/orchestrator"
	"github.com/Keerthana203/cerina-foundry/internal/pipeline"
	"github.com/Keerthana203/cerina-foundry/internal/safety"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

var serveHealthAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker that executes protocol runs",
	Long: `Run the worker process for an instance.

The worker re-dispatches runs interrupted by a previous shutdown, then executes
runs queued by 'foundry start' and 'foundry rerun' until interrupted. A health
endpoint is served at /healthz.

Examples:
  # Serve with defaults (Redis on localhost, Ollama on localhost:11434)
  foundry serve

  # Serve a named instance with a custom config
  foundry serve --instance staging --config foundry.yml --health-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHealthAddr, "health-addr", "", "Health endpoint address (overrides health.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	gen := llm.NewOllamaClient(cfg.Generation.BaseURL, cfg.Generation.Model, cfg.GenerationTimeout())
	runner, err := newRunner(cfg, client, gen)
	if err != nil {
		return err
	}

	addr := cfg.Health.Addr
	if serveHealthAddr != "" {
		addr = serveHealthAddr
	}

	log.Printf("[Serve] Instance '%s', model %s at %s, checkpoint mode %s",
		client.InstanceName(), gen.Model(), cfg.Generation.BaseURL, cfg.Runner.Checkpoint)

	return orchestrator.NewEngine(client, runner, addr).Run(ctx)
}

// newRunner assembles the step machine and runner from a validated configuration.
func newRunner(cfg *config.FoundryConfig, client *blackboard.Client, gen llm.Generator) (*orchestrator.Runner, error) {
	policy := pipeline.Policy{
		MinRevisions:    *cfg.Supervisor.MinRevisions,
		SafetyThreshold: *cfg.Supervisor.SafetyThreshold,
		MaxIterations:   *cfg.Supervisor.MaxIterations,
	}

	drafter := pipeline.NewDrafter(gen, llm.Options{
		Temperature:     *cfg.Generation.Temperature,
		TopP:            *cfg.Generation.TopP,
		MaxOutputTokens: *cfg.Generation.MaxOutputTokens,
	})
	evaluator := safety.NewEvaluator(cfg.Safety.Denylist, *cfg.Safety.DegradedScore, *cfg.Safety.BaselineScore)
	critic := pipeline.StubCritic{Score: *cfg.Critique.EmpathyScore}

	machine, err := pipeline.NewMachine(drafter, evaluator, critic, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to build step machine: %w", err)
	}

	return orchestrator.NewRunner(client, machine, cfg.Runner.Checkpoint, cfg.LockTTL()), nil
}
