package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Keerthana203/cerina-foundry/internal/config"
	"github.com/Keerthana203/cerina-foundry/internal/instance"
	"github.com/Keerthana203/cerina-foundry/internal/orchestrator"
	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/internal/resolver"
	"github.com/Keerthana203/cerina-foundry/pkg/blackboard"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "foundry",
	Short: "Foundry - iterative protocol drafting with human review",
	Long: `Foundry drafts clinical exercise protocols in a fixed
draft -> safety -> critique -> supervisor loop, records every revision on a
Redis blackboard, and holds the result for a human to approve, decline or send
back with feedback.

Run 'foundry serve' to start a worker, then 'foundry start' to submit a request.

Settings resolve in this order: flags, FOUNDRY_* environment variables
(FOUNDRY_REDIS_URL, FOUNDRY_INSTANCE, FOUNDRY_CONFIG), defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Errors not already printed by the printer
// package are printed here.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil && !printer.IsReported(err) {
		printer.Error("Error: "+err.Error(), "", nil)
	}
	return err
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	cobra.OnInitialize(initSettings)

	flags := rootCmd.PersistentFlags()
	flags.String("redis-url", instance.DefaultRedisURL(), "Redis URL of the blackboard")
	flags.StringP("instance", "n", instance.DefaultName, "Instance name (namespaces all Redis keys)")
	flags.StringP("config", "c", "", "Path to foundry.yml (default ./foundry.yml if present)")

	_ = viper.BindPFlag("redis_url", flags.Lookup("redis-url"))
	_ = viper.BindPFlag("instance", flags.Lookup("instance"))
	_ = viper.BindPFlag("config", flags.Lookup("config"))
}

func initSettings() {
	viper.SetEnvPrefix("FOUNDRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// loadConfig reads --config, or foundry.yml in the working directory when present.
func loadConfig() (*config.FoundryConfig, error) {
	path := viper.GetString("config")
	if path == "" {
		cfg, err := config.LoadOrDefault(config.DefaultPath)
		if err != nil {
			return nil, configError(config.DefaultPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, configError(path, err)
	}
	return cfg, nil
}

func configError(path string, err error) error {
	return printer.ErrorWithContext(
		"invalid configuration",
		err.Error(),
		map[string]string{"Config": path},
		[]string{"Fix the file or run without --config to use defaults."},
	)
}

// connect opens and pings the blackboard named by --redis-url and --instance.
func connect(ctx context.Context) (*blackboard.Client, error) {
	redisURL := viper.GetString("redis_url")
	instanceName := viper.GetString("instance")

	if err := instance.ValidateName(instanceName); err != nil {
		return nil, printer.Error("invalid instance name", err.Error(), nil)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, printer.Error(
			"invalid Redis URL",
			fmt.Sprintf("Could not parse %q: %v", redisURL, err),
			[]string{"Use the form redis://[:password@]host:port/db"},
		)
	}

	client, err := blackboard.NewClient(opts, instanceName)
	if err != nil {
		return nil, fmt.Errorf("failed to create blackboard client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis: %v", err),
			map[string]string{"Redis URL": redisURL, "Instance": instanceName},
			[]string{"Check that Redis is running and --redis-url (or FOUNDRY_REDIS_URL) points at it."},
		)
	}

	return client, nil
}

// resolveRequest expands a full or short request ID.
func resolveRequest(ctx context.Context, client *blackboard.Client, arg string) (string, error) {
	id, err := resolver.ResolveRequestID(ctx, client, arg)
	if err == nil {
		return id, nil
	}

	var ambiguous *resolver.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		return "", printer.Error("ambiguous request ID", resolver.FormatAmbiguousError(ambiguous), nil)
	case resolver.IsNotFoundError(err):
		return "", printer.Error(
			"request not found",
			err.Error(),
			[]string{"List requests:\n  foundry history"},
		)
	default:
		return "", printer.Error("invalid request ID", err.Error(), nil)
	}
}

// lifecycleError prints controller errors with a hint matching their kind.
func lifecycleError(operation, requestID string, err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		return printer.Error("request not found", err.Error(), []string{"List requests:\n  foundry history"})
	case errors.Is(err, orchestrator.ErrInvalidTransition):
		return printer.ErrorWithContext(
			fmt.Sprintf("cannot %s request", operation),
			err.Error(),
			map[string]string{"Request": requestID},
			[]string{fmt.Sprintf("Check the request status:\n  foundry state %s", requestID)},
		)
	case errors.Is(err, orchestrator.ErrInvalidInput):
		return printer.Error("invalid input", err.Error(), nil)
	default:
		return fmt.Errorf("failed to %s request %s: %w", operation, requestID, err)
	}
}

// newController returns a controller that hands runs to the serve process queue.
func newController(client *blackboard.Client) *orchestrator.Controller {
	return orchestrator.NewController(client, orchestrator.NewQueueDispatcher(client))
}
