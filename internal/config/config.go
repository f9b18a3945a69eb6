package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for the configuration when --config is not set.
const DefaultPath = "foundry.yml"

// Checkpoint modes for the runner.
const (
	CheckpointRun   = "run"   // one version at the end of each run
	CheckpointCycle = "cycle" // one version per completed draft/safety/critique cycle
)

// SupervisorConfig holds the revise/halt/finalize policy constants.
type SupervisorConfig struct {
	MinRevisions    *int     `yaml:"min_revisions,omitempty"`    // Revisions required after the first draft (default 1)
	SafetyThreshold *float64 `yaml:"safety_threshold,omitempty"` // Minimum safety score to finalize (default 0.8)
	MaxIterations   *int     `yaml:"max_iterations,omitempty"`   // Iteration ceiling (default 5)
}

// SafetyConfig configures the denylist evaluator.
type SafetyConfig struct {
	Denylist      []string `yaml:"denylist,omitempty"`
	DegradedScore *float64 `yaml:"degraded_score,omitempty"`
	BaselineScore *float64 `yaml:"baseline_score,omitempty"`
}

// CritiqueConfig configures the stub critic.
type CritiqueConfig struct {
	EmpathyScore *float64 `yaml:"empathy_score,omitempty"`
}

// GenerationConfig points the drafter at an Ollama-compatible text-generation service.
type GenerationConfig struct {
	BaseURL         string   `yaml:"base_url,omitempty"`
	Model           string   `yaml:"model,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	TopP            *float64 `yaml:"top_p,omitempty"`
	MaxOutputTokens *int     `yaml:"max_output_tokens,omitempty"`
	TimeoutSeconds  *int     `yaml:"timeout_seconds,omitempty"`
}

// RunnerConfig specifies runner behaviour
type RunnerConfig struct {
	Checkpoint     string `yaml:"checkpoint,omitempty"`       // "run" or "cycle"
	LockTTLSeconds *int   `yaml:"lock_ttl_seconds,omitempty"` // Run lock TTL, refreshed every cycle
}

// FeedConfig specifies live feed polling
type FeedConfig struct {
	PollIntervalMs *int `yaml:"poll_interval_ms,omitempty"`
}

// HealthConfig specifies where the serve process exposes /healthz
type HealthConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// FoundryConfig represents the top-level foundry.yml configuration
type FoundryConfig struct {
	Version    string            `yaml:"version"`
	Supervisor *SupervisorConfig `yaml:"supervisor,omitempty"`
	Safety     *SafetyConfig     `yaml:"safety,omitempty"`
	Critique   *CritiqueConfig   `yaml:"critique,omitempty"`
	Generation *GenerationConfig `yaml:"generation,omitempty"`
	Runner     *RunnerConfig     `yaml:"runner,omitempty"`
	Feed       *FeedConfig       `yaml:"feed,omitempty"`
	Health     *HealthConfig     `yaml:"health,omitempty"`
}

// Default returns a fully populated configuration with every default applied.
func Default() *FoundryConfig {
	cfg := &FoundryConfig{Version: "1.0"}
	if err := cfg.Validate(); err != nil {
		// Defaults always validate
		panic(err)
	}
	return cfg
}

// Validate performs strict validation on the configuration and fills in defaults
// for every unset field.
func (c *FoundryConfig) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Supervisor == nil {
		c.Supervisor = &SupervisorConfig{}
	}
	if err := c.Supervisor.validate(); err != nil {
		return err
	}

	if c.Safety == nil {
		c.Safety = &SafetyConfig{}
	}
	if err := c.Safety.validate(); err != nil {
		return err
	}

	if c.Critique == nil {
		c.Critique = &CritiqueConfig{}
	}
	setFloat(&c.Critique.EmpathyScore, 0.9)
	if !isScore(*c.Critique.EmpathyScore) {
		return fmt.Errorf("critique.empathy_score must be in [0,1], got %v", *c.Critique.EmpathyScore)
	}

	if c.Generation == nil {
		c.Generation = &GenerationConfig{}
	}
	if err := c.Generation.validate(); err != nil {
		return err
	}

	if c.Runner == nil {
		c.Runner = &RunnerConfig{}
	}
	if c.Runner.Checkpoint == "" {
		c.Runner.Checkpoint = CheckpointRun
	}
	if c.Runner.Checkpoint != CheckpointRun && c.Runner.Checkpoint != CheckpointCycle {
		return fmt.Errorf("invalid runner.checkpoint: %s (must be '%s' or '%s')", c.Runner.Checkpoint, CheckpointRun, CheckpointCycle)
	}
	setInt(&c.Runner.LockTTLSeconds, 900)
	if *c.Runner.LockTTLSeconds < 1 {
		return fmt.Errorf("runner.lock_ttl_seconds must be >= 1, got %d", *c.Runner.LockTTLSeconds)
	}

	if c.Feed == nil {
		c.Feed = &FeedConfig{}
	}
	setInt(&c.Feed.PollIntervalMs, 1000)
	if *c.Feed.PollIntervalMs < 10 {
		return fmt.Errorf("feed.poll_interval_ms must be >= 10, got %d", *c.Feed.PollIntervalMs)
	}

	if c.Health == nil {
		c.Health = &HealthConfig{}
	}
	if c.Health.Addr == "" {
		c.Health.Addr = ":8080"
	}

	return nil
}

func (s *SupervisorConfig) validate() error {
	setInt(&s.MinRevisions, 1)
	setFloat(&s.SafetyThreshold, 0.8)
	setInt(&s.MaxIterations, 5)

	if *s.MinRevisions < 0 {
		return fmt.Errorf("supervisor.min_revisions must be >= 0, got %d", *s.MinRevisions)
	}
	if *s.MaxIterations < 1 {
		return fmt.Errorf("supervisor.max_iterations must be >= 1, got %d", *s.MaxIterations)
	}
	if !isScore(*s.SafetyThreshold) {
		return fmt.Errorf("supervisor.safety_threshold must be in [0,1], got %v", *s.SafetyThreshold)
	}
	return nil
}

func (s *SafetyConfig) validate() error {
	if s.Denylist == nil {
		s.Denylist = []string{"self-harm", "suicide"}
	}
	for i, term := range s.Denylist {
		if term == "" {
			return fmt.Errorf("safety.denylist[%d] is empty", i)
		}
	}

	setFloat(&s.DegradedScore, 0.5)
	setFloat(&s.BaselineScore, 0.95)

	if !isScore(*s.DegradedScore) || !isScore(*s.BaselineScore) {
		return fmt.Errorf("safety scores must be in [0,1] (degraded=%v, baseline=%v)", *s.DegradedScore, *s.BaselineScore)
	}
	return nil
}

func (g *GenerationConfig) validate() error {
	if g.BaseURL == "" {
		g.BaseURL = "http://localhost:11434"
	}
	if g.Model == "" {
		g.Model = "llama3:8b"
	}
	setFloat(&g.Temperature, 0.3)
	setFloat(&g.TopP, 0.9)
	setInt(&g.MaxOutputTokens, 600)
	setInt(&g.TimeoutSeconds, 120)

	if *g.Temperature < 0 {
		return fmt.Errorf("generation.temperature must be >= 0, got %v", *g.Temperature)
	}
	if !isScore(*g.TopP) {
		return fmt.Errorf("generation.top_p must be in [0,1], got %v", *g.TopP)
	}
	if *g.MaxOutputTokens < 1 {
		return fmt.Errorf("generation.max_output_tokens must be >= 1, got %d", *g.MaxOutputTokens)
	}
	if *g.TimeoutSeconds < 1 {
		return fmt.Errorf("generation.timeout_seconds must be >= 1, got %d", *g.TimeoutSeconds)
	}
	return nil
}

// LockTTL returns the run lock TTL. Only valid after Validate.
func (c *FoundryConfig) LockTTL() time.Duration {
	return time.Duration(*c.Runner.LockTTLSeconds) * time.Second
}

// PollInterval returns the feed poll interval. Only valid after Validate.
func (c *FoundryConfig) PollInterval() time.Duration {
	return time.Duration(*c.Feed.PollIntervalMs) * time.Millisecond
}

// GenerationTimeout returns the per-call generation timeout. Only valid after Validate.
func (c *FoundryConfig) GenerationTimeout() time.Duration {
	return time.Duration(*c.Generation.TimeoutSeconds) * time.Second
}

// Load reads and validates foundry.yml from the specified path
func Load(path string) (*FoundryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config FoundryConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*FoundryConfig, error) {
	cfg, err := Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func setInt(p **int, def int) {
	if *p == nil {
		v := def
		*p = &v
	}
}

func setFloat(p **float64, def float64) {
	if *p == nil {
		v := def
		*p = &v
	}
}

func isScore(f float64) bool {
	return f >= 0 && f <= 1
}
