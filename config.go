package governor

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StrategyEnv is the environment variable naming the strategy to use.
const StrategyEnv = "GOVERNOR_STRATEGY"

// Duration wraps time.Duration so YAML configs can say "2s" or "500ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("governor: config: duration must be a string like \"2s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("governor: config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// BulkConfig configures batched background processing.
type BulkConfig struct {
	Models     []string `yaml:"models"`
	BatchSize  int      `yaml:"batch_size"`
	BatchDelay Duration `yaml:"batch_delay"`
}

// RealtimeConfig configures interactive request handling.
type RealtimeConfig struct {
	Models     []string `yaml:"models"`
	MaxRetries int      `yaml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay"`
}

// Strategy is a named pairing of model preference lists and retry/batch
// tuning. Selected once at construction and never mutated at runtime.
type Strategy struct {
	Bulk     BulkConfig     `yaml:"bulk"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// Config is the top-level governor configuration.
type Config struct {
	// Strategy names the strategy to use. Empty means the value of
	// GOVERNOR_STRATEGY, falling back to "conservative".
	Strategy string `yaml:"strategy"`

	// CounterURL optionally points at a redis instance backing the daily
	// counters so multiple processes share them. Empty degrades to
	// process-local counting.
	CounterURL string `yaml:"counter_url"`

	// Quotas overrides or extends the built-in quota table per model.
	Quotas map[string]ModelQuota `yaml:"quotas"`

	// Strategies overrides or extends the built-in strategies.
	Strategies map[string]Strategy `yaml:"strategies"`
}

// BuiltinStrategies returns the named strategies shipped with the governor.
func BuiltinStrategies() map[string]Strategy {
	return map[string]Strategy{
		"conservative": {
			Bulk: BulkConfig{
				Models:     []string{"gemini-2.0-flash-lite", "gemini-2.0-flash"},
				BatchSize:  5,
				BatchDelay: Duration(2 * time.Second),
			},
			Realtime: RealtimeConfig{
				Models:     []string{"gemini-2.0-flash", "gemini-2.0-flash-lite", "gemini-1.5-flash"},
				MaxRetries: 3,
				BaseDelay:  Duration(time.Second),
			},
		},
		"aggressive": {
			Bulk: BulkConfig{
				Models:     []string{"gemini-2.0-flash", "gemini-2.5-flash"},
				BatchSize:  10,
				BatchDelay: Duration(500 * time.Millisecond),
			},
			Realtime: RealtimeConfig{
				Models:     []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
				MaxRetries: 5,
				BaseDelay:  Duration(500 * time.Millisecond),
			},
		},
		"tier1": {
			Bulk: BulkConfig{
				Models:     []string{"gemini-2.5-flash", "gemini-2.0-flash"},
				BatchSize:  20,
				BatchDelay: Duration(200 * time.Millisecond),
			},
			Realtime: RealtimeConfig{
				Models:     []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"},
				MaxRetries: 3,
				BaseDelay:  Duration(time.Second),
			},
		},
		"development": {
			Bulk: BulkConfig{
				Models:     []string{"gemini-2.0-flash-lite"},
				BatchSize:  2,
				BatchDelay: Duration(5 * time.Second),
			},
			Realtime: RealtimeConfig{
				Models:     []string{"gemini-2.0-flash-lite"},
				MaxRetries: 2,
				BaseDelay:  Duration(time.Second),
			},
		},
	}
}

// StrategyFromEnv returns the strategy name from GOVERNOR_STRATEGY, or
// "conservative" when unset.
func StrategyFromEnv() string {
	if name := os.Getenv(StrategyEnv); name != "" {
		return name
	}
	return "conservative"
}

// LoadConfig reads and parses a YAML config file. Environment variables in
// the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("governor: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("governor: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Strategy != "" {
		if _, err := c.resolveStrategy(c.Strategy); err != nil {
			return err
		}
	}

	for name, s := range c.Strategies {
		if len(s.Realtime.Models) == 0 {
			return fmt.Errorf("governor: config: strategy %q: realtime needs at least one model", name)
		}
		if len(s.Bulk.Models) == 0 {
			return fmt.Errorf("governor: config: strategy %q: bulk needs at least one model", name)
		}
		if s.Realtime.MaxRetries < 0 {
			return fmt.Errorf("governor: config: strategy %q: max_retries must not be negative", name)
		}
		if s.Bulk.BatchSize < 0 {
			return fmt.Errorf("governor: config: strategy %q: batch_size must not be negative", name)
		}
	}

	for model, q := range c.Quotas {
		if q.RequestsPerMinute <= 0 {
			return fmt.Errorf("governor: config: quota %q: requests_per_minute must be positive", model)
		}
		if q.RequestsPerDay < 0 || q.TokensPerMinute < 0 {
			return fmt.Errorf("governor: config: quota %q: limits must not be negative", model)
		}
	}

	return nil
}

// resolveStrategy looks up name in the config's strategies and then the
// built-ins.
func (c Config) resolveStrategy(name string) (Strategy, error) {
	if s, ok := c.Strategies[name]; ok {
		return s, nil
	}
	if s, ok := BuiltinStrategies()[name]; ok {
		return s, nil
	}
	return Strategy{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}
