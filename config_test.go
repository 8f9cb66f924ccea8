package governor_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobtrail/governor"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "governor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_COUNTER_URL", "redis://localhost:6379/2")

	path := writeConfig(t, `
strategy: conservative
counter_url: ${TEST_COUNTER_URL}
quotas:
  gemini-2.0-flash:
    requests_per_minute: 20
    requests_per_day: 2000
    tokens_per_minute: 500000
strategies:
  custom:
    bulk:
      models: [gemini-2.0-flash-lite]
      batch_size: 3
      batch_delay: 2s
    realtime:
      models: [gemini-2.0-flash]
      max_retries: 4
      base_delay: 500ms
`)

	cfg, err := governor.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "conservative", cfg.Strategy)
	assert.Equal(t, "redis://localhost:6379/2", cfg.CounterURL)
	assert.Equal(t, 20, cfg.Quotas["gemini-2.0-flash"].RequestsPerMinute)

	custom := cfg.Strategies["custom"]
	assert.Equal(t, 3, custom.Bulk.BatchSize)
	assert.Equal(t, 2*time.Second, custom.Bulk.BatchDelay.Std())
	assert.Equal(t, 4, custom.Realtime.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, custom.Realtime.BaseDelay.Std())
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
strategies:
  custom:
    bulk:
      models: [a]
      batch_delay: soon
    realtime:
      models: [a]
`)
	_, err := governor.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := governor.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestConfig_Validate(t *testing.T) {
	t.Run("unknown strategy", func(t *testing.T) {
		err := governor.Config{Strategy: "nonexistent"}.Validate()
		assert.ErrorIs(t, err, governor.ErrUnknownStrategy)
	})

	t.Run("strategy without realtime models", func(t *testing.T) {
		err := governor.Config{
			Strategies: map[string]governor.Strategy{
				"bad": {Bulk: governor.BulkConfig{Models: []string{"a"}}},
			},
		}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "realtime")
	})

	t.Run("negative retries", func(t *testing.T) {
		err := governor.Config{
			Strategies: map[string]governor.Strategy{
				"bad": {
					Bulk:     governor.BulkConfig{Models: []string{"a"}},
					Realtime: governor.RealtimeConfig{Models: []string{"a"}, MaxRetries: -1},
				},
			},
		}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_retries")
	})

	t.Run("quota without rpm", func(t *testing.T) {
		err := governor.Config{
			Quotas: map[string]governor.ModelQuota{"m": {}},
		}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requests_per_minute")
	})

	t.Run("empty config is valid", func(t *testing.T) {
		assert.NoError(t, governor.Config{}.Validate())
	})
}

func TestStrategyFromEnv(t *testing.T) {
	t.Setenv(governor.StrategyEnv, "")
	assert.Equal(t, "conservative", governor.StrategyFromEnv())

	t.Setenv(governor.StrategyEnv, "aggressive")
	assert.Equal(t, "aggressive", governor.StrategyFromEnv())
}

func TestBuiltinStrategies(t *testing.T) {
	builtin := governor.BuiltinStrategies()
	for _, name := range []string{"conservative", "aggressive", "tier1", "development"} {
		s, ok := builtin[name]
		require.True(t, ok, name)
		assert.NotEmpty(t, s.Realtime.Models, name)
		assert.NotEmpty(t, s.Bulk.Models, name)
		assert.Greater(t, s.Realtime.MaxRetries, 0, name)
	}
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := governor.New(governor.Config{Strategy: "bogus"})
	assert.ErrorIs(t, err, governor.ErrUnknownStrategy)
}
