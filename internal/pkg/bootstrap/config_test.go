package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, float64(2), cfg.App.LuckyMultiplier)
	assert.Equal(t, 300, cfg.App.PaymentGraceSeconds)
	assert.Equal(t, "localhost:6379", cfg.Infra.Redis.Addrs)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  log_level: debug
  lucky_multiplier: 1.5
infra:
  redis:
    addrs: "redis-a:6379,redis-b:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 1.5, cfg.App.LuckyMultiplier)
	assert.Equal(t, "redis-a:6379,redis-b:6379", cfg.Infra.Redis.Addrs)
	// 文件未覆盖的配置保留默认值
	assert.Equal(t, 300, cfg.App.PaymentGraceSeconds)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("infra:\n  kafka:\n    brokers: from-file:9092\n"), 0o644))
	t.Setenv("KAFKA_BROKERS", "from-env:9092")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env:9092", cfg.Infra.Kafka.Brokers)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}
