package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), ".paddock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1950, cfg.StartYear)
	assert.Equal(t, time.Now().Year(), cfg.EndYear)
	assert.False(t, cfg.Incremental)
	assert.True(t, cfg.StrictSchema)
	assert.False(t, cfg.StrictQuality)
	assert.Equal(t, "ergast", cfg.Source)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
start_year: 2020
end_year: 2023
incremental: true
fast: true
strict_schema: false
data_dir: /var/lib/paddock
kafka_brokers: "broker1:9092, broker2:9092"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2020, cfg.StartYear)
	assert.Equal(t, 2023, cfg.EndYear)
	assert.True(t, cfg.Incremental)
	assert.True(t, cfg.Fast)
	assert.False(t, cfg.StrictSchema)
	assert.Equal(t, "/var/lib/paddock", cfg.DataDir)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "start_year: 2020\nend_year: 2023\n")

	t.Setenv("START_YEAR", "2022")
	t.Setenv("FAST_MODE", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2022, cfg.StartYear)
	assert.Equal(t, 2023, cfg.EndYear)
	assert.True(t, cfg.Fast)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "start_year: [not, an, int]\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadConfigInvalidRange(t *testing.T) {
	path := writeConfigFile(t, "start_year: 2024\nend_year: 2020\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid season range")
}

func TestSplitBrokers(t *testing.T) {
	assert.Nil(t, splitBrokers(""))
	assert.Equal(t, []string{"a:9092"}, splitBrokers("a:9092"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092 ,, b:9092 "))
}
