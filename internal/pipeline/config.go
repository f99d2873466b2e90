package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/paddock-io/paddock/internal/config"
)

// DefaultConfigFile is the optional project-local configuration file.
const DefaultConfigFile = ".paddock.yaml"

type (
	// Config holds the pipeline settings. Precedence: command-line flags
	// over environment variables over the config file over defaults.
	Config struct {
		// StartYear and EndYear bound the extracted seasons, inclusive.
		StartYear int
		EndYear   int

		// Incremental upserts into existing tables instead of the
		// default full refresh.
		Incremental bool

		// Fast skips pit stop extraction.
		Fast bool

		// Force re-fetches units even when checkpointed done.
		Force bool

		// StrictSchema fails the run on any contract violation instead
		// of dropping offending values and continuing.
		StrictSchema bool

		// StrictQuality fails the run when post-load quality checks
		// report problems.
		StrictQuality bool

		// Source names the upstream API in run audit records.
		Source string

		// DataDir is the root directory for extracted payloads.
		DataDir string

		// BaseURL overrides the upstream API base URL.
		BaseURL string

		// KafkaBrokers enables run-completion events when non-empty.
		KafkaBrokers []string

		// KafkaTopic overrides the default event topic.
		KafkaTopic string
	}

	// fileConfig mirrors Config for the YAML file. Pointers distinguish
	// absent keys from zero values.
	fileConfig struct {
		StartYear     *int    `yaml:"start_year"`
		EndYear       *int    `yaml:"end_year"`
		Incremental   *bool   `yaml:"incremental"`
		Fast          *bool   `yaml:"fast"`
		Force         *bool   `yaml:"force"`
		StrictSchema  *bool   `yaml:"strict_schema"`
		StrictQuality *bool   `yaml:"strict_quality"`
		Source        *string `yaml:"source"`
		DataDir       *string `yaml:"data_dir"`
		BaseURL       *string `yaml:"base_url"`
		KafkaBrokers  *string `yaml:"kafka_brokers"`
		KafkaTopic    *string `yaml:"kafka_topic"`
	}
)

// LoadConfig builds the pipeline configuration from defaults, the
// optional config file, and the environment. A missing config file is
// fine; a malformed one is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		StartYear:    1950,
		EndYear:      time.Now().Year(),
		StrictSchema: true,
		Source:       "ergast",
		DataDir:      "data",
	}

	if err := cfg.applyFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.StartYear > c.EndYear {
		return fmt.Errorf("invalid season range: start year %d after end year %d", c.StartYear, c.EndYear)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	return nil
}

func (c *Config) applyFile(path string) error {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.StartYear != nil {
		c.StartYear = *file.StartYear
	}

	if file.EndYear != nil {
		c.EndYear = *file.EndYear
	}

	if file.Incremental != nil {
		c.Incremental = *file.Incremental
	}

	if file.Fast != nil {
		c.Fast = *file.Fast
	}

	if file.Force != nil {
		c.Force = *file.Force
	}

	if file.StrictSchema != nil {
		c.StrictSchema = *file.StrictSchema
	}

	if file.StrictQuality != nil {
		c.StrictQuality = *file.StrictQuality
	}

	if file.Source != nil {
		c.Source = *file.Source
	}

	if file.DataDir != nil {
		c.DataDir = *file.DataDir
	}

	if file.BaseURL != nil {
		c.BaseURL = *file.BaseURL
	}

	if file.KafkaBrokers != nil {
		c.KafkaBrokers = splitBrokers(*file.KafkaBrokers)
	}

	if file.KafkaTopic != nil {
		c.KafkaTopic = *file.KafkaTopic
	}

	return nil
}

func (c *Config) applyEnv() {
	c.StartYear = config.GetEnvInt("START_YEAR", c.StartYear)
	c.EndYear = config.GetEnvInt("END_YEAR", c.EndYear)
	c.Incremental = config.GetEnvBool("INCREMENTAL", c.Incremental)
	c.Fast = config.GetEnvBool("FAST_MODE", c.Fast)
	c.Force = config.GetEnvBool("FORCE_REFETCH", c.Force)
	c.StrictSchema = config.GetEnvBool("SCHEMA_STRICT", c.StrictSchema)
	c.StrictQuality = config.GetEnvBool("QUALITY_STRICT", c.StrictQuality)
	c.Source = config.GetEnvStr("PIPELINE_SOURCE", c.Source)
	c.DataDir = config.GetEnvStr("DATA_DIR", c.DataDir)
	c.BaseURL = config.GetEnvStr("ERGAST_BASE_URL", c.BaseURL)
	c.KafkaTopic = config.GetEnvStr("KAFKA_TOPIC", c.KafkaTopic)

	if brokers := config.GetEnvStr("KAFKA_BROKERS", ""); brokers != "" {
		c.KafkaBrokers = splitBrokers(brokers)
	}
}

func splitBrokers(value string) []string {
	var brokers []string

	for _, broker := range strings.Split(value, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}

	return brokers
}
