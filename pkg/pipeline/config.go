// Package pipeline wires ingestion, graph construction, backbone
// extraction, community detection, risk scoring and export into one run.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/attendnet/pkg/records"
	"github.com/dd0wney/attendnet/pkg/validation"
)

// Duration unmarshals from YAML strings like "30s" or "1m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full pipeline configuration as loaded from YAML.
// Credentials never come from the file; they are injected from the
// environment by LoadConfig.
type Config struct {
	// RunID identifies the run in logs and the exported snapshot. Empty
	// generates a fresh one.
	RunID    string `yaml:"run_id"`
	LogLevel string `yaml:"log_level"`

	Source    SourceConfig    `yaml:"source"`
	Limits    LimitsConfig    `yaml:"limits"`
	Ages      AgesConfig      `yaml:"ages"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Backbone  BackboneConfig  `yaml:"backbone"`
	Detection DetectionConfig `yaml:"detection"`
	Risk      RiskConfig      `yaml:"risk"`
	Export    ExportConfig    `yaml:"export"`
}

// SourceConfig selects and configures the record source.
type SourceConfig struct {
	// Kind is one of csv, postgres, s3.
	Kind     string               `yaml:"kind"`
	CSV      CSVSourceConfig      `yaml:"csv"`
	Postgres PostgresSourceConfig `yaml:"postgres"`
	S3       S3SourceConfig       `yaml:"s3"`
}

// CSVSourceConfig lists the extract files to stream.
type CSVSourceConfig struct {
	Paths []string `yaml:"paths"`
}

// PostgresSourceConfig points at the extract table.
type PostgresSourceConfig struct {
	DatabaseURL string `yaml:"-"` // ATTENDNET_DATABASE_URL
	Table       string `yaml:"table"`
}

// S3SourceConfig lists the extract objects to stream.
type S3SourceConfig struct {
	Bucket       string   `yaml:"bucket"`
	Keys         []string `yaml:"keys"`
	Region       string   `yaml:"region"`
	Endpoint     string   `yaml:"endpoint"`
	UsePathStyle bool     `yaml:"use_path_style"`
	AccessKey    string   `yaml:"-"` // ATTENDNET_S3_ACCESS_KEY
	SecretKey    string   `yaml:"-"` // ATTENDNET_S3_SECRET_KEY
}

// LimitsConfig bounds run size. A zero limit disables that guard.
type LimitsConfig struct {
	MaxRecords int `yaml:"max_records"`
	MaxNodes   int `yaml:"max_nodes"`
}

// AgesConfig sets the upper age bounds of the child, young adult and adult
// cohorts. They must be strictly increasing.
type AgesConfig struct {
	Child      int `yaml:"child"`
	YoungAdult int `yaml:"young_adult"`
	Adult      int `yaml:"adult"`
}

// Boundaries converts the config into classifier boundaries.
func (a AgesConfig) Boundaries() records.AgeBoundaries {
	return records.AgeBoundaries{Child: a.Child, YoungAdult: a.YoungAdult, Adult: a.Adult}
}

// PrivacyConfig controls patient identifier handling.
type PrivacyConfig struct {
	// PseudonymKey keys the patient tokens. Empty disables
	// pseudonymization, for extracts already de-identified upstream.
	PseudonymKey string `yaml:"-"` // ATTENDNET_PSEUDONYM_KEY
}

// BackboneConfig configures the disparity filter.
type BackboneConfig struct {
	Alpha float64 `yaml:"alpha"`
}

// DetectionConfig configures the community detector.
type DetectionConfig struct {
	// Strategies selects registered strategies by name; empty runs all.
	Strategies       []string `yaml:"strategies"`
	Seed             int64    `yaml:"seed"`
	MaxIterations    int      `yaml:"max_iterations"`
	StrategyTimeout  Duration `yaml:"strategy_timeout"`
	MinCommunitySize int      `yaml:"min_community_size"`
	Workers          int      `yaml:"workers"`
}

// RiskConfig configures entity scoring.
type RiskConfig struct {
	Workers int `yaml:"workers"`
}

// ExportConfig configures snapshot destinations. The file sink is always
// active; the S3 sink joins it when a bucket is configured.
type ExportConfig struct {
	Path     string         `yaml:"path"`
	Compress bool           `yaml:"compress"`
	S3       S3ExportConfig `yaml:"s3"`
}

// S3ExportConfig configures the optional object storage sink.
type S3ExportConfig struct {
	Bucket       string `yaml:"bucket"`
	Key          string `yaml:"key"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	AccessKey    string `yaml:"-"` // ATTENDNET_S3_ACCESS_KEY
	SecretKey    string `yaml:"-"` // ATTENDNET_S3_SECRET_KEY
}

// DefaultConfig returns the standard pipeline configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Source:   SourceConfig{Kind: "csv"},
		Limits:   LimitsConfig{MaxRecords: 5_000_000, MaxNodes: 1_000_000},
		Ages:     AgesConfig{Child: 18, YoungAdult: 35, Adult: 65},
		Backbone: BackboneConfig{Alpha: 0.05},
		Detection: DetectionConfig{
			Seed:             42,
			MaxIterations:    100,
			StrategyTimeout:  Duration(30 * time.Second),
			MinCommunitySize: 10,
			Workers:          4,
		},
		Risk:   RiskConfig{Workers: 4},
		Export: ExportConfig{Path: "network_data.json"},
	}
}

// LoadConfig reads YAML over the defaults and applies environment
// overrides. An empty path skips the file and returns env-overlaid
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("pipeline: read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("pipeline: parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv injects identity and credentials from the environment.
func (c *Config) applyEnv() {
	c.RunID = getEnvOrDefault("ATTENDNET_RUN_ID", c.RunID)
	c.LogLevel = getEnvOrDefault("ATTENDNET_LOG_LEVEL", c.LogLevel)
	c.Privacy.PseudonymKey = getEnvOrDefault("ATTENDNET_PSEUDONYM_KEY", c.Privacy.PseudonymKey)
	c.Source.Postgres.DatabaseURL = getEnvOrDefault("ATTENDNET_DATABASE_URL", c.Source.Postgres.DatabaseURL)

	accessKey := os.Getenv("ATTENDNET_S3_ACCESS_KEY")
	secretKey := os.Getenv("ATTENDNET_S3_SECRET_KEY")
	if accessKey != "" {
		c.Source.S3.AccessKey = accessKey
		c.Source.S3.SecretKey = secretKey
		c.Export.S3.AccessKey = accessKey
		c.Export.S3.SecretKey = secretKey
	}
}

// Validate checks every tunable the stages depend on. All violations are
// collected into one error.
func (c Config) Validate() error {
	v := validation.NewConfigValidator("pipeline")
	v.OneOf("log_level", c.LogLevel, []string{"debug", "info", "warn", "error"})
	v.OneOf("source.kind", c.Source.Kind, []string{"csv", "postgres", "s3"})
	v.NonNegative("limits.max_records", c.Limits.MaxRecords)
	v.NonNegative("limits.max_nodes", c.Limits.MaxNodes)
	v.Increasing("ages", []int{c.Ages.Child, c.Ages.YoungAdult, c.Ages.Adult})
	v.UnitInterval("backbone.alpha", c.Backbone.Alpha)
	v.Positive("detection.max_iterations", c.Detection.MaxIterations)
	v.MinDuration("detection.strategy_timeout", time.Duration(c.Detection.StrategyTimeout), time.Millisecond)
	v.Positive("detection.min_community_size", c.Detection.MinCommunitySize)
	v.Positive("detection.workers", c.Detection.Workers)
	v.Positive("risk.workers", c.Risk.Workers)
	v.Required("export.path", c.Export.Path)
	v.When(c.Export.S3.Bucket != "", func(v *validation.ConfigValidator) {
		v.Required("export.s3.key", c.Export.S3.Key)
	})
	return v.Validate()
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
