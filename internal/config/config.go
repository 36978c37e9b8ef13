// Package config loads the ingest configuration from an optional YAML file,
// environment variable overrides and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Classification modes.
const (
	ClassifyPrefix = "prefix"
	ClassifyPath   = "path"
)

// Merge modes for the room-record engine.
const (
	MergePermissive = "permissive"
	MergeStrict     = "strict"
)

// Config holds every tunable of a run. Durations are expressed in seconds in
// YAML and in the environment.
type Config struct {
	ProjectID      string `yaml:"project_id"`
	VertexAIRegion string `yaml:"vertex_ai_region"`
	Model          string `yaml:"model"`

	BatchSize         int     `yaml:"batch_size"`
	RateLimit         int     `yaml:"rate_limit"`
	RateWindowSeconds float64 `yaml:"rate_window_seconds"`

	MaxRetries          int     `yaml:"max_retries"`
	InitialBackoffSecs  float64 `yaml:"initial_backoff_seconds"`
	MaxBackoffSecs      float64 `yaml:"max_backoff_seconds"`
	RetryDelaySecs      float64 `yaml:"retry_delay_seconds"`
	CallTimeoutSecs     float64 `yaml:"call_timeout_seconds"`
	Temperature         float32 `yaml:"temperature"`
	MaxOutputTokens     int32   `yaml:"max_output_tokens"`
	ClassifyMode        string  `yaml:"classify_mode"`
	MergeMode           string  `yaml:"merge_mode"`
	DisciplinesPath     string  `yaml:"disciplines_path"`
	TemplatesDir        string  `yaml:"templates_dir"`
	FloorNumber         string  `yaml:"floor_number"`
	LogLevel            string  `yaml:"log_level"`
	OutputBucket        string  `yaml:"output_bucket"`
	FirestoreCollection string  `yaml:"firestore_collection"`
	WorkflowID          string  `yaml:"workflow_id"`
	WorkflowLocation    string  `yaml:"workflow_location"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		VertexAIRegion:      "us-central1",
		Model:               "gemini-1.5-pro",
		BatchSize:           10,
		RateLimit:           60,
		RateWindowSeconds:   60,
		MaxRetries:          3,
		InitialBackoffSecs:  1,
		MaxBackoffSecs:      60,
		RetryDelaySecs:      5,
		CallTimeoutSecs:     300,
		Temperature:         0.2,
		MaxOutputTokens:     16000,
		ClassifyMode:        ClassifyPrefix,
		MergeMode:           MergePermissive,
		LogLevel:            "info",
		FirestoreCollection: "drawings",
		WorkflowLocation:    "us-central1",
	}
}

// Load builds a Config. The YAML file at path is optional; an empty path
// falls back to CONFIG_PATH. Environment variables override file values.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Optional file.
		default:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.ProjectID, "PROJECT_ID")
	envOverride(&cfg.VertexAIRegion, "VERTEX_AI_REGION")
	envOverride(&cfg.Model, "VERTEX_MODEL")
	envOverride(&cfg.ClassifyMode, "CLASSIFY_MODE")
	envOverride(&cfg.MergeMode, "MERGE_MODE")
	envOverride(&cfg.DisciplinesPath, "DISCIPLINES_PATH")
	envOverride(&cfg.TemplatesDir, "TEMPLATES_DIR")
	envOverride(&cfg.FloorNumber, "FLOOR_NUMBER")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.OutputBucket, "OUTPUT_BUCKET")
	envOverride(&cfg.FirestoreCollection, "FIRESTORE_COLLECTION")
	envOverride(&cfg.WorkflowID, "WORKFLOW_ID")
	envOverride(&cfg.WorkflowLocation, "WORKFLOW_LOCATION")

	ints := []struct {
		field *int
		key   string
	}{
		{&cfg.BatchSize, "BATCH_SIZE"},
		{&cfg.RateLimit, "RATE_LIMIT"},
		{&cfg.MaxRetries, "MAX_RETRIES"},
	}
	for _, e := range ints {
		if err := envOverrideInt(e.field, e.key); err != nil {
			return err
		}
	}

	floats := []struct {
		field *float64
		key   string
	}{
		{&cfg.RateWindowSeconds, "RATE_WINDOW"},
		{&cfg.InitialBackoffSecs, "INITIAL_BACKOFF"},
		{&cfg.MaxBackoffSecs, "MAX_BACKOFF"},
		{&cfg.RetryDelaySecs, "RETRY_DELAY"},
		{&cfg.CallTimeoutSecs, "CALL_TIMEOUT"},
	}
	for _, e := range floats {
		if err := envOverrideFloat(e.field, e.key); err != nil {
			return err
		}
	}

	if val := os.Getenv("TEMPERATURE"); val != "" {
		parsed, err := strconv.ParseFloat(val, 32)
		if err != nil {
			return fmt.Errorf("invalid TEMPERATURE %q: %w", val, err)
		}
		cfg.Temperature = float32(parsed)
	}
	if val := os.Getenv("MAX_OUTPUT_TOKENS"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid MAX_OUTPUT_TOKENS %q: %w", val, err)
		}
		cfg.MaxOutputTokens = int32(parsed)
	}
	return nil
}

func envOverride(field *string, key string) {
	if val := os.Getenv(key); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*field = parsed
	return nil
}

func envOverrideFloat(field *float64, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	*field = parsed
	return nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("invalid batch_size %d: must be >= 1", c.BatchSize)
	}
	if c.RateLimit < 1 {
		return fmt.Errorf("invalid rate_limit %d: must be >= 1", c.RateLimit)
	}
	if c.RateWindowSeconds < 0 {
		return fmt.Errorf("invalid rate_window_seconds %v: must be >= 0", c.RateWindowSeconds)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("invalid max_retries %d: must be >= 1", c.MaxRetries)
	}
	if c.InitialBackoffSecs < 0 || c.MaxBackoffSecs < c.InitialBackoffSecs {
		return fmt.Errorf("invalid backoff range [%v, %v]", c.InitialBackoffSecs, c.MaxBackoffSecs)
	}
	if c.RetryDelaySecs < 0 {
		return fmt.Errorf("invalid retry_delay_seconds %v: must be >= 0", c.RetryDelaySecs)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("invalid temperature %v: must be between 0 and 2", c.Temperature)
	}
	if c.MaxOutputTokens < 1 {
		return fmt.Errorf("invalid max_output_tokens %d: must be >= 1", c.MaxOutputTokens)
	}
	switch strings.ToLower(c.ClassifyMode) {
	case ClassifyPrefix, ClassifyPath:
	default:
		return fmt.Errorf("classify_mode must be %q or %q, got %q", ClassifyPrefix, ClassifyPath, c.ClassifyMode)
	}
	switch strings.ToLower(c.MergeMode) {
	case MergePermissive, MergeStrict:
	default:
		return fmt.Errorf("merge_mode must be %q or %q, got %q", MergePermissive, MergeStrict, c.MergeMode)
	}
	return nil
}

// RateWindow returns the throttle window length.
func (c Config) RateWindow() time.Duration { return seconds(c.RateWindowSeconds) }

// InitialBackoff returns the first rate-limit wait.
func (c Config) InitialBackoff() time.Duration { return seconds(c.InitialBackoffSecs) }

// MaxBackoff returns the cap applied to rate-limit waits.
func (c Config) MaxBackoff() time.Duration { return seconds(c.MaxBackoffSecs) }

// RetryDelay returns the fixed wait used for non rate-limit failures.
func (c Config) RetryDelay() time.Duration { return seconds(c.RetryDelaySecs) }

// CallTimeout bounds a single attempt against the extraction service.
func (c Config) CallTimeout() time.Duration { return seconds(c.CallTimeoutSecs) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
