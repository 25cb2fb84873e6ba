package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for every environment variable the tool reads
const EnvPrefix = "REPOSTREACH_"

// Config holds all configuration options for a collection run
type Config struct {
	// Social API backend and credentials
	Social SocialConfig `yaml:"social" json:"social"`

	// Cooldown, retry and checkpoint cadence
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Request pacing
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Input table
	Input InputConfig `yaml:"input" json:"input"`

	// Result table and work directory
	Output OutputConfig `yaml:"output" json:"output"`

	// Checkpoint storage backend
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SocialConfig selects the API backend and carries its credentials.
// The four Twitter tokens are opaque to the pipeline.
type SocialConfig struct {
	Backend        string        `yaml:"backend" json:"backend"`
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxReposters   int           `yaml:"max_reposters" json:"max_reposters"`
	ConsumerKey    string        `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret string        `yaml:"consumer_secret" json:"consumer_secret"`
	AccessToken    string        `yaml:"access_token" json:"access_token"`
	AccessSecret   string        `yaml:"access_secret" json:"access_secret"`
	Account        string        `yaml:"account" json:"account"`

	// Bluesky session (optional, the public AppView needs none)
	BlueskyIdentifier  string `yaml:"bluesky_identifier" json:"bluesky_identifier"`
	BlueskyAppPassword string `yaml:"bluesky_app_password" json:"bluesky_app_password"`
	BlueskyPDSHost     string `yaml:"bluesky_pds_host" json:"bluesky_pds_host"`
}

// PipelineConfig holds the resilient batch fetch parameters
type PipelineConfig struct {
	Cooldown        time.Duration `yaml:"cooldown" json:"cooldown"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
	CheckpointEvery int           `yaml:"checkpoint_every" json:"checkpoint_every"`
}

// RateLimitConfig paces requests so the cooldown is hit less often. Each
// endpoint has its own budget.
type RateLimitConfig struct {
	Reposters EndpointLimit `yaml:"reposters" json:"reposters"`
	Followers EndpointLimit `yaml:"followers" json:"followers"`
}

// EndpointLimit is the request budget of one API endpoint. Zero requests
// disables pacing.
type EndpointLimit struct {
	Requests int           `yaml:"requests" json:"requests"`
	Window   time.Duration `yaml:"window" json:"window"`
	Burst    int           `yaml:"burst" json:"burst"`
}

// InputConfig describes the tabular input file
type InputConfig struct {
	Path     string `yaml:"path" json:"path"`
	IDColumn string `yaml:"id_column" json:"id_column"`
}

// OutputConfig describes where results are written
type OutputConfig struct {
	ResultPath string `yaml:"result_path" json:"result_path"`
	WorkDir    string `yaml:"work_dir" json:"work_dir"`
}

// CheckpointConfig selects the checkpoint store
type CheckpointConfig struct {
	Backend    string `yaml:"backend" json:"backend"`
	Directory  string `yaml:"directory" json:"directory"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
}

// MetricsConfig controls the optional /metrics listener
type MetricsConfig struct {
	Address string `yaml:"address" json:"address"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnCooldown bool `yaml:"on_cooldown" json:"on_cooldown"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with the values the original
// collection job ran with
func DefaultConfig() *Config {
	return &Config{
		Social: SocialConfig{
			Backend:      "twitter",
			Timeout:      30 * time.Second,
			MaxReposters: 100,
		},
		Pipeline: PipelineConfig{
			Cooldown:        15 * time.Minute,
			RetryAttempts:   2,
			CheckpointEvery: 100,
		},
		// Twitter v1.1 limits: retweeters/ids 75 and users/show 900 per 15 min
		RateLimit: RateLimitConfig{
			Reposters: EndpointLimit{Requests: 75, Window: 15 * time.Minute, Burst: 1},
			Followers: EndpointLimit{Requests: 900, Window: 15 * time.Minute, Burst: 1},
		},
		Input: InputConfig{
			IDColumn: "post_id",
		},
		Output: OutputConfig{
			ResultPath: "reach.csv",
			WorkDir:    ".",
		},
		Checkpoint: CheckpointConfig{
			Backend:   "file",
			Directory: "",
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnCooldown: true,
			OnComplete: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	// Social API
	setString("BACKEND", &c.Social.Backend)
	setString("BASE_URL", &c.Social.BaseURL)
	setString("CONSUMER_KEY", &c.Social.ConsumerKey)
	setString("CONSUMER_SECRET", &c.Social.ConsumerSecret)
	setString("ACCESS_TOKEN", &c.Social.AccessToken)
	setString("ACCESS_SECRET", &c.Social.AccessSecret)
	setString("BLUESKY_IDENTIFIER", &c.Social.BlueskyIdentifier)
	setString("BLUESKY_APP_PASSWORD", &c.Social.BlueskyAppPassword)
	setInt("MAX_REPOSTERS", &c.Social.MaxReposters)

	// Pipeline
	setDuration("COOLDOWN", &c.Pipeline.Cooldown)
	setInt("REPOSTERS_RATE_LIMIT", &c.RateLimit.Reposters.Requests)
	setInt("FOLLOWERS_RATE_LIMIT", &c.RateLimit.Followers.Requests)
	setInt("CHECKPOINT_EVERY", &c.Pipeline.CheckpointEvery)

	// Paths
	setString("INPUT", &c.Input.Path)
	setString("ID_COLUMN", &c.Input.IDColumn)
	setString("OUTPUT", &c.Output.ResultPath)
	setString("WORK_DIR", &c.Output.WorkDir)
	setString("CHECKPOINT_BACKEND", &c.Checkpoint.Backend)

	setString("METRICS_ADDR", &c.Metrics.Address)

	if v := os.Getenv(EnvPrefix + "NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = strings.ToLower(v) == "true"
	}

	setString("LOG_LEVEL", &c.Logging.Level)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"repostreach.yaml",
		".repostreach.yaml",
		".repostreach.yml",
		filepath.Join(home, ".config", "repostreach", "config.yaml"),
		filepath.Join(home, ".repostreach.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// HasTwitterCredentials reports whether all four tokens are present
func (c *Config) HasTwitterCredentials() bool {
	s := c.Social
	return s.ConsumerKey != "" && s.ConsumerSecret != "" && s.AccessToken != "" && s.AccessSecret != ""
}

// Validate checks if the configuration is valid. Credentials are checked
// separately by the run command because they may come from the credential store.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Social.Backend) {
	case "twitter", "bluesky":
	default:
		errs = append(errs, fmt.Errorf("unknown social backend %q", c.Social.Backend))
	}
	if c.Social.Timeout <= 0 {
		errs = append(errs, errors.New("social timeout must be positive"))
	}
	if c.Social.MaxReposters <= 0 || c.Social.MaxReposters > 100 {
		errs = append(errs, errors.New("max reposters must be between 1 and 100"))
	}

	if c.Pipeline.Cooldown < 0 {
		errs = append(errs, errors.New("cooldown cannot be negative"))
	}
	if c.Pipeline.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}
	if c.Pipeline.CheckpointEvery <= 0 {
		errs = append(errs, errors.New("checkpoint interval must be positive"))
	}

	for name, l := range map[string]EndpointLimit{
		"reposters": c.RateLimit.Reposters,
		"followers": c.RateLimit.Followers,
	} {
		if l.Requests < 0 {
			errs = append(errs, fmt.Errorf("%s rate limit requests cannot be negative", name))
		}
		if l.Requests > 0 && l.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s rate limit window must be positive", name))
		}
	}

	if c.Input.IDColumn == "" {
		errs = append(errs, errors.New("input id column is required"))
	}
	if c.Output.ResultPath == "" {
		errs = append(errs, errors.New("result path is required"))
	}

	switch strings.ToLower(c.Checkpoint.Backend) {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// CheckpointDir returns the directory checkpoint files live in
func (c *Config) CheckpointDir() string {
	if c.Checkpoint.Directory != "" {
		return c.Checkpoint.Directory
	}
	return filepath.Join(c.Output.WorkDir, "checkpoints")
}

// SQLitePath returns the database file used by the sqlite checkpoint backend
func (c *Config) SQLitePath() string {
	if c.Checkpoint.SQLitePath != "" {
		return c.Checkpoint.SQLitePath
	}
	return filepath.Join(c.CheckpointDir(), "checkpoints.db")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["backend"].(string); ok && v != "" {
		c.Social.Backend = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Social.Account = v
	}
	if v, ok := flags["input"].(string); ok && v != "" {
		c.Input.Path = v
	}
	if v, ok := flags["id-column"].(string); ok && v != "" {
		c.Input.IDColumn = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.ResultPath = v
	}
	if v, ok := flags["work-dir"].(string); ok && v != "" {
		c.Output.WorkDir = v
	}
	if v, ok := flags["cooldown"].(time.Duration); ok {
		c.Pipeline.Cooldown = v
	}
	if v, ok := flags["checkpoint-every"].(int); ok && v > 0 {
		c.Pipeline.CheckpointEvery = v
	}
	if v, ok := flags["checkpoint-backend"].(string); ok && v != "" {
		c.Checkpoint.Backend = v
	}
	if v, ok := flags["metrics-addr"].(string); ok {
		c.Metrics.Address = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".repostreach.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
