package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MaxConcurrentUnits is the hard ceiling on summarization workers running at
// once. The language service is assumed to have a parallel-request limit the
// operator sizes unit_size against, so exceeding this is a configuration
// error, not something the pool works around.
const MaxConcurrentUnits = 16

// Config holds all application configuration.
type Config struct {
	Feeds     Feeds     `mapstructure:"feeds"`
	Interests Interests `mapstructure:"interests"`
	AI        AI        `mapstructure:"ai"`
	Pipeline  Pipeline  `mapstructure:"pipeline"`
	Output    Output    `mapstructure:"output"`
}

// Feeds holds feed ingestion configuration.
type Feeds struct {
	URLs      []string `mapstructure:"urls"`
	UserAgent string   `mapstructure:"user_agent"`
	Timeout   string   `mapstructure:"timeout"`
}

// Interests holds the user interest profile.
type Interests struct {
	Tags []string `mapstructure:"tags"`
}

// AI holds language-service configuration.
type AI struct {
	APIKey       string  `mapstructure:"api_key"`
	FilterModel  string  `mapstructure:"filter_model"`
	SummaryModel string  `mapstructure:"summary_model"`
	Language     string  `mapstructure:"language"`
	Timeout      string  `mapstructure:"timeout"`
	Temperature  float32 `mapstructure:"temperature"`
}

// Pipeline holds the classification and summarization tuning knobs.
type Pipeline struct {
	BatchSize      int      `mapstructure:"batch_size"`       // Titles per classification request
	UnitSize       int      `mapstructure:"unit_size"`        // Items per summarization work unit
	MaxItems       int      `mapstructure:"max_items"`        // Cap on relevant items per run (0 = unlimited)
	ShortThreshold int      `mapstructure:"short_threshold"`  // Bodies shorter than this skip the service
	StubMarkers    []string `mapstructure:"stub_markers"`     // Body substrings that mean "fetch the full article"
	MaxAttempts    int      `mapstructure:"max_attempts"`     // Service attempts per item before degrading
	BackoffMin     string   `mapstructure:"backoff_min"`      // Lower bound of the rate-limit backoff window
	BackoffMax     string   `mapstructure:"backoff_max"`      // Upper bound of the rate-limit backoff window
	FallbackLength int      `mapstructure:"fallback_length"`  // Prefix length for truncated-content fallbacks
	RunDeadline    string   `mapstructure:"run_deadline"`     // Overall deadline for one run (0 = none)
}

// Output holds report and data-directory configuration.
type Output struct {
	ReportsDir string `mapstructure:"reports_dir"`
	DataDir    string `mapstructure:"data_dir"`
}

// Load reads configuration from the given file (or skim.yaml in the working
// directory and $HOME), layered with SKIM_* environment variables and a .env
// file when present.
func Load(configFile string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName("skim")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("SKIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key traditionally lives in GEMINI_API_KEY rather than a
	// prefixed variable.
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY"} {
		if val := os.Getenv(key); val != "" {
			v.Set("ai.api_key", val)
			break
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feeds.user_agent", "Skim Feed Reader/1.0")
	v.SetDefault("feeds.timeout", "30s")

	v.SetDefault("ai.filter_model", "gemini-flash-lite-latest")
	v.SetDefault("ai.summary_model", "gemini-flash-lite-latest")
	v.SetDefault("ai.language", "English")
	v.SetDefault("ai.timeout", "60s")
	v.SetDefault("ai.temperature", 0.7)

	v.SetDefault("pipeline.batch_size", 20)
	v.SetDefault("pipeline.unit_size", 8)
	v.SetDefault("pipeline.max_items", 100)
	v.SetDefault("pipeline.short_threshold", 60)
	v.SetDefault("pipeline.stub_markers", []string{"Read more", "查看全文"})
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_min", "5s")
	v.SetDefault("pipeline.backoff_max", "10s")
	v.SetDefault("pipeline.fallback_length", 200)
	v.SetDefault("pipeline.run_deadline", "0")

	v.SetDefault("output.reports_dir", "reports")
	v.SetDefault("output.data_dir", ".skim-cache")
}

// Validate checks the configuration for values the pipeline cannot run with.
func Validate(c *Config) error {
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.UnitSize <= 0 {
		return fmt.Errorf("pipeline.unit_size must be positive, got %d", c.Pipeline.UnitSize)
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.max_attempts must be positive, got %d", c.Pipeline.MaxAttempts)
	}
	if c.Pipeline.FallbackLength <= 0 {
		return fmt.Errorf("pipeline.fallback_length must be positive, got %d", c.Pipeline.FallbackLength)
	}
	min, err := c.Pipeline.BackoffMinDuration()
	if err != nil {
		return fmt.Errorf("pipeline.backoff_min: %w", err)
	}
	max, err := c.Pipeline.BackoffMaxDuration()
	if err != nil {
		return fmt.Errorf("pipeline.backoff_max: %w", err)
	}
	if max < min {
		return fmt.Errorf("pipeline.backoff_max (%s) is below pipeline.backoff_min (%s)", max, min)
	}
	if _, err := c.AI.TimeoutDuration(); err != nil {
		return fmt.Errorf("ai.timeout: %w", err)
	}
	if _, err := c.Feeds.TimeoutDuration(); err != nil {
		return fmt.Errorf("feeds.timeout: %w", err)
	}
	if _, err := c.Pipeline.RunDeadlineDuration(); err != nil {
		return fmt.Errorf("pipeline.run_deadline: %w", err)
	}
	return nil
}

// TimeoutDuration returns the feed fetch timeout as a duration.
func (f Feeds) TimeoutDuration() (time.Duration, error) {
	return parseDuration(f.Timeout, 30*time.Second)
}

// TimeoutDuration returns the per-call language-service timeout as a duration.
func (a AI) TimeoutDuration() (time.Duration, error) {
	return parseDuration(a.Timeout, 60*time.Second)
}

// BackoffMinDuration returns the lower bound of the backoff window.
func (p Pipeline) BackoffMinDuration() (time.Duration, error) {
	return parseDuration(p.BackoffMin, 5*time.Second)
}

// BackoffMaxDuration returns the upper bound of the backoff window.
func (p Pipeline) BackoffMaxDuration() (time.Duration, error) {
	return parseDuration(p.BackoffMax, 10*time.Second)
}

// RunDeadlineDuration returns the overall run deadline; zero means none.
func (p Pipeline) RunDeadlineDuration() (time.Duration, error) {
	if p.RunDeadline == "" || p.RunDeadline == "0" {
		return 0, nil
	}
	return parseDuration(p.RunDeadline, 0)
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}
