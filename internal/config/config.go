package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Fetch     FetchConfig     `yaml:"fetch" envconfig:"FETCH"`
	Analysis  AnalysisConfig  `yaml:"analysis" envconfig:"ANALYSIS"`
	Sectors   []SectorConfig  `yaml:"sectors"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains request rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"` // console, file, both
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ReportDir string `yaml:"report_dir" envconfig:"REPORT_DIR"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains progress hub configuration.
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// FetchConfig controls the data-acquisition clients.
type FetchConfig struct {
	CafefBaseURL   string        `yaml:"cafef_base_url" envconfig:"CAFEF_BASE_URL"`
	SmoneyBaseURL  string        `yaml:"smoney_base_url" envconfig:"SMONEY_BASE_URL"`
	PageSize       int           `yaml:"page_size" envconfig:"PAGE_SIZE"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	RatePerSecond  float64       `yaml:"rate_per_second" envconfig:"RATE_PER_SECOND"`
	MaxRetries     int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age" envconfig:"SNAPSHOT_MAX_AGE"`
}

// AnalysisConfig carries the research parameters consumed by the analysis
// package. Values map 1:1 onto analysis.Params; validation happens here so a
// bad configuration fails at startup rather than mid-pipeline.
type AnalysisConfig struct {
	ADVWindow         int     `yaml:"adv_window" envconfig:"ADV_WINDOW" validate:"gt=1"`
	ZScoreWindow      int     `yaml:"zscore_window" envconfig:"ZSCORE_WINDOW" validate:"gt=1"`
	PercentileWindow  int     `yaml:"percentile_window" envconfig:"PERCENTILE_WINDOW" validate:"gt=1"`
	Horizons          []int   `yaml:"horizons" envconfig:"HORIZONS" validate:"min=1,dive,gt=0"`
	BucketCount       int     `yaml:"bucket_count" envconfig:"BUCKET_COUNT" validate:"oneof=3 5 10"`
	GrangerLag        int     `yaml:"granger_lag" envconfig:"GRANGER_LAG" validate:"gt=0"`
	SignificanceLevel float64 `yaml:"significance_level" envconfig:"SIGNIFICANCE_LEVEL" validate:"gt=0,lt=1"`
	MinSampleSize     int     `yaml:"min_sample_size" envconfig:"MIN_SAMPLE_SIZE" validate:"gt=1"`
}

// SectorConfig defines one research universe.
type SectorConfig struct {
	Name    string   `yaml:"name" validate:"required"`
	Tickers []string `yaml:"tickers" validate:"min=1,dive,required"`
}

// Default returns the built-in configuration. YAML and environment values
// overlay these, never replace them wholesale.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/vnflow.log",
		},
		Paths: PathsConfig{
			DataDir:   "data",
			ReportDir: "reports",
			LogsDir:   "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Fetch: FetchConfig{
			CafefBaseURL:   "https://msh-appdata.cafef.vn/rest-api",
			SmoneyBaseURL:  "https://smoney.com.vn",
			PageSize:       2000,
			RequestTimeout: 30 * time.Second,
			RatePerSecond:  2,
			MaxRetries:     3,
			SnapshotMaxAge: time.Hour,
		},
		Analysis: AnalysisConfig{
			ADVWindow:         20,
			ZScoreWindow:      252,
			PercentileWindow:  756,
			Horizons:          []int{1, 3, 5, 10},
			BucketCount:       5,
			GrangerLag:        5,
			SignificanceLevel: 0.05,
			MinSampleSize:     30,
		},
		Sectors: []SectorConfig{
			{Name: "steel", Tickers: []string{"HPG", "HSG", "NKG"}},
			{Name: "banking", Tickers: []string{"VCB", "BID", "CTG", "TCB", "MBB", "ACB", "VPB", "STB"}},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if present,
// then VNFLOW_* environment variables, then validation.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
			}
		}
	}

	if err := envconfig.Process("VNFLOW", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for invalid parameter combinations.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Analysis); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	for _, s := range c.Sectors {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("sector %q: %w", s.Name, err)
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch: invalid page size %d", c.Fetch.PageSize)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.RPS <= 0 || rl.Burst <= 0) {
		return fmt.Errorf("server: invalid rate limit (rps=%g, burst=%d)", rl.RPS, rl.Burst)
	}
	return nil
}

// Sector returns the ticker basket for the named sector.
func (c *Config) Sector(name string) (SectorConfig, bool) {
	for _, s := range c.Sectors {
		if s.Name == name {
			return s, true
		}
	}
	return SectorConfig{}, false
}
