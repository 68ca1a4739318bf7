// Package config loads and validates the kiosk backend configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Media    MediaConfig    `yaml:"media"`
	DB       DBConfig       `yaml:"db"`
	Request  RequestConfig  `yaml:"request"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Poll     PollConfig     `yaml:"poll"`
	Session  SessionConfig  `yaml:"session"`
	Quiz     QuizConfig     `yaml:"quiz"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // e.g. ":8000"
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Path  string `yaml:"path"`  // optional log file, empty = stdout only
}

// MediaConfig holds artifact storage settings.
type MediaConfig struct {
	Root          string `yaml:"root"`            // base dir for uploads/ and result/
	PublicBaseURL string `yaml:"public_base_url"` // prepended to /media URLs, optional
	MaxUploadMB   int    `yaml:"max_upload_mb"`
}

// DBConfig holds sqlite settings for quiz analytics.
type DBConfig struct {
	Path string `yaml:"path"`
}

// RequestConfig holds HTTP client settings for upstream calls.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// PipelineConfig selects and configures the generation stages.
type PipelineConfig struct {
	// Mock switches the whole pipeline to deterministic stand-ins.
	// Read once at startup; changing it requires a restart.
	Mock         bool            `yaml:"mock"`
	StageTimeout Duration        `yaml:"stage_timeout"`
	Gemini       GeminiConfig    `yaml:"gemini"`
	WaveSpeed    WaveSpeedConfig `yaml:"wavespeed"`
	MockStages   MockGenConfig   `yaml:"mock_stages"`
	AssetsDir    string          `yaml:"assets_dir"` // avatar dress images + anthem audio
}

// GeminiConfig holds settings for the image editing stage.
type GeminiConfig struct {
	Model string `yaml:"model"` // e.g. "gemini-2.5-flash-image"
	Key   string `yaml:"key"`
}

// WaveSpeedConfig holds settings for the video synthesis stage.
type WaveSpeedConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Key          string   `yaml:"key"`
	Model        string   `yaml:"model"` // e.g. "wavespeed-ai/wan-2.2/s2v-480p"
	PollInterval Duration `yaml:"poll_interval"`
}

// MockGenConfig holds fixed latencies for the mock stages.
type MockGenConfig struct {
	ImageDelay Duration `yaml:"image_delay"`
	VideoDelay Duration `yaml:"video_delay"`
}

// JobsConfig holds job store retention settings.
type JobsConfig struct {
	Retention     Duration `yaml:"retention"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// PollConfig holds the status poller defaults.
type PollConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// SessionConfig holds visitor session settings.
type SessionConfig struct {
	TTL           Duration `yaml:"ttl"` // inactivity timeout
	SweepInterval Duration `yaml:"sweep_interval"`
}

// QuizConfig holds quiz bank settings.
type QuizConfig struct {
	BankPath      string `yaml:"bank_path"`
	QuestionCount int    `yaml:"question_count"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8000",
		},
		Log: LogConfig{
			Level: "info",
		},
		Media: MediaConfig{
			Root:        "data/media",
			MaxUploadMB: 10,
		},
		DB: DBConfig{
			Path: "data/anthem.db",
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(300 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(8 * time.Second),
			},
		},
		Pipeline: PipelineConfig{
			Mock:         false,
			StageTimeout: Duration(4 * time.Minute),
			Gemini: GeminiConfig{
				Model: "gemini-2.5-flash-image",
			},
			WaveSpeed: WaveSpeedConfig{
				BaseURL:      "https://api.wavespeed.ai",
				Model:        "wavespeed-ai/wan-2.2/s2v-480p",
				PollInterval: Duration(3 * time.Second),
			},
			MockStages: MockGenConfig{
				ImageDelay: Duration(2 * time.Second),
				VideoDelay: Duration(5 * time.Second),
			},
			AssetsDir: "data/avatars",
		},
		Jobs: JobsConfig{
			Retention:     Duration(2 * time.Hour),
			SweepInterval: Duration(10 * time.Minute),
		},
		Poll: PollConfig{
			Interval: Duration(2 * time.Second),
			Timeout:  Duration(180 * time.Second),
		},
		Session: SessionConfig{
			TTL:           Duration(15 * time.Minute),
			SweepInterval: Duration(1 * time.Minute),
		},
		Quiz: QuizConfig{
			BankPath:      "configs/questions.yaml",
			QuestionCount: 10,
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it is created with default values.
// Secrets and the mock toggle may be supplied via the environment
// (GEMINI_API_KEY, WSAI_KEY, MOCK_MODE); environment values are only
// fallbacks, file values win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.Media.MaxUploadMB <= 0 {
		return nil, fmt.Errorf("media.max_upload_mb must be positive, got %d", cfg.Media.MaxUploadMB)
	}

	return cfg, nil
}

// applyEnv fills unset secrets from the environment and honors the
// process-wide MOCK_MODE toggle.
func applyEnv(cfg *Config) {
	if cfg.Pipeline.Gemini.Key == "" {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			cfg.Pipeline.Gemini.Key = key
		}
	}
	if cfg.Pipeline.WaveSpeed.Key == "" {
		if key := os.Getenv("WSAI_KEY"); key != "" {
			cfg.Pipeline.WaveSpeed.Key = key
		}
	}
	if v := os.Getenv("MOCK_MODE"); v != "" {
		cfg.Pipeline.Mock = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" && cfg.Media.PublicBaseURL == "" {
		cfg.Media.PublicBaseURL = strings.TrimRight(v, "/")
	}
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Anthem Kiosk Configuration
# --------------------------
# Duration units: ns, us, ms, s, m, h, d (day), w (week)
# Secrets can be left empty here and supplied via .env:
#   GEMINI_API_KEY, WSAI_KEY, MOCK_MODE, PUBLIC_BASE_URL

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
