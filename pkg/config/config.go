package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"readaloud/pkg/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	TTS     TTSConfig     `yaml:"tts"`
	Stream  StreamConfig  `yaml:"stream"`
	Request RequestConfig `yaml:"request"`
	Player  PlayerConfig  `yaml:"player"`
	Log     LogConfig     `yaml:"log"`
	DB      DBConfig      `yaml:"db"`
	Server  ServerConfig  `yaml:"server"`
}

// TTSConfig holds settings for reaching the synthesis service.
type TTSConfig struct {
	Endpoint     string   `yaml:"endpoint"`      // explicit override, tried first
	Origin       string   `yaml:"origin"`        // site origin; defaults to the article URL's origin
	UseDevProxy  bool     `yaml:"use_dev_proxy"` // route local dev origins to the dev proxy
	DevProxyPort string   `yaml:"dev_proxy_port"`
	DevPorts     []string `yaml:"dev_ports"`
	Fallbacks    []string `yaml:"fallback_endpoints"`
	Slug         string   `yaml:"slug"`
	ModelLabel   string   `yaml:"model_label"`
	Speed        float64  `yaml:"speed"`
}

// StreamConfig holds incremental playback settings.
type StreamConfig struct {
	ChunkSize        int      `yaml:"chunk_size"`
	MaxPendingChunks int      `yaml:"max_pending_chunks"`
	StallTimeout     Duration `yaml:"stall_timeout"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Timeout   Duration `yaml:"timeout"` // time allowed for response headers
	Retries   int      `yaml:"retries"` // article fetches only; synthesis calls never retry
	UserAgent string   `yaml:"user_agent"`
}

// PlayerConfig holds playback settings.
type PlayerConfig struct {
	DefaultLanguage string             `yaml:"default_language"`
	Volume          float64            `yaml:"volume"`
	Prefetch        bool               `yaml:"prefetch"` // silently prepare the default language at start-up
	SpeechFilter    SpeechFilterConfig `yaml:"speech_filter"`
}

// SpeechFilterConfig holds the optional band-pass applied to narration.
type SpeechFilterConfig struct {
	Enabled    bool    `yaml:"enabled"`
	LowCutoff  float64 `yaml:"low_cutoff"`  // Hz
	HighCutoff float64 `yaml:"high_cutoff"` // Hz
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	TTS      LogSettings `yaml:"tts"`
	Trace    bool        `yaml:"trace"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path             string   `yaml:"path"`
	HistoryRetention Duration `yaml:"history_retention"` // 0 keeps synthesis history forever
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		TTS: TTSConfig{
			UseDevProxy:  false,
			DevProxyPort: "3000",
			DevPorts:     []string{"5173", "5174"},
			Fallbacks:    []string{"/api/blog-tts"},
			ModelLabel:   "auto-select",
			Speed:        1.0,
		},
		Stream: StreamConfig{
			ChunkSize:        16 * 1024,
			MaxPendingChunks: 32,
			StallTimeout:     Duration(20 * time.Second),
		},
		Request: RequestConfig{
			Timeout: Duration(60 * time.Second),
			Retries: 3,
		},
		Player: PlayerConfig{
			DefaultLanguage: "en",
			Volume:          1.0,
			SpeechFilter: SpeechFilterConfig{
				LowCutoff:  120,
				HighCutoff: 8000,
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			TTS: LogSettings{
				Path:  "./logs/tts.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:             "./data/readaloud.db",
			HistoryRetention: Duration(30 * Day),
		},
		Server: ServerConfig{
			Address: "localhost:1921",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Environment variables (optionally from a .env next to the working directory)
// fill settings the file leaves empty; they are never written back.
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
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Missing .env is normal.
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.TTS.Endpoint == "" {
		cfg.TTS.Endpoint = os.Getenv("READALOUD_TTS_ENDPOINT")
	}
	if cfg.TTS.Origin == "" {
		cfg.TTS.Origin = os.Getenv("READALOUD_ORIGIN")
	}
	if v := os.Getenv("READALOUD_USE_DEV_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TTS.UseDevProxy = b
		}
	}
	if v := os.Getenv("READALOUD_DEV_PROXY_PORT"); v != "" {
		cfg.TTS.DevProxyPort = v
	}
	if v := os.Getenv("READALOUD_TTS_MODEL_LABEL"); v != "" {
		cfg.TTS.ModelLabel = v
	}
	if v := os.Getenv("READALOUD_TTS_SPEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TTS.Speed = f
		}
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.TTS.Speed < 0.25 || c.TTS.Speed > 4 {
		errs = append(errs, fmt.Errorf("tts.speed %.2f out of range [0.25, 4]", c.TTS.Speed))
	}
	if _, err := model.ParseLanguage(c.Player.DefaultLanguage); err != nil {
		errs = append(errs, fmt.Errorf("invalid player.default_language '%s': must be one of en, hi, ta", c.Player.DefaultLanguage))
	}
	if c.Stream.ChunkSize <= 0 {
		errs = append(errs, errors.New("stream.chunk_size must be positive"))
	}
	if c.Stream.MaxPendingChunks <= 0 {
		errs = append(errs, errors.New("stream.max_pending_chunks must be positive"))
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		errs = append(errs, fmt.Errorf("player.volume %.2f out of range [0, 1]", c.Player.Volume))
	}
	if f := c.Player.SpeechFilter; f.Enabled && (f.LowCutoff <= 0 || f.HighCutoff <= f.LowCutoff) {
		errs = append(errs, fmt.Errorf("player.speech_filter cutoffs invalid: low %.0f, high %.0f", f.LowCutoff, f.HighCutoff))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# ReadAloud Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	reLang := regexp.MustCompile(`(?m)^(\s+)default_language:`)
	data = reLang.ReplaceAll(data, []byte("${1}# Options: en, hi, ta\n${1}default_language:"))

	reSpeed := regexp.MustCompile(`(?m)^(\s+)speed:`)
	data = reSpeed.ReplaceAll(data, []byte("${1}# Range: 0.25 - 4.0\n${1}speed:"))

	reEndpoint := regexp.MustCompile(`(?m)^(\s+)endpoint:`)
	data = reEndpoint.ReplaceAll(data, []byte("${1}# Tried before the origin and fallback endpoints (env: READALOUD_TTS_ENDPOINT)\n${1}endpoint:"))

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

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
