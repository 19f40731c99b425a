package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		env           map[string]string
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T, string)
		expectedError bool
	}{
		{
			name: "NewFile_Defaults",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.TTS.ModelLabel != "auto-select" {
					t.Errorf("expected default model label 'auto-select', got '%s'", cfg.TTS.ModelLabel)
				}
				if cfg.Stream.StallTimeout.Std() != 20*time.Second {
					t.Errorf("expected stall timeout 20s, got %v", cfg.Stream.StallTimeout.Std())
				}
				if len(cfg.TTS.Fallbacks) != 1 || cfg.TTS.Fallbacks[0] != "/api/blog-tts" {
					t.Errorf("unexpected fallbacks %v", cfg.TTS.Fallbacks)
				}
			},
			checkFile: func(t *testing.T, path string) {
				content, err := os.ReadFile(path)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "default_language: en") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: en, hi, ta") {
					t.Error("config file missing option comment")
				}
			},
		},
		{
			name:    "ExistingFile_Override",
			content: "tts:\n  speed: 1.5\n  slug: hello-world\nplayer:\n  default_language: ta\nstream:\n  stall_timeout: 5s\n",
			validate: func(t *testing.T, cfg *Config) {
				if cfg.TTS.Speed != 1.5 {
					t.Errorf("expected speed 1.5, got %v", cfg.TTS.Speed)
				}
				if cfg.Player.DefaultLanguage != "ta" {
					t.Errorf("expected default language ta, got %s", cfg.Player.DefaultLanguage)
				}
				if cfg.Stream.StallTimeout.Std() != 5*time.Second {
					t.Errorf("expected stall timeout 5s, got %v", cfg.Stream.StallTimeout.Std())
				}
				if cfg.Stream.ChunkSize != 16*1024 {
					t.Errorf("defaults should fill missing fields, chunk size %d", cfg.Stream.ChunkSize)
				}
			},
		},
		{
			name:    "Env_Fallback",
			content: "tts:\n  slug: x\n",
			env: map[string]string{
				"READALOUD_TTS_ENDPOINT":  "https://tts.example.com/api/blog-tts",
				"READALOUD_USE_DEV_PROXY": "false",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.TTS.Endpoint != "https://tts.example.com/api/blog-tts" {
					t.Errorf("env endpoint not applied: %q", cfg.TTS.Endpoint)
				}
				if cfg.TTS.UseDevProxy {
					t.Error("env dev proxy flag not applied")
				}
			},
		},
		{
			name:          "Invalid_Language",
			content:       "player:\n  default_language: fr\n",
			expectedError: true,
		},
		{
			name:          "Invalid_Speed",
			content:       "tts:\n  speed: 9\n",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "configs", "readaloud.yaml")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.content != "" {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			cfg, err := Load(path)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if tt.expectedError {
				return
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t, path)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "readaloud.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("second GenerateDefault failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "custom: true\n" {
		t.Error("GenerateDefault overwrote an existing file")
	}
}
