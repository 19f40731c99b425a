package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"20s", 20 * time.Second, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"250ms", 250 * time.Millisecond, false},
		{"", 0, false},
		{"invalid", 0, true},
		{"1dx", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestDurationYAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: 1d\nb: 15\n"), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.Std() != Day {
		t.Errorf("a = %v, want %v", v.A.Std(), Day)
	}
	if v.B.Std() != 15*time.Second {
		t.Errorf("b = %v, want 15s", v.B.Std())
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "a: 24h0m0s\nb: 15s\n" {
		t.Errorf("marshal = %q", out)
	}
}
