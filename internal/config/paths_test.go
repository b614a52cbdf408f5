package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSecretaryPath_Default(t *testing.T) {
	t.Setenv("SECRETARY_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := SecretaryPath()
	want := filepath.Join(home, ".secretary")
	if got != want {
		t.Errorf("SecretaryPath() = %q, want %q", got, want)
	}
}

func TestSecretaryPath_EnvOverride(t *testing.T) {
	t.Setenv("SECRETARY_PATH", "/tmp/custom-secretary")

	if got := SecretaryPath(); got != "/tmp/custom-secretary" {
		t.Errorf("SecretaryPath() = %q", got)
	}
}

func TestDerivedPaths(t *testing.T) {
	t.Setenv("SECRETARY_PATH", "/tmp/test-secretary")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"config", ConfigPath(), "/tmp/test-secretary/config.jsonc"},
		{"dotenv", DotenvPath(), "/tmp/test-secretary/.env"},
		{"memory", MemoryPath(), "/tmp/test-secretary/secretary_memory.json"},
		{"heartbeat", HeartbeatPath(), "/tmp/test-secretary/heartbeat.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}
