package config

import (
	"os"
	"path/filepath"
)

// SecretaryPath returns the root directory for secretary data.
// It uses $SECRETARY_PATH if set, otherwise defaults to ~/.secretary.
func SecretaryPath() string {
	if v := os.Getenv("SECRETARY_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".secretary")
	}
	return filepath.Join(home, ".secretary")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(SecretaryPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(SecretaryPath(), ".env")
}

// MemoryPath returns the default location of the persisted memory document.
func MemoryPath() string {
	return filepath.Join(SecretaryPath(), "secretary_memory.json")
}

// HeartbeatPath returns the path of the liveness file written by the running loop.
func HeartbeatPath() string {
	return filepath.Join(SecretaryPath(), "heartbeat.json")
}
