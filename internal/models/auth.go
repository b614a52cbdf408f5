package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/secretary/internal/config"
)

// ResolveAPIKey resolves the API key for a provider.
// Resolution order: auth.api_key (literal or ${VAR}) → driver default env.
func ResolveAPIKey(cfg config.ProviderConfig) (string, error) {
	if key := expandRef(cfg.Auth.APIKey); key != "" {
		return key, nil
	}

	driver := strings.ToLower(cfg.Driver)
	envVar, ok := config.DefaultAuthEnv[driver]
	if !ok {
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: %s not set", config.ErrMissingCredential, envVar)
}

func expandRef(v string) string {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
