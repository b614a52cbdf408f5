package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/secretary/internal/config"
)

// NewWakeCommand returns the onboarding subcommand.
func NewWakeCommand() *cli.Command {
	return &cli.Command{
		Name:   "wake",
		Usage:  "Initialize the secretary home directory (~/.secretary)",
		Action: runWake,
	}
}

func runWake(_ context.Context, _ *cli.Command) error {
	root := config.SecretaryPath()
	created := false

	if _, err := os.Stat(root); err != nil {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", root, err)
		}
		fmt.Printf("  Created %s\n", root)
		created = true
	}

	files := []struct {
		path    string
		content string
		mode    os.FileMode
	}{
		{config.ConfigPath(), defaultConfig, 0o644},
		{config.DotenvPath(), defaultDotenv, 0o600},
	}
	for _, f := range files {
		if _, err := os.Stat(f.path); err == nil {
			continue
		}
		if err := os.WriteFile(f.path, []byte(f.content), f.mode); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  Created %s\n", f.path)
		created = true
	}

	if !created {
		fmt.Printf("Already set up: %s is complete. Nothing to do.\n", root)
		return nil
	}

	fmt.Println(wakeMessage(root))
	return nil
}

const defaultConfig = `{
	// Secretary configuration. Environment variables override these values.

	"telegram": {
		"token": "${{ .Env.TELEGRAM_BOT_TOKEN }}",
		// Chats notified by the autonomous loop. Non-empty starts the loop at boot.
		"admin_chat_ids": [],
		"message_timeout": "30s"
	},

	"models": {
		"default": "openai",
		"providers": {
			"openai": {
				"driver": "openai",
				"model": "gpt-4o-mini",
				"auth": {
					"api_key": "${{ .Env.OPENAI_API_KEY }}"
				}
			}

			// "claude": {
			// 	"driver": "anthropic",
			// 	"model": "claude-sonnet-4-20250514",
			// 	"max_tokens": 4096
			// },
			// "local": {
			// 	"driver": "ollama",
			// 	"model": "llama3.1:8b",
			// 	"base_url": "http://localhost:11434"
			// }
		}
	},

	"secretary": {
		"followup_hours": 24,
		"enable_routines": true,
		"enable_learning": true,
		"thinking_interval": "3m"
	},

	"tools": {
		"weather": {
			// Serper is used when SERPER_API_KEY is set.
			// Otherwise: "duckduckgo" (default), "google" or "bing".
			"search_provider": "duckduckgo"
		},
		"google": {
			"credentials_file": "credentials.json",
			"token_file": "token.json",
			"time_zone": "America/New_York"
		}
	},

	"gateway": {
		"enabled": false,
		"host": "127.0.0.1",
		"port": 18430
	}
}
`

const defaultDotenv = `# Secretary environment variables
# This file is loaded automatically. Existing env vars are never overridden.

# TELEGRAM_BOT_TOKEN=123456:ABC...
# OPENAI_API_KEY=sk-...
# SERPER_API_KEY=...
# FOLLOWUP_HOURS=24
# ENABLE_ROUTINES=true
# ENABLE_LEARNING=true
# THINKING_INTERVAL_MINUTES=3
`

func wakeMessage(root string) string {
	return fmt.Sprintf(`
  Good morning. Your secretary is ready to start.

  Home set up at %s

  Next steps:
    1. Put your Telegram bot token and model API key in %s/.env
    2. Place your Google OAuth credentials.json next to where you run the bot
    3. Adjust %s/config.jsonc if needed
    4. Run: secretary run, then send /start to your bot
`, root, root, root)
}
