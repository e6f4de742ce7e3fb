// Package config loads daemon configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for chunkd.
type Config struct {
	Port   string
	DBPath string

	// Model is the tokenizer model identifier. Budgeting is only meaningful
	// when it matches the tokenization of the consuming client.
	Model string

	// Per-role response token budgets. Kept a fixed headroom below the
	// protocol's hard response ceiling.
	AnalystTokenBudget   int
	DeveloperTokenBudget int

	SessionTTL time.Duration

	// APIKey protects the HTTP surface. Empty disables auth (development).
	APIKey string
}

// Load reads environment variables and returns a Config.
// Uses sensible defaults for optional fields.
func Load() *Config {
	return &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "chunkd.db"),
		Model:  getEnv("TOKENIZER_MODEL", "gpt-4"),

		AnalystTokenBudget:   getEnvInt("ANALYST_TOKEN_BUDGET", 6000),
		DeveloperTokenBudget: getEnvInt("DEVELOPER_TOKEN_BUDGET", 9000),

		SessionTTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", 30)) * time.Minute,

		APIKey: os.Getenv("API_KEY"),
	}
}

// BudgetFor returns the response token budget for a role string.
// Anything other than "developer" gets the analyst budget.
func (c *Config) BudgetFor(role string) int {
	if role == "developer" {
		return c.DeveloperTokenBudget
	}
	return c.AnalystTokenBudget
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
