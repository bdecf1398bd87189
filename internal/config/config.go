package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Completion service
	GeminiAPIKey string `env:"CHATIQ_GEMINI_API_KEY"`
	ModelName    string `env:"CHATIQ_MODEL_NAME" envDefault:"gemini-1.5-flash"`
	UseMockLLM   bool   `env:"CHATIQ_USE_MOCK_LLM" envDefault:"false"`

	// Storage: "memory" or "firestore"
	StorageBackend string `env:"CHATIQ_STORAGE_BACKEND" envDefault:"memory"`
	GCPProjectID   string `env:"CHATIQ_GCP_PROJECT"`

	// Identity of the signed-in user this client instance serves.
	// Authentication itself is an external collaborator.
	UserID string `env:"CHATIQ_USER_ID" envDefault:"local-user"`

	// Server
	Port int `env:"CHATIQ_PORT" envDefault:"8080"`

	// Local state (last active session). Empty means the user config dir.
	StateDir string `env:"CHATIQ_STATE_DIR"`

	// Optional YAML policy file overriding persona and keyword lists.
	PolicyFile string `env:"CHATIQ_POLICY_FILE"`

	// Feedback export
	ExportSchedule string        `env:"CHATIQ_EXPORT_SCHEDULE" envDefault:"@weekly"`
	ExportLookback time.Duration `env:"CHATIQ_EXPORT_LOOKBACK" envDefault:"168h"`
	ExportEndpoint string        `env:"CHATIQ_EXPORT_ENDPOINT"`
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("CHATIQ_GCP_PROJECT is required for the firestore storage backend")
	}
	if !cfg.UseMockLLM && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("CHATIQ_GEMINI_API_KEY is required unless CHATIQ_USE_MOCK_LLM is set")
	}

	return cfg, nil
}
