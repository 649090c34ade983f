// Package config loads the process-wide settings from the environment,
// best-effort reading a .env file first.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of environment-derived settings the bootstrap
// needs to wire the pipeline together.
type Config struct {
	EnginePath     string
	EngineModeFlag string
	DBPath         string
	HTTPAddr       string
	Threshold      float64
	SourceBaseURL  string

	SourceLoginPath    string
	SourceListPath     string
	SourceExportPrefix string
	SourceWelcomeText  string
}

// Load reads a .env file if present (ignoring its absence) and then
// populates Config from the environment, applying defaults for anything
// unset.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		EnginePath:     os.Getenv("ENGINE_PATH"),
		EngineModeFlag: os.Getenv("ENGINE_MODE_FLAG"),
		DBPath:         getenvDefault("DB_PATH", "quiz.db"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		Threshold:      0.08,
		SourceBaseURL:  os.Getenv("SOURCE_BASE_URL"),

		SourceLoginPath:    getenvDefault("SOURCE_LOGIN_PATH", "/login"),
		SourceListPath:     getenvDefault("SOURCE_LIST_PATH", "/bg/matches/{userId}?days={days}"),
		SourceExportPrefix: getenvDefault("SOURCE_EXPORT_PREFIX", "/bg/export/"),
		SourceWelcomeText:  getenvDefault("SOURCE_WELCOME_TEXT", "Welcome"),
	}

	if v := os.Getenv("THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Threshold = f
		}
	}

	return cfg
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
