package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Check struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

type Report struct {
	GeneratedAt string   `json:"generated_at"`
	ConfigPath  string   `json:"config_path"`
	Passed      bool     `json:"passed"`
	Checks      []Check  `json:"checks"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Preflight validates the effective config before the service starts. A
// missing completion key is only a warning: the assistant runs in its
// offline fallback mode.
func Preflight(path string, cfg Config) Report {
	report := Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		ConfigPath:  path,
		Passed:      true,
	}
	add := func(name string, err error, okMsg string) {
		c := Check{Name: name, Passed: err == nil, Message: okMsg}
		if err != nil {
			c.Message = err.Error()
			report.Passed = false
		}
		report.Checks = append(report.Checks, c)
	}

	if cfg.LLM.APIKey == "" {
		report.Warnings = append(report.Warnings, "no completion API key: intent, titles and conversation use offline fallbacks")
	}
	add("embedding", checkEmbedding(cfg), fmt.Sprintf("provider %s", cfg.Embedding.Provider))
	add("storage", checkWritableDir(cfg.Storage.DataDir), cfg.Storage.DataDir)
	add("log_level", checkLevel(cfg.Log.Level), cfg.Log.Level)
	return report
}

func checkEmbedding(cfg Config) error {
	switch cfg.Embedding.Provider {
	case "none":
		return nil
	case "genai":
		if cfg.Embedding.APIKey == "" {
			return fmt.Errorf("genai embeddings need embedding.api_key or GEMINI_API_KEY")
		}
	case "openai":
		if cfg.Embedding.APIKey == "" && cfg.LLM.APIKey == "" {
			return fmt.Errorf("openai embeddings need embedding.api_key or llm.api_key")
		}
		if strings.TrimSpace(cfg.Embedding.Model) == "" {
			return fmt.Errorf("openai embeddings need embedding.model")
		}
	}
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	marker := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(marker, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("write %s: %w", dir, err)
	}
	return os.Remove(marker)
}

func checkLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}
