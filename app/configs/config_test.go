package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearProviderEnv keeps the developer's real keys out of the tests.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "GROQ_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"TASKMATE_LLM_API_KEY", "TASKMATE_LLM_BASE_URL", "TASKMATE_LLM_CHAT_MODEL",
		"TASKMATE_EMBEDDING_PROVIDER", "TASKMATE_EMBEDDING_API_KEY", "TASKMATE_HTTP_PORT",
		"TASKMATE_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN",
	} {
		t.Setenv(key, "")
	}
}

func TestApplyDefaultsFillsEverySection(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)

	if cfg.Agent.Name != "TaskMate" || cfg.Agent.SessionIdleSec != 1800 {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.Dialogue.HistoryLimit != 8 || cfg.Dialogue.ContextWindow != 6 {
		t.Fatalf("unexpected dialogue defaults: %+v", cfg.Dialogue)
	}
	if cfg.Dialogue.TitleWordThreshold != 10 || cfg.Dialogue.TitleMaxChars != 60 {
		t.Fatalf("unexpected title defaults: %+v", cfg.Dialogue)
	}
	if cfg.Search.TopK != 5 || cfg.Search.Threshold != 0.25 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Embedding.Provider != "none" {
		t.Fatalf("unexpected embedding provider: %s", cfg.Embedding.Provider)
	}
	if cfg.Jobs.SessionSweepSec != 300 || cfg.Jobs.EmbedBackfillSec != 600 || cfg.Jobs.EmbedBackfillSize != 25 {
		t.Fatalf("unexpected job defaults: %+v", cfg.Jobs)
	}
	if cfg.CLI.UserID != "local_user" || cfg.HTTP.Port != 8080 {
		t.Fatalf("unexpected surface defaults: cli=%+v http=%+v", cfg.CLI, cfg.HTTP)
	}
}

func TestApplyDefaultsSanitizes(t *testing.T) {
	cfg := Config{
		Embedding: EmbeddingConfig{Provider: " GenAI "},
		Dialogue:  DialogueConfig{HistoryLimit: 4, ContextWindow: 9},
		Search:    SearchConfig{Threshold: 1.5},
		HTTP:      HTTPConfig{Port: 70000},
		Jobs:      JobsConfig{EmbedBackfillSec: -1},
	}
	applyDefaults(&cfg)

	if cfg.Embedding.Provider != "genai" {
		t.Fatalf("provider not normalized: %q", cfg.Embedding.Provider)
	}
	if cfg.Dialogue.ContextWindow != 4 {
		t.Fatalf("context window should not exceed history: %d", cfg.Dialogue.ContextWindow)
	}
	if cfg.Jobs.EmbedBackfillSec != -1 {
		t.Fatalf("disabled job re-enabled: %+v", cfg.Jobs)
	}
	if cfg.Search.Threshold != 0.25 || cfg.HTTP.Port != 8080 {
		t.Fatalf("out of range values kept: %+v %+v", cfg.Search, cfg.HTTP)
	}
}

func TestNewManagerCreatesYAMLFile(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "config", "config.yaml")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "history_limit: 8") {
		t.Fatalf("unexpected yaml:\n%s", data)
	}
	if mgr.Get().Dialogue.HistoryLimit != 8 {
		t.Fatal("defaults not applied")
	}
}

func TestLoadConfigFileJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "c.json")
	yamlPath := filepath.Join(dir, "c.yml")
	if err := os.WriteFile(jsonPath, []byte(`{"search": {"top_k": 3}, "cli": {"user_id": "alice"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("search:\n  top_k: 7\nembedding:\n  provider: openai\n  model: text-embedding-3-small\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(jsonPath)
	if err != nil {
		t.Fatalf("load json failed: %v", err)
	}
	if cfg.Search.TopK != 3 || cfg.CLI.UserID != "alice" || cfg.Dialogue.HistoryLimit != 8 {
		t.Fatalf("unexpected json config: %+v", cfg)
	}

	cfg, err = LoadConfigFile(yamlPath)
	if err != nil {
		t.Fatalf("load yaml failed: %v", err)
	}
	if cfg.Search.TopK != 7 || cfg.Embedding.Provider != "openai" || cfg.Embedding.Model != "text-embedding-3-small" {
		t.Fatalf("unexpected yaml config: %+v", cfg)
	}
}

func TestLoadConfigFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentOverridesAreNotPersisted(t *testing.T) {
	clearProviderEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	t.Setenv("TASKMATE_LLM_CHAT_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TASKMATE_HTTP_PORT", "9090")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg := mgr.Get()
	if cfg.LLM.ChatModel != "gpt-4o-mini" || cfg.LLM.APIKey != "sk-test" || cfg.HTTP.Port != 9090 {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.LLM, cfg.HTTP)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.PollTimeoutSec != 20 {
		t.Fatalf("telegram env not applied: %+v", cfg.Telegram)
	}

	if _, err := mgr.Update(func(c *Config) { c.CLI.UserID = "bob" }); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-test") || strings.Contains(string(data), "123:abc") || !strings.Contains(string(data), `"bob"`) {
		t.Fatalf("unexpected persisted config:\n%s", data)
	}
}

func TestGroqKeySelectsGroqEndpoint(t *testing.T) {
	clearProviderEnv(t)
	mgr, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}
	t.Setenv("GROQ_API_KEY", "gsk-test")

	cfg := mgr.Get()
	if cfg.LLM.APIKey != "gsk-test" || cfg.LLM.BaseURL != groqBaseURL {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
}

func TestPreflight(t *testing.T) {
	cfg := Config{}
	applyDefaults(&cfg)
	cfg.Storage.DataDir = filepath.Join(t.TempDir(), "db")

	report := Preflight("config.yaml", cfg)
	if !report.Passed || len(report.Warnings) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	cfg.Embedding.Provider = "genai"
	cfg.Log.Level = "loud"
	report = Preflight("config.yaml", cfg)
	if report.Passed {
		t.Fatal("expected preflight failure")
	}
	failed := map[string]bool{}
	for _, c := range report.Checks {
		if !c.Passed {
			failed[c.Name] = true
		}
	}
	if !failed["embedding"] || !failed["log_level"] || failed["storage"] {
		t.Fatalf("unexpected failed checks: %v", failed)
	}
}
