package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Dialogue  DialogueConfig  `json:"dialogue" yaml:"dialogue"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Jobs      JobsConfig      `json:"jobs" yaml:"jobs"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	CLI       CLIConfig       `json:"cli" yaml:"cli"`
	Telegram  TelegramConfig  `json:"telegram" yaml:"telegram"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

type AgentConfig struct {
	Name           string `json:"name" yaml:"name"`
	SessionIdleSec int    `json:"session_idle_sec" yaml:"session_idle_sec"`
}

// LLMConfig points at an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url"`
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	ChatModel string `json:"chat_model" yaml:"chat_model"`
}

type EmbeddingConfig struct {
	// Provider is "openai", "genai" or "none".
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

type DialogueConfig struct {
	HistoryLimit       int `json:"history_limit" yaml:"history_limit"`
	ContextWindow      int `json:"context_window" yaml:"context_window"`
	TitleWordThreshold int `json:"title_word_threshold" yaml:"title_word_threshold"`
	TitleMaxChars      int `json:"title_max_chars" yaml:"title_max_chars"`
	ListLimit          int `json:"list_limit" yaml:"list_limit"`
}

type SearchConfig struct {
	TopK      int     `json:"top_k" yaml:"top_k"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// JobsConfig drives the background maintenance jobs. A zero interval in the
// file means the default; a negative one disables the job.
type JobsConfig struct {
	SessionSweepSec   int `json:"session_sweep_sec" yaml:"session_sweep_sec"`
	EmbedBackfillSec  int `json:"embed_backfill_sec" yaml:"embed_backfill_sec"`
	EmbedBackfillSize int `json:"embed_backfill_size" yaml:"embed_backfill_size"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

type HTTPConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

type CLIConfig struct {
	UserID string `json:"user_id" yaml:"user_id"`
}

// TelegramConfig enables the bot channel when BotToken is set.
type TelegramConfig struct {
	BotToken       string `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	PollTimeoutSec int    `json:"poll_timeout_sec" yaml:"poll_timeout_sec"`
}

type LogConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	Level      string `json:"level" yaml:"level"`
	ExecLogDir string `json:"exec_log_dir" yaml:"exec_log_dir"`
	AuditDir   string `json:"audit_dir" yaml:"audit_dir"`
	TraceDir   string `json:"trace_dir" yaml:"trace_dir"`
}

// Manager owns the config file. Environment overrides are applied on top of
// the file contents but never written back.
type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
	env  *viper.Viper
}

func DefaultPath() string {
	return filepath.Join("config", "config.yaml")
}

// NewManager loads path, creating it with defaults when missing.
func NewManager(path string) (*Manager, error) {
	mgr := &Manager{
		path: path,
		cfg:  defaultConfig(),
		env:  newEnv(),
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := mgr.save(); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}

func (m *Manager) Path() string {
	return m.path
}

// Get returns the file config with environment overrides applied.
func (m *Manager) Get() Config {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()
	applyEnv(m.env, &cfg)
	applyDefaults(&cfg)
	return cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	err := m.saveLocked()
	m.mu.Unlock()
	if err != nil {
		return Config{}, err
	}
	return m.Get(), nil
}

func (m *Manager) load() error {
	cfg, err := LoadConfigFile(m.path)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isYAML(m.path) {
		data, err = yaml.Marshal(m.cfg)
	} else {
		data, err = json.MarshalIndent(m.cfg, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0600)
}

// LoadConfigFile reads and normalizes a JSON or YAML config file without
// touching the environment.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := defaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// newEnv binds TASKMATE_<SECTION>_<KEY> variables, plus the conventional
// provider key variables, to config keys.
func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TASKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{
		"agent.name",
		"llm.base_url", "llm.chat_model",
		"embedding.provider", "embedding.model", "embedding.base_url",
		"storage.data_dir", "http.port", "http.enabled", "cli.user_id",
		"log.dir", "log.level", "log.exec_log_dir",
	} {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("llm.api_key", "TASKMATE_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.groq_api_key", "GROQ_API_KEY")
	_ = v.BindEnv("embedding.api_key", "TASKMATE_EMBEDDING_API_KEY")
	_ = v.BindEnv("embedding.gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("telegram.bot_token", "TASKMATE_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	return v
}

func applyEnv(v *viper.Viper, cfg *Config) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	setString("agent.name", &cfg.Agent.Name)
	setString("llm.base_url", &cfg.LLM.BaseURL)
	setString("llm.chat_model", &cfg.LLM.ChatModel)
	setString("llm.api_key", &cfg.LLM.APIKey)
	setString("embedding.provider", &cfg.Embedding.Provider)
	setString("embedding.model", &cfg.Embedding.Model)
	setString("embedding.base_url", &cfg.Embedding.BaseURL)
	setString("embedding.api_key", &cfg.Embedding.APIKey)
	setString("storage.data_dir", &cfg.Storage.DataDir)
	setString("cli.user_id", &cfg.CLI.UserID)
	setString("telegram.bot_token", &cfg.Telegram.BotToken)
	setString("log.dir", &cfg.Log.Dir)
	setString("log.level", &cfg.Log.Level)
	setString("log.exec_log_dir", &cfg.Log.ExecLogDir)
	if v.IsSet("http.port") {
		cfg.HTTP.Port = v.GetInt("http.port")
	}
	if v.IsSet("http.enabled") {
		cfg.HTTP.Enabled = v.GetBool("http.enabled")
	}

	// A Groq key alone selects the Groq endpoint.
	if cfg.LLM.APIKey == "" && v.IsSet("llm.groq_api_key") {
		cfg.LLM.APIKey = strings.TrimSpace(v.GetString("llm.groq_api_key"))
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = groqBaseURL
		}
	}
	if cfg.Embedding.Provider == "genai" && cfg.Embedding.APIKey == "" && v.IsSet("embedding.gemini_api_key") {
		cfg.Embedding.APIKey = strings.TrimSpace(v.GetString("embedding.gemini_api_key"))
	}
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{Name: "TaskMate", SessionIdleSec: 1800},
		LLM: LLMConfig{
			ChatModel: "llama-3.1-8b-instant",
		},
		Embedding: EmbeddingConfig{Provider: "none"},
		Dialogue: DialogueConfig{
			HistoryLimit:       8,
			ContextWindow:      6,
			TitleWordThreshold: 10,
			TitleMaxChars:      60,
			ListLimit:          10,
		},
		Search:   SearchConfig{TopK: 5, Threshold: 0.25},
		Jobs:     JobsConfig{SessionSweepSec: 300, EmbedBackfillSec: 600, EmbedBackfillSize: 25},
		Storage:  StorageConfig{DataDir: filepath.Join("output", "db")},
		HTTP:     HTTPConfig{Enabled: true, Port: 8080},
		CLI:      CLIConfig{UserID: "local_user"},
		Telegram: TelegramConfig{PollTimeoutSec: 20},
		Log: LogConfig{
			Dir:        filepath.Join("output", "logs"),
			Level:      "info",
			ExecLogDir: filepath.Join("output", "calls"),
			AuditDir:   filepath.Join("output", "audit"),
			TraceDir:   filepath.Join("output", "trace"),
		},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = def.Agent.Name
	}
	if cfg.Agent.SessionIdleSec <= 0 {
		cfg.Agent.SessionIdleSec = def.Agent.SessionIdleSec
	}
	if strings.TrimSpace(cfg.LLM.ChatModel) == "" {
		cfg.LLM.ChatModel = def.LLM.ChatModel
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider)) {
	case "openai", "genai":
		cfg.Embedding.Provider = strings.ToLower(strings.TrimSpace(cfg.Embedding.Provider))
	default:
		cfg.Embedding.Provider = "none"
	}
	if cfg.Dialogue.HistoryLimit <= 0 {
		cfg.Dialogue.HistoryLimit = def.Dialogue.HistoryLimit
	}
	if cfg.Dialogue.ContextWindow <= 0 || cfg.Dialogue.ContextWindow > cfg.Dialogue.HistoryLimit {
		cfg.Dialogue.ContextWindow = min(def.Dialogue.ContextWindow, cfg.Dialogue.HistoryLimit)
	}
	if cfg.Dialogue.TitleWordThreshold <= 0 {
		cfg.Dialogue.TitleWordThreshold = def.Dialogue.TitleWordThreshold
	}
	if cfg.Dialogue.TitleMaxChars <= 0 {
		cfg.Dialogue.TitleMaxChars = def.Dialogue.TitleMaxChars
	}
	if cfg.Dialogue.ListLimit <= 0 {
		cfg.Dialogue.ListLimit = def.Dialogue.ListLimit
	}
	if cfg.Search.TopK <= 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Search.Threshold <= 0 || cfg.Search.Threshold > 1 {
		cfg.Search.Threshold = def.Search.Threshold
	}
	if cfg.Jobs.SessionSweepSec == 0 {
		cfg.Jobs.SessionSweepSec = def.Jobs.SessionSweepSec
	}
	if cfg.Jobs.EmbedBackfillSec == 0 {
		cfg.Jobs.EmbedBackfillSec = def.Jobs.EmbedBackfillSec
	}
	if cfg.Jobs.EmbedBackfillSize <= 0 {
		cfg.Jobs.EmbedBackfillSize = def.Jobs.EmbedBackfillSize
	}
	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		cfg.HTTP.Port = def.HTTP.Port
	}
	if strings.TrimSpace(cfg.CLI.UserID) == "" {
		cfg.CLI.UserID = def.CLI.UserID
	}
	if cfg.Telegram.PollTimeoutSec <= 0 {
		cfg.Telegram.PollTimeoutSec = def.Telegram.PollTimeoutSec
	}
	if strings.TrimSpace(cfg.Log.Dir) == "" {
		cfg.Log.Dir = def.Log.Dir
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = def.Log.Level
	}
}
