package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt is the instruction sent to the summarization
// provider ahead of the transcript.
const DefaultSystemPrompt = `You are a Telegram conversation summarizer. Your task is to create a concise, accurate, and well-structured summary of the conversation provided. Follow these guidelines:
1. Identify the main participants and their key points
2. Highlight important topics discussed in the conversation
3. Note any decisions, actions, or conclusions reached
4. Maintain a neutral tone and avoid adding information not present in the original conversation
5. Group related points together thematically
6. Present the summary in clear paragraphs with proper formatting
7. If the conversation contains questions that were answered, include both the questions and their answers
8. Format the summary to be easily readable in Telegram`

// Config holds the bot configuration.
type Config struct {
	TelegramAPIBase string
	PollTimeout     int
	SleepSeconds    int
	DropPending     bool

	Capacity      int
	DefaultWindow int
	TrackTopics   bool

	SystemPrompt      string
	OpenAIAPIKey      string
	OpenAIChatCompURL string
	OpenAIModel       string

	DBPath  string
	OpsAddr string

	SummarizeRPS   float64
	SummarizeBurst int

	Gateway  string
	Provider string

	DummyPollScript    string
	DummySendScript    string
	DummySummaryScript string
}

// fileConfig is the optional YAML configuration file. It carries only
// non-secret settings; environment variables always win.
type fileConfig struct {
	Capacity       int     `yaml:"capacity"`
	DefaultWindow  int     `yaml:"default_window"`
	TrackTopics    *bool   `yaml:"track_topics"`
	SystemPrompt   string  `yaml:"system_prompt"`
	Model          string  `yaml:"model"`
	DBPath         string  `yaml:"db_path"`
	OpsAddr        string  `yaml:"ops_addr"`
	SummarizeRPS   float64 `yaml:"summarize_rps"`
	SummarizeBurst int     `yaml:"summarize_burst"`
}

// Load reads configuration: defaults, then the optional YAML file named
// by RECAP_CONFIG, then environment variables.
func Load() (Config, error) {
	cfg := Config{
		PollTimeout:    30,
		SleepSeconds:   1,
		DropPending:    true,
		Capacity:       1000,
		DefaultWindow:  100,
		TrackTopics:    true,
		SystemPrompt:   DefaultSystemPrompt,
		OpenAIModel:    "gpt-4o-mini",
		SummarizeRPS:   0.2,
		SummarizeBurst: 2,
		Gateway:        "telegram",
		Provider:       "openai",
	}

	if path := os.Getenv("RECAP_CONFIG"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Capacity <= 0 {
		return Config{}, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.DefaultWindow < 1 || cfg.DefaultWindow > cfg.Capacity {
		return Config{}, fmt.Errorf("default window must be within 1..%d, got %d", cfg.Capacity, cfg.DefaultWindow)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if fc.Capacity > 0 {
		cfg.Capacity = fc.Capacity
	}
	if fc.DefaultWindow > 0 {
		cfg.DefaultWindow = fc.DefaultWindow
	}
	if fc.TrackTopics != nil {
		cfg.TrackTopics = *fc.TrackTopics
	}
	if fc.SystemPrompt != "" {
		cfg.SystemPrompt = fc.SystemPrompt
	}
	if fc.Model != "" {
		cfg.OpenAIModel = fc.Model
	}
	if fc.DBPath != "" {
		cfg.DBPath = fc.DBPath
	}
	if fc.OpsAddr != "" {
		cfg.OpsAddr = fc.OpsAddr
	}
	if fc.SummarizeRPS > 0 {
		cfg.SummarizeRPS = fc.SummarizeRPS
	}
	if fc.SummarizeBurst > 0 {
		cfg.SummarizeBurst = fc.SummarizeBurst
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Gateway = envOrDefault("RECAP_GATEWAY", cfg.Gateway)
	cfg.Provider = envOrDefault("RECAP_PROVIDER", cfg.Provider)

	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.Gateway == "telegram" && telegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment when RECAP_GATEWAY=telegram")
	}
	if telegramToken != "" {
		cfg.TelegramAPIBase = fmt.Sprintf("https://api.telegram.org/bot%s", telegramToken)
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.Provider == "openai" && cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in environment when RECAP_PROVIDER=openai")
	}

	cfg.PollTimeout = envIntOrDefault("TG_TIMEOUT", cfg.PollTimeout)
	cfg.SleepSeconds = envIntOrDefault("TG_SLEEP_SECONDS", cfg.SleepSeconds)
	cfg.DropPending = envBoolOrDefault("TG_DROP_PENDING", cfg.DropPending)
	cfg.Capacity = envIntOrDefault("RECAP_CAPACITY", cfg.Capacity)
	cfg.DefaultWindow = envIntOrDefault("RECAP_DEFAULT_WINDOW", cfg.DefaultWindow)
	cfg.TrackTopics = envBoolOrDefault("RECAP_TRACK_TOPICS", cfg.TrackTopics)
	cfg.SystemPrompt = envOrDefault("RECAP_SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.OpenAIChatCompURL = envOrDefault("OPENAI_CHAT_COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions")
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.DBPath = envOrDefault("RECAP_DB_PATH", cfg.DBPath)
	cfg.OpsAddr = envOrDefault("RECAP_OPS_ADDR", cfg.OpsAddr)
	cfg.SummarizeRPS = envFloatOrDefault("RECAP_SUMMARIZE_RPS", cfg.SummarizeRPS)
	cfg.SummarizeBurst = envIntOrDefault("RECAP_SUMMARIZE_BURST", cfg.SummarizeBurst)
	cfg.DummyPollScript = envOrDefault("RECAP_DUMMY_POLL_SCRIPT", "ok")
	cfg.DummySendScript = envOrDefault("RECAP_DUMMY_SEND_SCRIPT", "ok")
	cfg.DummySummaryScript = envOrDefault("RECAP_DUMMY_SUMMARY_SCRIPT", "ok")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
