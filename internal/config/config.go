package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "PERSONA_COLLECTOR_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	chatGPTAPIKeyEnv  = "CHATGPT_API_KEY"
	chatGPTModelEnv   = "CHATGPT_MODEL"
	youtubeAPIKeyEnv  = "YOUTUBE_API_KEY"
	natsURLEnv        = "NATS_URL"
	mlInferenceEnv    = "ML_INFERENCE_URL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Video modes.
const (
	VideoLive     = "live"
	VideoStub     = "stub"
	VideoDisabled = "disabled"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	HTTP          HTTPConfig         `yaml:"http"`
	Database      DatabaseConfig     `yaml:"database"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Collection    CollectionConfig   `yaml:"collection"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Website       WebsiteConfig      `yaml:"website"`
	Reviews       ReviewsConfig      `yaml:"reviews"`
	Social        SocialConfig       `yaml:"social"`
	Video         VideoConfig        `yaml:"video"`
	ML            MLConfig           `yaml:"ml"`
	Events        EventsConfig       `yaml:"events"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig sets the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig selects the result store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// FetchConfig is the retry and pacing policy for public endpoints.
type FetchConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	BaseBackoff    time.Duration `yaml:"baseBackoff"`
	RetryDelay     time.Duration `yaml:"retryDelay"`
	PerSourceDelay time.Duration `yaml:"perSourceDelay"`
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"userAgent"`
}

// CollectionConfig tunes the orchestrator.
type CollectionConfig struct {
	JobDeadline    time.Duration `yaml:"jobDeadline"`
	Parallel       bool          `yaml:"parallel"`
	MinimumItems   int           `yaml:"minimumItems"`
	ResumeInterval time.Duration `yaml:"resumeInterval"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// WebsiteConfig bounds the website crawl.
type WebsiteConfig struct {
	MaxLinkedPages int `yaml:"maxLinkedPages"`
	MaxPageChars   int `yaml:"maxPageChars"`
}

// ReviewsConfig points at a Judge.me-compatible review API.
type ReviewsConfig struct {
	Endpoint        string `yaml:"endpoint"`
	PerPage         int    `yaml:"perPage"`
	SkipCompetitors bool   `yaml:"skipCompetitors"`
}

// SocialConfig points at a Reddit-compatible JSON API.
type SocialConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Limit   int    `yaml:"limit"`
}

// VideoConfig selects and tunes the video-comment source.
type VideoConfig struct {
	Mode             string `yaml:"mode"`
	Endpoint         string `yaml:"endpoint"`
	APIKey           string `yaml:"apiKey"`
	VideosPerKeyword int    `yaml:"videosPerKeyword"`
	CommentsPerVideo int    `yaml:"commentsPerVideo"`
	EnrichDetails    bool   `yaml:"enrichDetails"`
}

// MLConfig describes the optional remote text classifier.
type MLConfig struct {
	InferenceURL string `yaml:"inferenceUrl"`
	APIKey       string `yaml:"apiKey"`
}

// EventsConfig wires lifecycle events to NATS.
type EventsConfig struct {
	NATSURL string `yaml:"natsUrl"`
	Subject string `yaml:"subject"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
// An empty path falls back to PERSONA_COLLECTOR_CONFIG.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	switch c.Video.Mode {
	case VideoStub, VideoDisabled:
	case VideoLive:
		if c.Video.APIKey == "" {
			return fmt.Errorf("video.mode live requires video.apiKey or %s", youtubeAPIKeyEnv)
		}
	default:
		return fmt.Errorf("unknown video.mode %q", c.Video.Mode)
	}

	if c.Collection.JobDeadline <= 0 {
		return fmt.Errorf("collection.jobDeadline must be positive")
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.Video.APIKey = v
	}

	if v := os.Getenv(natsURLEnv); v != "" {
		c.Events.NATSURL = v
	}

	if v := os.Getenv(mlInferenceEnv); v != "" {
		c.ML.InferenceURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if override.Database.Driver != "" {
		base.Database.Driver = strings.ToLower(override.Database.Driver)
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Fetch.MaxAttempts > 0 {
		base.Fetch.MaxAttempts = override.Fetch.MaxAttempts
	}
	if override.Fetch.BaseBackoff > 0 {
		base.Fetch.BaseBackoff = override.Fetch.BaseBackoff
	}
	if override.Fetch.RetryDelay > 0 {
		base.Fetch.RetryDelay = override.Fetch.RetryDelay
	}
	if override.Fetch.PerSourceDelay > 0 {
		base.Fetch.PerSourceDelay = override.Fetch.PerSourceDelay
	}
	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Collection.JobDeadline > 0 {
		base.Collection.JobDeadline = override.Collection.JobDeadline
	}
	if override.Collection.Parallel {
		base.Collection.Parallel = true
	}
	if override.Collection.MinimumItems > 0 {
		base.Collection.MinimumItems = override.Collection.MinimumItems
	}
	if override.Collection.ResumeInterval > 0 {
		base.Collection.ResumeInterval = override.Collection.ResumeInterval
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}
	if override.ChatGPT.Timeout > 0 {
		base.ChatGPT.Timeout = override.ChatGPT.Timeout
	}

	if override.Website.MaxLinkedPages > 0 {
		base.Website.MaxLinkedPages = override.Website.MaxLinkedPages
	}
	if override.Website.MaxPageChars > 0 {
		base.Website.MaxPageChars = override.Website.MaxPageChars
	}

	if override.Reviews.Endpoint != "" {
		base.Reviews.Endpoint = override.Reviews.Endpoint
	}
	if override.Reviews.PerPage > 0 {
		base.Reviews.PerPage = override.Reviews.PerPage
	}
	if override.Reviews.SkipCompetitors {
		base.Reviews.SkipCompetitors = true
	}

	if override.Social.BaseURL != "" {
		base.Social.BaseURL = override.Social.BaseURL
	}
	if override.Social.Limit > 0 {
		base.Social.Limit = override.Social.Limit
	}

	if override.Video.Mode != "" {
		base.Video.Mode = strings.ToLower(override.Video.Mode)
	}
	if override.Video.Endpoint != "" {
		base.Video.Endpoint = override.Video.Endpoint
	}
	if override.Video.APIKey != "" {
		base.Video.APIKey = override.Video.APIKey
	}
	if override.Video.VideosPerKeyword > 0 {
		base.Video.VideosPerKeyword = override.Video.VideosPerKeyword
	}
	if override.Video.CommentsPerVideo > 0 {
		base.Video.CommentsPerVideo = override.Video.CommentsPerVideo
	}
	if override.Video.EnrichDetails {
		base.Video.EnrichDetails = true
	}

	if override.ML.InferenceURL != "" {
		base.ML.InferenceURL = override.ML.InferenceURL
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}

	if override.Events.NATSURL != "" {
		base.Events.NATSURL = override.Events.NATSURL
	}
	if override.Events.Subject != "" {
		base.Events.Subject = override.Events.Subject
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "file:personacollector.db"},
		Fetch: FetchConfig{
			MaxAttempts:    3,
			BaseBackoff:    time.Second,
			RetryDelay:     250 * time.Millisecond,
			PerSourceDelay: 500 * time.Millisecond,
			Timeout:        15 * time.Second,
			UserAgent:      "PersonaCollector/1.0 (customer research)",
		},
		Collection: CollectionConfig{
			JobDeadline:    10 * time.Minute,
			MinimumItems:   20,
			ResumeInterval: time.Minute,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a customer-research analyst. Answer with a single JSON object and nothing else.",
			Timeout:      90 * time.Second,
		},
		Website: WebsiteConfig{MaxLinkedPages: 3, MaxPageChars: 8000},
		Reviews: ReviewsConfig{Endpoint: "https://judge.me/api/v1/reviews", PerPage: 50},
		Social:  SocialConfig{BaseURL: "https://www.reddit.com", Limit: 50},
		Video: VideoConfig{
			Mode:             VideoDisabled,
			Endpoint:         "https://www.googleapis.com/youtube/v3",
			VideosPerKeyword: 3,
			CommentsPerVideo: 20,
		},
		Events: EventsConfig{Subject: "persona.collection"},
	}
}
