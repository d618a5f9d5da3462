package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FeedSentinel/internal/domain"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "FEEDSENTINEL_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	chatGPTAPIKeyEnv    = "CHATGPT_API_KEY"
	chatGPTModelEnv     = "CHATGPT_MODEL"
	transformerKeyEnv   = "TRANSFORMER_API_KEY"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	providerChatGPT     = "chatgpt"
	providerService     = "service"
	defaultRegistryPath = "sources.yaml"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Registry      RegistryConfig     `yaml:"registry"`
	Probe         ProbeConfig        `yaml:"probe"`
	Recovery      RecoveryConfig     `yaml:"recovery"`
	Ingest        IngestConfig       `yaml:"ingest"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Transformer   TransformerConfig  `yaml:"transformer"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Categories    []CategoryConfig   `yaml:"categories"`
	FallbackPool  []FallbackConfig   `yaml:"fallbackPool"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig defines when the recurring jobs run.
type SchedulerConfig struct {
	RecoveryCron string         `yaml:"recoveryCron"`
	IngestCron   string         `yaml:"ingestCron"`
	Timezone     string         `yaml:"timezone"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// RegistryConfig points at the source catalog file.
type RegistryConfig struct {
	Path        string        `yaml:"path"`
	LockTimeout time.Duration `yaml:"lockTimeout"`
}

// ProbeConfig tunes health checks.
type ProbeConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"userAgent"`
	ReliableItemCount int           `yaml:"reliableItemCount"`
	HostInterval      time.Duration `yaml:"hostInterval"`
}

// RecoveryConfig tunes the recovery run.
type RecoveryConfig struct {
	MinCoverage    int           `yaml:"minCoverage"`
	DiscoveryBatch int           `yaml:"discoveryBatch"`
	FallbackDelay  time.Duration `yaml:"fallbackDelay"`
	DiscoveryDelay time.Duration `yaml:"discoveryDelay"`
	FetchFrequency time.Duration `yaml:"fetchFrequency"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	PerSourceWindow      int           `yaml:"perSourceWindow"`
	MaxItems             int           `yaml:"maxItems"`
	ItemDelay            time.Duration `yaml:"itemDelay"`
	MaxConcurrentFetches int           `yaml:"maxConcurrentFetches"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  uint          `yaml:"maxAttempts"`
}

// Configured reports whether the generator can be called.
func (c ChatGPTConfig) Configured() bool {
	return c.APIKey != "" && c.Endpoint != "" && c.Model != ""
}

// TransformerConfig selects the content rewriting backend.
type TransformerConfig struct {
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
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

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig holds the listen address of the metrics endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// CategoryConfig is the editorial profile of a category.
type CategoryConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Audience    string `yaml:"audience"`
	Voice       string `yaml:"voice"`
}

// FallbackConfig is one entry of the backup source pool.
type FallbackConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`
}

// Load reads the optional .env file, the YAML configuration at path (or FEEDSENTINEL_CONFIG)
// over the compiled defaults, and applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(transformerKeyEnv); v != "" {
		c.Transformer.APIKey = v
	}
}

// applyDefaults fills zero values a partial YAML file may have left behind.
func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.Registry.Path == "" {
		c.Registry.Path = def.Registry.Path
	}
	if c.Registry.LockTimeout <= 0 {
		c.Registry.LockTimeout = def.Registry.LockTimeout
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = def.Probe.Timeout
	}
	if c.Probe.ReliableItemCount <= 0 {
		c.Probe.ReliableItemCount = domain.DefaultReliableThreshold
	}
	if c.Recovery.MinCoverage <= 0 {
		c.Recovery.MinCoverage = domain.DefaultReliableThreshold
	}
	if c.Recovery.DiscoveryBatch <= 0 {
		c.Recovery.DiscoveryBatch = def.Recovery.DiscoveryBatch
	}
	if c.Recovery.FetchFrequency <= 0 {
		c.Recovery.FetchFrequency = def.Recovery.FetchFrequency
	}
	if c.Ingest.PerSourceWindow <= 0 {
		c.Ingest.PerSourceWindow = def.Ingest.PerSourceWindow
	}
	if c.Ingest.MaxItems <= 0 {
		c.Ingest.MaxItems = def.Ingest.MaxItems
	}
	if c.Ingest.MaxConcurrentFetches <= 0 {
		c.Ingest.MaxConcurrentFetches = def.Ingest.MaxConcurrentFetches
	}
	if c.ChatGPT.MaxAttempts == 0 {
		c.ChatGPT.MaxAttempts = def.ChatGPT.MaxAttempts
	}
	if c.Transformer.Provider == "" {
		c.Transformer.Provider = providerChatGPT
	}
	if len(c.Categories) == 0 {
		c.Categories = def.Categories
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Validate checks values that make any command unusable.
func (c Config) Validate() error {
	var errs []error
	for _, cat := range c.Categories {
		if _, err := domain.ParseCategory(cat.Name); err != nil {
			errs = append(errs, fmt.Errorf("categories: %w", err))
		}
	}
	if _, err := c.FallbackCandidates(); err != nil {
		errs = append(errs, err)
	}
	switch c.Transformer.Provider {
	case providerChatGPT, providerService:
	default:
		errs = append(errs, fmt.Errorf("transformer.provider: unsupported value %q", c.Transformer.Provider))
	}
	return errors.Join(errs...)
}

// RequireDiscovery reports everything missing for a recovery run that may ask the generator.
func (c Config) RequireDiscovery() error {
	var errs []error
	if c.ChatGPT.APIKey == "" {
		errs = append(errs, fmt.Errorf("chatgpt.apiKey is required (set %s)", chatGPTAPIKeyEnv))
	}
	if c.ChatGPT.Endpoint == "" {
		errs = append(errs, errors.New("chatgpt.endpoint is required"))
	}
	if c.ChatGPT.Model == "" {
		errs = append(errs, errors.New("chatgpt.model is required"))
	}
	return errors.Join(errs...)
}

// RequireIngestion reports everything missing to transform and persist items.
func (c Config) RequireIngestion() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required (set %s)", databaseDSNEnv))
	}
	switch c.Transformer.Provider {
	case providerService:
		if c.Transformer.Endpoint == "" {
			errs = append(errs, errors.New("transformer.endpoint is required for the service provider"))
		}
	default:
		if !c.ChatGPT.Configured() {
			errs = append(errs, fmt.Errorf("chatgpt credentials are required by the chatgpt transformer (set %s)", chatGPTAPIKeyEnv))
		}
	}
	return errors.Join(errs...)
}

// UsesTransformerService reports whether rewriting goes to the HTTP transformer service.
func (c Config) UsesTransformerService() bool {
	return c.Transformer.Provider == providerService
}

// Profile returns the editorial profile of a category, falling back to a bare description.
func (c Config) Profile(category domain.Category) domain.StyleProfile {
	for _, p := range c.Categories {
		if strings.EqualFold(p.Name, string(category)) {
			return domain.StyleProfile{
				Category:    category,
				Description: p.Description,
				Audience:    p.Audience,
				Voice:       p.Voice,
			}
		}
	}
	return domain.StyleProfile{Category: category, Description: string(category)}
}

// FallbackCandidates converts the configured pool into domain candidates.
func (c Config) FallbackCandidates() ([]domain.FallbackCandidate, error) {
	out := make([]domain.FallbackCandidate, 0, len(c.FallbackPool))
	seen := make(map[string]bool, len(c.FallbackPool))
	for _, entry := range c.FallbackPool {
		cat, err := domain.ParseCategory(entry.Category)
		if err != nil {
			return nil, fmt.Errorf("fallbackPool %s: %w", entry.ID, err)
		}
		if err := domain.ValidateURL(entry.URL); err != nil {
			return nil, fmt.Errorf("fallbackPool %s: %w", entry.ID, err)
		}
		id := entry.ID
		if id == "" {
			id = domain.Slug(string(cat), entry.Name)
		}
		if seen[id] {
			return nil, fmt.Errorf("fallbackPool: duplicate id %q", id)
		}
		seen[id] = true
		out = append(out, domain.FallbackCandidate{
			ID:       id,
			Name:     entry.Name,
			URL:      entry.URL,
			Category: cat,
			Priority: entry.Priority,
		})
	}
	return out, nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{DSN: ""},
		Scheduler: SchedulerConfig{RecoveryCron: "0 3 * * *", IngestCron: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Registry:  RegistryConfig{Path: defaultRegistryPath, LockTimeout: 30 * time.Second},
		Probe: ProbeConfig{
			Timeout:           10 * time.Second,
			ReliableItemCount: domain.DefaultReliableThreshold,
			HostInterval:      time.Second,
		},
		Recovery: RecoveryConfig{
			MinCoverage:    domain.DefaultReliableThreshold,
			DiscoveryBatch: 2,
			FallbackDelay:  500 * time.Millisecond,
			DiscoveryDelay: 2 * time.Second,
			FetchFrequency: 6 * time.Hour,
		},
		Ingest: IngestConfig{
			PerSourceWindow:      5,
			MaxItems:             10,
			ItemDelay:            2 * time.Second,
			MaxConcurrentFetches: 4,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are an editor for a lifestyle magazine.",
			Timeout:      60 * time.Second,
			MaxAttempts:  3,
		},
		Transformer: TransformerConfig{Provider: providerChatGPT},
		Metrics:     MetricsConfig{Addr: ":9090"},
		Categories:  defaultCategories(),
		FallbackPool: []FallbackConfig{
			{ID: "beauty-allure", Name: "Allure", URL: "https://www.allure.com/feed/rss", Category: "beauty", Priority: 1},
			{ID: "beauty-byrdie", Name: "Byrdie", URL: "https://www.byrdie.com/rss", Category: "beauty", Priority: 2},
			{ID: "fashion-vogue", Name: "Vogue", URL: "https://www.vogue.com/feed/rss", Category: "fashion", Priority: 1},
			{ID: "fashion-fashionista", Name: "Fashionista", URL: "https://fashionista.com/.rss/excerpt", Category: "fashion", Priority: 2},
			{ID: "travel-cntraveler", Name: "Conde Nast Traveler", URL: "https://www.cntraveler.com/feed/rss", Category: "travel", Priority: 1},
			{ID: "travel-travelleisure", Name: "Travel + Leisure", URL: "https://www.travelandleisure.com/rss", Category: "travel", Priority: 2},
			{ID: "wellness-wellandgood", Name: "Well+Good", URL: "https://www.wellandgood.com/feed/", Category: "wellness", Priority: 1},
			{ID: "food-bonappetit", Name: "Bon Appetit", URL: "https://www.bonappetit.com/feed/rss", Category: "food", Priority: 1},
			{ID: "food-eater", Name: "Eater", URL: "https://www.eater.com/rss/index.xml", Category: "food", Priority: 2},
			{ID: "culture-newyorker", Name: "The New Yorker Culture", URL: "https://www.newyorker.com/feed/culture", Category: "culture", Priority: 1},
			{ID: "lifestyle-apartmenttherapy", Name: "Apartment Therapy", URL: "https://www.apartmenttherapy.com/main.rss", Category: "lifestyle", Priority: 1},
		},
	}
}

func defaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Name: "beauty", Description: "skincare, makeup, hair and beauty industry news", Audience: "women 25-45 interested in self-care", Voice: "warm, expert, practical"},
		{Name: "fashion", Description: "runway, street style, designers and shopping", Audience: "style-conscious readers", Voice: "confident, trend-aware"},
		{Name: "travel", Description: "destinations, hotels, itineraries and travel tips", Audience: "independent travellers", Voice: "evocative, useful"},
		{Name: "wellness", Description: "fitness, mental health, sleep and nutrition", Audience: "health-minded adults", Voice: "calm, evidence-based"},
		{Name: "food", Description: "recipes, restaurants and food culture", Audience: "home cooks and diners", Voice: "sensory, friendly"},
		{Name: "culture", Description: "books, film, art, music and ideas", Audience: "curious readers", Voice: "thoughtful, lively"},
		{Name: "lifestyle", Description: "home, relationships, work and everyday life", Audience: "urban professionals", Voice: "relatable, upbeat"},
	}
}
