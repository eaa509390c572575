// Package config loads settings from an optional YAML file, the environment
// and the OS keyring. Environment variables override file values; the
// keyring only fills secrets left empty by both.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultMaxSteps        = 20
	DefaultRegistrySize    = 1000
	DefaultPreviewLimit    = 500
)

// Env names every environment variable the agent reads.
const (
	EnvConfigFile      = "LEADAGENT_CONFIG"
	EnvAddr            = "LEADAGENT_ADDR"
	EnvShutdownTimeout = "LEADAGENT_SHUTDOWN_TIMEOUT"
	EnvWorkers         = "WORKERS"
	EnvQueueSize       = "QUEUE_SIZE"
	EnvRateLimitRPS    = "RATE_LIMIT_RPS"
	EnvRunTimeout      = "RUN_TIMEOUT"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvGeminiModel     = "GEMINI_MODEL"
	EnvGeminiBaseURL   = "GEMINI_BASE_URL"
	EnvMaxSteps        = "RESEARCH_MAX_STEPS"
	EnvSellerName      = "SELLER_NAME"
	EnvSellerURL       = "SELLER_URL"
	EnvExaAPIKey       = "EXA_API_KEY"
	EnvExaBaseURL      = "EXA_BASE_URL"
	EnvSlackToken      = "SLACK_BOT_TOKEN"
	EnvSlackSecret     = "SLACK_SIGNING_SECRET"
	EnvSlackChannel    = "SLACK_CHANNEL_ID"
	EnvSlackAPIURL     = "SLACK_API_URL"
	EnvSlackPreview    = "SLACK_PREVIEW_LIMIT"
	EnvSMTPHost        = "SMTP_HOST"
	EnvSMTPPort        = "SMTP_PORT"
	EnvGmailUser       = "GMAIL_USER"
	EnvSMTPUsername    = "SMTP_USERNAME"
	EnvGmailPassword   = "GMAIL_APP_PASSWORD"
	EnvSMTPPassword    = "SMTP_PASSWORD"
	EnvMailFromName    = "MAIL_FROM_NAME"
	EnvMailRedirectTo  = "MAIL_REDIRECT_TO"
	EnvBotRateRPS      = "BOT_RATE_RPS"
	EnvLogLevel        = "LOG_LEVEL"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Dispatch struct {
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
	RegistrySize int           `yaml:"registry_size"`
}

type Gemini struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Research struct {
	MaxSteps      int     `yaml:"max_steps"`
	SellerName    string  `yaml:"seller_name"`
	SellerURL     string  `yaml:"seller_url"`
	NumResults    int     `yaml:"num_results"`
	FetchMaxChars int     `yaml:"fetch_max_chars"`
	FetchHostRPS  float64 `yaml:"fetch_host_rps"`
}

type Exa struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type Slack struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
	ChannelID     string `yaml:"channel_id"`
	APIURL        string `yaml:"api_url"`
	PreviewLimit  int    `yaml:"preview_limit"`
}

type SMTP struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FromName    string `yaml:"from_name"`
	FromAddress string `yaml:"from_address"`
	RedirectTo  string `yaml:"redirect_to"`
}

type Bot struct {
	RatePerIP      float64 `yaml:"rate_per_ip"`
	Burst          int     `yaml:"burst"`
	TrustForwarded bool    `yaml:"trust_forwarded"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	Dispatch Dispatch `yaml:"dispatch"`
	Gemini   Gemini   `yaml:"gemini"`
	Research Research `yaml:"research"`
	Exa      Exa      `yaml:"exa"`
	Slack    Slack    `yaml:"slack"`
	SMTP     SMTP     `yaml:"smtp"`
	Bot      Bot      `yaml:"bot"`
	LogLevel string   `yaml:"log_level"`
}

// Source supplies raw inputs to Load.
type Source struct {
	// Path is the YAML file; empty means the LEADAGENT_CONFIG value, or none.
	Path string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Secrets defaults to the OS keyring.
	Secrets SecretStore
}

// Load reads the file (if any), applies env overrides, fills missing secrets
// from the keyring, applies defaults and validates.
func Load(src Source) (Config, error) {
	getenv := src.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	secrets := src.Secrets
	if secrets == nil {
		secrets = Keyring{}
	}

	var cfg Config
	path := strings.TrimSpace(src.Path)
	if path == "" {
		path = strings.TrimSpace(getenv(EnvConfigFile))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(envReader{getenv}); err != nil {
		return Config{}, err
	}
	cfg.applySecrets(secrets)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envReader struct {
	get func(string) string
}

func (e envReader) str(dst *string, names ...string) {
	for _, name := range names {
		if v := strings.TrimSpace(e.get(name)); v != "" {
			*dst = v
			return
		}
	}
}

func (e envReader) int(dst *int, name string) error {
	v := strings.TrimSpace(e.get(name))
	if v == "" {
		return nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = out
	return nil
}

func (e envReader) float(dst *float64, name string) error {
	v := strings.TrimSpace(e.get(name))
	if v == "" {
		return nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = out
	return nil
}

func (e envReader) duration(dst *time.Duration, name string) error {
	v := strings.TrimSpace(e.get(name))
	if v == "" {
		return nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = out
	return nil
}

func (c *Config) applyEnv(env envReader) error {
	env.str(&c.Server.Addr, EnvAddr)
	env.str(&c.Gemini.APIKey, EnvGeminiAPIKey)
	env.str(&c.Gemini.Model, EnvGeminiModel)
	env.str(&c.Gemini.BaseURL, EnvGeminiBaseURL)
	env.str(&c.Research.SellerName, EnvSellerName)
	env.str(&c.Research.SellerURL, EnvSellerURL)
	env.str(&c.Exa.APIKey, EnvExaAPIKey)
	env.str(&c.Exa.BaseURL, EnvExaBaseURL)
	env.str(&c.Slack.BotToken, EnvSlackToken)
	env.str(&c.Slack.SigningSecret, EnvSlackSecret)
	env.str(&c.Slack.ChannelID, EnvSlackChannel)
	env.str(&c.Slack.APIURL, EnvSlackAPIURL)
	env.str(&c.SMTP.Host, EnvSMTPHost)
	env.str(&c.SMTP.Username, EnvSMTPUsername, EnvGmailUser)
	env.str(&c.SMTP.Password, EnvSMTPPassword, EnvGmailPassword)
	env.str(&c.SMTP.FromName, EnvMailFromName)
	env.str(&c.SMTP.RedirectTo, EnvMailRedirectTo)
	env.str(&c.LogLevel, EnvLogLevel)

	return errors.Join(
		env.duration(&c.Server.ShutdownTimeout, EnvShutdownTimeout),
		env.int(&c.Dispatch.Workers, EnvWorkers),
		env.int(&c.Dispatch.QueueSize, EnvQueueSize),
		env.float(&c.Dispatch.RateLimitRPS, EnvRateLimitRPS),
		env.duration(&c.Dispatch.RunTimeout, EnvRunTimeout),
		env.int(&c.Research.MaxSteps, EnvMaxSteps),
		env.int(&c.Slack.PreviewLimit, EnvSlackPreview),
		env.int(&c.SMTP.Port, EnvSMTPPort),
		env.float(&c.Bot.RatePerIP, EnvBotRateRPS),
	)
}

func (c *Config) applySecrets(s SecretStore) {
	fill := func(dst *string, account string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v, ok := lookupSecret(s, account); ok {
			*dst = v
		}
	}
	fill(&c.Gemini.APIKey, SecretGeminiAPIKey)
	fill(&c.Exa.APIKey, SecretExaAPIKey)
	fill(&c.Slack.BotToken, SecretSlackBotToken)
	fill(&c.Slack.SigningSecret, SecretSlackSigningSecret)
	fill(&c.SMTP.Password, SecretSMTPPassword)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = 4
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = 64
	}
	if c.Dispatch.RegistrySize == 0 {
		c.Dispatch.RegistrySize = DefaultRegistrySize
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultGeminiModel
	}
	if c.Research.MaxSteps == 0 {
		c.Research.MaxSteps = DefaultMaxSteps
	}
	if c.Research.NumResults == 0 {
		c.Research.NumResults = 2
	}
	if c.Slack.PreviewLimit == 0 {
		c.Slack.PreviewLimit = DefaultPreviewLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks values that would otherwise fail later at runtime.
// Missing credentials are not errors; the affected steps degrade or fail
// individually.
func (c Config) Validate() error {
	var errs []error
	if c.Dispatch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be > 0, got %d", c.Dispatch.Workers))
	}
	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be > 0, got %d", c.Dispatch.QueueSize))
	}
	if c.Dispatch.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run timeout must be >= 0, got %s", c.Dispatch.RunTimeout))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be > 0, got %s", c.Server.ShutdownTimeout))
	}
	if c.Research.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("research max steps must be > 0, got %d", c.Research.MaxSteps))
	}
	if c.SMTP.Port < 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("smtp port out of range: %d", c.SMTP.Port))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}
