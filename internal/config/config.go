// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	RunLog    RunLogConfig    `mapstructure:"runlog" yaml:"runlog"`
	Sender    SenderConfig    `mapstructure:"sender" yaml:"sender"`
	// Send gets its marching orders from CLI flags, not the config file.
	Send SendConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the automated browser.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// ExecPath overrides Chrome discovery when set.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// UserDataDir is the persisted profile root. Each provider gets its own
	// subdirectory so logins survive between runs.
	UserDataDir string            `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args        []string          `mapstructure:"args" yaml:"args"`
	Viewport    ViewportConfig    `mapstructure:"viewport" yaml:"viewport"`
	UserAgent   string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers     map[string]string `mapstructure:"headers" yaml:"headers"`
	// Linger keeps the window open after a run before closing it. An
	// interrupt during the linger extends it by LingerExtension; a second
	// interrupt closes immediately.
	Linger          time.Duration  `mapstructure:"linger" yaml:"linger"`
	LingerExtension time.Duration  `mapstructure:"linger_extension" yaml:"linger_extension"`
	Humanoid        HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// ViewportConfig is the fixed window size applied to every page.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// HumanoidConfig tunes keystroke timing.
type HumanoidConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// KeyDelayJitter is the standard deviation applied around a provider's
	// inter-key delay, as a fraction of that delay.
	KeyDelayJitter float64 `mapstructure:"key_delay_jitter" yaml:"key_delay_jitter"`
	// MinKeyDelay floors every inter-key pause.
	MinKeyDelay time.Duration `mapstructure:"min_key_delay" yaml:"min_key_delay"`
	Seed        int64         `mapstructure:"seed" yaml:"seed"`
}

// ProvidersConfig holds the bounds of the execution engine and per-provider
// overrides.
type ProvidersConfig struct {
	Default      string         `mapstructure:"default" yaml:"default"`
	ReadyTimeout time.Duration  `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	LoginTimeout time.Duration  `mapstructure:"login_timeout" yaml:"login_timeout"`
	StepTimeout  time.Duration  `mapstructure:"step_timeout" yaml:"step_timeout"`
	Gmail        ProviderConfig `mapstructure:"gmail" yaml:"gmail"`
	Outlook      ProviderConfig `mapstructure:"outlook" yaml:"outlook"`
}

// ProviderConfig overrides a single provider's mailbox URL and typing speed.
type ProviderConfig struct {
	MailboxURL string        `mapstructure:"mailbox_url" yaml:"mailbox_url"`
	TypeDelay  time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	// ProviderNone disables the LLM; extraction uses the regex fallback and
	// paraphrasing returns the message unchanged.
	ProviderNone LLMProvider = "none"
)

// LLMConfig configures the text-understanding collaborator.
type LLMConfig struct {
	Provider              LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model                 string        `mapstructure:"model" yaml:"model"`
	APIKey                string        `mapstructure:"api_key" yaml:"-"`
	APITimeout            time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	ExtractTemperature    float64       `mapstructure:"extract_temperature" yaml:"extract_temperature"`
	ParaphraseTemperature float64       `mapstructure:"paraphrase_temperature" yaml:"paraphrase_temperature"`
	MaxTokens             int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute     int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	// MaxRetries bounds retries of transient API failures after the first attempt.
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
	ProxyURL   string `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// RunLogConfig configures where run records are appended.
type RunLogConfig struct {
	Path        string `mapstructure:"path" yaml:"path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"`
}

// SenderConfig describes the person on whose behalf mail is sent.
type SenderConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// SendConfig holds settings populated from CLI flags for a specific run.
type SendConfig struct {
	Instruction     string
	Provider        string
	SubjectOverride string
	DryRun          bool
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "mailpilot")
	v.SetDefault("logger.log_file", "mailpilot.log")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", "~/.mailpilot/profiles")
	v.SetDefault("browser.viewport.width", 1360)
	v.SetDefault("browser.viewport.height", 900)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.headers", map[string]string{"Accept-Language": "en-US,en;q=0.9"})
	v.SetDefault("browser.linger", "10s")
	v.SetDefault("browser.linger_extension", "50m")
	v.SetDefault("browser.humanoid.enabled", true)
	v.SetDefault("browser.humanoid.key_delay_jitter", 0.25)
	v.SetDefault("browser.humanoid.min_key_delay", "20ms")

	// -- Providers --
	v.SetDefault("providers.default", "gmail")
	v.SetDefault("providers.ready_timeout", "30s")
	v.SetDefault("providers.login_timeout", "5m")
	v.SetDefault("providers.step_timeout", "20s")
	v.SetDefault("providers.gmail.mailbox_url", "https://mail.google.com/mail/u/0/#inbox")
	v.SetDefault("providers.gmail.type_delay", "100ms")
	v.SetDefault("providers.outlook.mailbox_url", "https://outlook.live.com/mail/0/")
	v.SetDefault("providers.outlook.type_delay", "80ms")

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.extract_temperature", 0.1)
	v.SetDefault("llm.paraphrase_temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.requests_per_minute", 30)
	v.SetDefault("llm.max_retries", 2)

	// -- Run Log --
	v.SetDefault("runlog.path", "runs.jsonl")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "MAILPILOT_LLM_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("runlog.database_url", "MAILPILOT_RUNLOG_DATABASE_URL", "DATABASE_URL")
	// USER_DATA_DIR is honoured for compatibility with older profile setups.
	_ = v.BindEnv("browser.user_data_dir", "MAILPILOT_BROWSER_USER_DATA_DIR", "USER_DATA_DIR")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	expanded, err := homedir.Expand(cfg.Browser.UserDataDir)
	if err != nil {
		return nil, fmt.Errorf("invalid browser.user_data_dir: %w", err)
	}
	cfg.Browser.UserDataDir = expanded

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Providers.ReadyTimeout <= 0 {
		return fmt.Errorf("providers.ready_timeout must be a positive duration")
	}
	if c.Providers.LoginTimeout <= 0 {
		return fmt.Errorf("providers.login_timeout must be a positive duration")
	}
	if c.Providers.StepTimeout <= 0 {
		return fmt.Errorf("providers.step_timeout must be a positive duration")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive")
	}
	if c.Browser.Linger < 0 || c.Browser.LingerExtension < 0 {
		return fmt.Errorf("browser.linger durations cannot be negative")
	}
	if err := c.Browser.Humanoid.Validate(); err != nil {
		return fmt.Errorf("browser.humanoid configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the humanoid timing settings.
func (h *HumanoidConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.KeyDelayJitter < 0 || h.KeyDelayJitter > 1 {
		return fmt.Errorf("key_delay_jitter must be between 0.0 and 1.0")
	}
	if h.MinKeyDelay < 0 {
		return fmt.Errorf("min_key_delay cannot be negative")
	}
	return nil
}

// Validate checks the LLM settings. A missing API key is not an error; the
// client factory falls back to the offline extractor instead.
func (l *LLMConfig) Validate() error {
	switch LLMProvider(strings.ToLower(string(l.Provider))) {
	case ProviderGemini, ProviderNone, "":
	default:
		return fmt.Errorf("unsupported llm.provider %q (supported: %s, %s)", l.Provider, ProviderGemini, ProviderNone)
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	return nil
}
