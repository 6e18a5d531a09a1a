// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it rather than the concrete struct so tests can hand
// them a trimmed-down Config.
type Interface interface {
	Logger() LoggerConfig
	Portal() PortalConfig
	Login() LoginConfig
	Credentials() CredentialsConfig
	Evaluation() EvaluationConfig
	Captcha() CaptchaConfig
	Journal() JournalConfig
	Report() ReportConfig
	Locale() string

	SetLocale(string)
	SetReportOutput(string)
	SetReportFormat(string)
	SetRadioStrategy(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	PortalCfg      PortalConfig      `mapstructure:"portal" yaml:"portal"`
	LoginCfg       LoginConfig       `mapstructure:"login" yaml:"login"`
	CredentialsCfg CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	EvaluationCfg  EvaluationConfig  `mapstructure:"evaluation" yaml:"evaluation"`
	CaptchaCfg     CaptchaConfig     `mapstructure:"captcha" yaml:"captcha"`
	JournalCfg     JournalConfig     `mapstructure:"journal" yaml:"journal"`
	ReportCfg      ReportConfig      `mapstructure:"report" yaml:"report"`
	LocaleCfg      string            `mapstructure:"locale" yaml:"locale"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Portal() PortalConfig           { return c.PortalCfg }
func (c *Config) Login() LoginConfig             { return c.LoginCfg }
func (c *Config) Credentials() CredentialsConfig { return c.CredentialsCfg }
func (c *Config) Evaluation() EvaluationConfig   { return c.EvaluationCfg }
func (c *Config) Captcha() CaptchaConfig         { return c.CaptchaCfg }
func (c *Config) Journal() JournalConfig         { return c.JournalCfg }
func (c *Config) Report() ReportConfig           { return c.ReportCfg }
func (c *Config) Locale() string                 { return c.LocaleCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetLocale(l string)       { c.LocaleCfg = l }
func (c *Config) SetReportOutput(p string) { c.ReportCfg.Output = p }
func (c *Config) SetReportFormat(f string) { c.ReportCfg.Format = f }
func (c *Config) SetRadioStrategy(s string) {
	c.EvaluationCfg.Policy.RadioStrategy = s
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
	// RedactKeys names the log fields whose values are masked. Nil means
	// the built-in set of token, password and cookie keys.
	RedactKeys []string `mapstructure:"redact_keys" yaml:"redact_keys"`
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

// PortalConfig describes how to reach the academic-affairs portal.
type PortalConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	AcceptLanguage  string        `mapstructure:"accept_language" yaml:"accept_language"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestRate     float64       `mapstructure:"request_rate" yaml:"request_rate"`
	RequestBurst    int           `mapstructure:"request_burst" yaml:"request_burst"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// LoginConfig controls the authentication loop and how its outcome is judged.
type LoginConfig struct {
	MaxAttempts          int      `mapstructure:"max_attempts" yaml:"max_attempts"`
	SuccessMarker        string   `mapstructure:"success_marker" yaml:"success_marker"`
	CaptchaErrorMarkers  []string `mapstructure:"captcha_error_markers" yaml:"captcha_error_markers"`
	PasswordErrorMarkers []string `mapstructure:"password_error_markers" yaml:"password_error_markers"`
}

// CredentialsConfig selects where the student ID and password come from.
// Source is either "prompt" or "static".
type CredentialsConfig struct {
	Source   string `mapstructure:"source" yaml:"source"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// EvaluationConfig governs task listing, pacing and the autofill policy.
type EvaluationConfig struct {
	PageSize   int           `mapstructure:"page_size" yaml:"page_size"`
	Flag       string        `mapstructure:"flag" yaml:"flag"`
	PhasePause time.Duration `mapstructure:"phase_pause" yaml:"phase_pause"`
	TaskPause  time.Duration `mapstructure:"task_pause" yaml:"task_pause"`
	Policy     PolicyConfig  `mapstructure:"policy" yaml:"policy"`
}

// PolicyConfig holds the knobs of the autofill policy.
type PolicyConfig struct {
	ScoreValue       string `mapstructure:"score_value" yaml:"score_value"`
	ScorePlaceholder string `mapstructure:"score_placeholder" yaml:"score_placeholder"`
	// RadioStrategy is "first" or "last".
	RadioStrategy  string `mapstructure:"radio_strategy" yaml:"radio_strategy"`
	Comment        string `mapstructure:"comment" yaml:"comment"`
	NoneOfTheAbove string `mapstructure:"none_of_the_above" yaml:"none_of_the_above"`
}

// CaptchaConfig selects and configures the CAPTCHA solver.
type CaptchaConfig struct {
	Solver   string          `mapstructure:"solver" yaml:"solver"`
	ImageDir string          `mapstructure:"image_dir" yaml:"image_dir"`
	OCR      OCRConfig       `mapstructure:"ocr" yaml:"ocr"`
	Gemini   LLMSolverConfig `mapstructure:"gemini" yaml:"gemini"`
	OpenAI   LLMSolverConfig `mapstructure:"openai" yaml:"openai"`
}

// OCRConfig configures the remote OCR recognition service.
type OCRConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries  uint64        `mapstructure:"max_retries" yaml:"max_retries"`
	ImageFormat string        `mapstructure:"image_format" yaml:"image_format"`
}

// LLMSolverConfig configures a vision model used to read CAPTCHAs.
type LLMSolverConfig struct {
	APIKey  string        `mapstructure:"api_key" yaml:"-"`
	Model   string        `mapstructure:"model" yaml:"model"`
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// JournalConfig configures the optional run journal. An empty URL disables it.
type JournalConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ReportConfig configures the per-run summary written at the end of evaluate.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig builds a Config populated only from SetDefaults.
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
	v.SetDefault("logger.service_name", "quickeval")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Portal --
	v.SetDefault("portal.base_url", "http://zhjw.scu.edu.cn")
	v.SetDefault("portal.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("portal.accept_language", "zh-CN,zh;q=0.9,en;q=0.8")
	v.SetDefault("portal.timeout", "30s")
	v.SetDefault("portal.request_rate", 5.0)
	v.SetDefault("portal.request_burst", 1)
	v.SetDefault("portal.ignore_tls_errors", false)

	// -- Login --
	v.SetDefault("login.max_attempts", 3)
	v.SetDefault("login.success_marker", "欢迎您")
	v.SetDefault("login.captcha_error_markers", []string{"验证码不正确", "验证码错误"})
	v.SetDefault("login.password_error_markers", []string{"密码错误", "用户名或密码"})

	// -- Credentials --
	v.SetDefault("credentials.source", "prompt")

	// -- Evaluation --
	v.SetDefault("evaluation.page_size", 30)
	v.SetDefault("evaluation.flag", "kt")
	v.SetDefault("evaluation.phase_pause", "1s")
	v.SetDefault("evaluation.task_pause", "2s")
	v.SetDefault("evaluation.policy.score_value", "100")
	v.SetDefault("evaluation.policy.score_placeholder", "请输入1-100的整数")
	v.SetDefault("evaluation.policy.radio_strategy", "first")
	v.SetDefault("evaluation.policy.comment", "这门课程的教学效果很好,老师热爱教学,教学方式生动有趣,课程内容丰富且贴合时代特点。")
	v.SetDefault("evaluation.policy.none_of_the_above", "K_以上均无")

	// -- Captcha --
	v.SetDefault("captcha.solver", "manual")
	v.SetDefault("captcha.image_dir", "")
	v.SetDefault("captcha.ocr.timeout", "15s")
	v.SetDefault("captcha.ocr.max_retries", 3)
	v.SetDefault("captcha.ocr.image_format", "png")
	v.SetDefault("captcha.gemini.model", "gemini-2.5-flash")
	v.SetDefault("captcha.gemini.timeout", "30s")
	v.SetDefault("captcha.openai.model", "gpt-4o-mini")
	v.SetDefault("captcha.openai.timeout", "30s")

	// -- Journal --
	v.SetDefault("journal.url", "")

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")

	v.SetDefault("locale", "zh")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are only ever read from the environment.
	_ = v.BindEnv("credentials.password", "QUICKEVAL_PASSWORD")
	_ = v.BindEnv("captcha.gemini.api_key", "QUICKEVAL_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("captcha.openai.api_key", "QUICKEVAL_OPENAI_API_KEY", "OPENAI_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.CredentialsCfg.Password == "" {
		cfg.CredentialsCfg.Password = os.Getenv("QUICKEVAL_PASSWORD")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.PortalCfg.BaseURL == "" {
		return fmt.Errorf("portal.base_url is a required configuration field")
	}
	if !strings.HasPrefix(c.PortalCfg.BaseURL, "http://") && !strings.HasPrefix(c.PortalCfg.BaseURL, "https://") {
		return fmt.Errorf("portal.base_url must be an http(s) URL")
	}
	if c.PortalCfg.RequestRate < 0 {
		return fmt.Errorf("portal.request_rate must not be negative")
	}
	if c.LoginCfg.MaxAttempts <= 0 {
		return fmt.Errorf("login.max_attempts must be a positive integer")
	}
	if c.LoginCfg.SuccessMarker == "" {
		return fmt.Errorf("login.success_marker must not be empty")
	}
	switch c.CredentialsCfg.Source {
	case "prompt", "static":
	default:
		return fmt.Errorf("credentials.source must be one of prompt, static; got %q", c.CredentialsCfg.Source)
	}
	if err := c.EvaluationCfg.Validate(); err != nil {
		return fmt.Errorf("evaluation configuration invalid: %w", err)
	}
	if err := c.CaptchaCfg.Validate(); err != nil {
		return fmt.Errorf("captcha configuration invalid: %w", err)
	}
	switch c.ReportCfg.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("report.format must be one of text, json, yaml; got %q", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks the evaluation settings.
func (e *EvaluationConfig) Validate() error {
	if e.PageSize <= 0 {
		return fmt.Errorf("page_size must be a positive integer")
	}
	if e.PhasePause < 0 || e.TaskPause < 0 {
		return fmt.Errorf("pauses must not be negative")
	}
	switch e.Policy.RadioStrategy {
	case "first", "last":
	default:
		return fmt.Errorf("policy.radio_strategy must be first or last; got %q", e.Policy.RadioStrategy)
	}
	if e.Policy.Comment == "" {
		return fmt.Errorf("policy.comment must not be empty")
	}
	return nil
}

// Validate checks the solver selection and its required settings.
func (c *CaptchaConfig) Validate() error {
	switch c.Solver {
	case "manual":
	case "ocr":
		if c.OCR.URL == "" {
			return fmt.Errorf("ocr.url is required when solver is ocr")
		}
	case "gemini":
		if c.Gemini.Model == "" {
			return fmt.Errorf("gemini.model is required when solver is gemini")
		}
	case "openai":
		if c.OpenAI.Model == "" {
			return fmt.Errorf("openai.model is required when solver is openai")
		}
	default:
		return fmt.Errorf("solver must be one of manual, ocr, gemini, openai; got %q", c.Solver)
	}
	return nil
}
