// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is resolved once at
// startup and injected into components as an immutable value; nothing reads
// ambient process state after construction, so runs are reproducible in tests.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Oracle    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	OCR       OCRConfig       `mapstructure:"ocr" yaml:"ocr"`
	Solver    SolverConfig    `mapstructure:"solver" yaml:"solver"`
	Humanoid  HumanoidConfig  `mapstructure:"humanoid" yaml:"humanoid"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
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

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool     `mapstructure:"debug" yaml:"debug"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args            []string `mapstructure:"args" yaml:"args"`
	ViewportWidth   int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight  int      `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// NetworkConfig tunes outbound HTTP and page-load behavior.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// OracleConfig holds settings for the remote coordinate-solving service.
type OracleConfig struct {
	BaseURL             string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey              string        `mapstructure:"api_key" yaml:"-"`
	PollInterval        time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxWait             time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	TransportRetries    int           `mapstructure:"transport_retries" yaml:"transport_retries"`
	RequestsPerSecond   float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	MaxImageBytes       int           `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
	InstructionTemplate string        `mapstructure:"instruction_template" yaml:"instruction_template"`
	CheckBalance        bool          `mapstructure:"check_balance" yaml:"check_balance"`
}

// OCRConfig selects and tunes the local recognizer.
type OCRConfig struct {
	// Engine picks the recognizer backend: "tesseract", "gemini" or "none".
	Engine            string       `mapstructure:"engine" yaml:"engine"`
	Language          string       `mapstructure:"language" yaml:"language"`
	DPI               int          `mapstructure:"dpi" yaml:"dpi"`
	Whitelist         string       `mapstructure:"whitelist" yaml:"whitelist"`
	BinarizeThreshold int          `mapstructure:"binarize_threshold" yaml:"binarize_threshold"`
	UpscaleFactor     int          `mapstructure:"upscale_factor" yaml:"upscale_factor"`
	Gemini            GeminiConfig `mapstructure:"gemini" yaml:"gemini"`
}

// GeminiConfig configures the remote fallback recognizer.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"-"`
	Model      string        `mapstructure:"model" yaml:"model"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// SelectorConfig carries the priority-ordered selector candidate lists used to
// locate challenge elements. The engine tries each in order and uses the
// first that resolves.
type SelectorConfig struct {
	Instruction []string `mapstructure:"instruction" yaml:"instruction"`
	Grid        []string `mapstructure:"grid" yaml:"grid"`
	Submit      []string `mapstructure:"submit" yaml:"submit"`
	Password    []string `mapstructure:"password" yaml:"password"`
}

// SolverConfig tunes the resolution engine itself.
type SolverConfig struct {
	DefaultTarget         string         `mapstructure:"default_target" yaml:"default_target"`
	RetryBudget           int            `mapstructure:"retry_budget" yaml:"retry_budget"`
	AttemptTimeout        time.Duration  `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	CropRadius            int            `mapstructure:"crop_radius" yaml:"crop_radius"`
	CapturePadding        float64        `mapstructure:"capture_padding" yaml:"capture_padding"`
	SettleDelay           time.Duration  `mapstructure:"settle_delay" yaml:"settle_delay"`
	ClickDelayMin         time.Duration  `mapstructure:"click_delay_min" yaml:"click_delay_min"`
	ClickDelayMax         time.Duration  `mapstructure:"click_delay_max" yaml:"click_delay_max"`
	SubmitEnabled         bool           `mapstructure:"submit_enabled" yaml:"submit_enabled"`
	Password              string         `mapstructure:"password" yaml:"-"`
	Selectors             SelectorConfig `mapstructure:"selectors" yaml:"selectors"`
	RejectionAlertMarkers []string       `mapstructure:"rejection_alert_markers" yaml:"rejection_alert_markers"`
	RejectionURLMarkers   []string       `mapstructure:"rejection_url_markers" yaml:"rejection_url_markers"`
}

// HumanoidConfig gates the cursor-path humanization layer. The detailed
// movement tunables live with the planner; these are the operational knobs.
type HumanoidConfig struct {
	Enabled        bool  `mapstructure:"enabled" yaml:"enabled"`
	Seed           int64 `mapstructure:"seed" yaml:"seed"`
	ClickHoldMinMs int   `mapstructure:"click_hold_min_ms" yaml:"click_hold_min_ms"`
	ClickHoldMaxMs int   `mapstructure:"click_hold_max_ms" yaml:"click_hold_max_ms"`
}

// ArtifactsConfig controls debug artifact persistence.
type ArtifactsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// JournalConfig enables the optional Postgres attempt journal.
type JournalConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
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
	v.SetDefault("logger.service_name", "gridpick-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 900)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.post_load_wait", "2s")

	// -- Oracle --
	v.SetDefault("oracle.base_url", "https://2captcha.com")
	v.SetDefault("oracle.poll_interval", "3s")
	v.SetDefault("oracle.max_wait", "120s")
	v.SetDefault("oracle.transport_retries", 2)
	v.SetDefault("oracle.requests_per_second", 1.0)
	v.SetDefault("oracle.max_image_bytes", 100*1024)
	v.SetDefault("oracle.instruction_template", "click on all images that contain the number %s")
	v.SetDefault("oracle.check_balance", true)

	// -- OCR --
	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 70)
	v.SetDefault("ocr.whitelist", "0123456789")
	v.SetDefault("ocr.binarize_threshold", 150)
	v.SetDefault("ocr.upscale_factor", 2)
	v.SetDefault("ocr.gemini.model", "gemini-2.5-flash")
	v.SetDefault("ocr.gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta/models")
	v.SetDefault("ocr.gemini.api_timeout", "30s")

	// -- Solver --
	v.SetDefault("solver.default_target", "667")
	v.SetDefault("solver.retry_budget", 3)
	v.SetDefault("solver.attempt_timeout", "5m")
	v.SetDefault("solver.crop_radius", 40)
	v.SetDefault("solver.capture_padding", 10)
	v.SetDefault("solver.settle_delay", "2s")
	v.SetDefault("solver.click_delay_min", "300ms")
	v.SetDefault("solver.click_delay_max", "3s")
	v.SetDefault("solver.submit_enabled", true)
	v.SetDefault("solver.selectors.instruction", []string{
		"//div[contains(@class,'captcha')]//p[contains(text(),'number')]",
		"//*[contains(text(),'select all boxes')]",
		"div.captcha-instructions",
	})
	v.SetDefault("solver.selectors.grid", []string{
		"div.captcha-grid",
		"//table[contains(@class,'captcha')]",
		"#captcha",
	})
	v.SetDefault("solver.selectors.submit", []string{
		"//button[contains(text(),'Verify')]",
		"button[type='submit']",
		"input[type='submit']",
	})
	v.SetDefault("solver.selectors.password", []string{
		"input[type='password']",
		"//input[@name='password']",
	})
	v.SetDefault("solver.rejection_alert_markers", []string{"correct number"})
	v.SetDefault("solver.rejection_url_markers", []string{"err="})

	// -- Humanoid --
	v.SetDefault("humanoid.enabled", true)
	v.SetDefault("humanoid.seed", 0)
	v.SetDefault("humanoid.click_hold_min_ms", 50)
	v.SetDefault("humanoid.click_hold_max_ms", 120)

	// -- Artifacts --
	v.SetDefault("artifacts.enabled", false)
	v.SetDefault("artifacts.dir", "gridpick-debug")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("oracle.api_key", "GRIDPICK_ORACLE_API_KEY")
	v.BindEnv("solver.password", "GRIDPICK_SOLVER_PASSWORD")
	v.BindEnv("ocr.gemini.api_key", "GRIDPICK_GEMINI_API_KEY")
	v.BindEnv("journal.url", "GRIDPICK_JOURNAL_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = os.Getenv("GRIDPICK_ORACLE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Oracle.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver configuration invalid: %w", err)
	}
	if err := c.OCR.Validate(); err != nil {
		return fmt.Errorf("ocr configuration invalid: %w", err)
	}
	if c.Humanoid.ClickHoldMinMs > c.Humanoid.ClickHoldMaxMs {
		return fmt.Errorf("humanoid.click_hold_min_ms must not exceed humanoid.click_hold_max_ms")
	}
	return nil
}

// Validate checks the oracle settings.
func (o *OracleConfig) Validate() error {
	if o.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if o.MaxWait < o.PollInterval {
		return fmt.Errorf("max_wait must be at least one poll_interval")
	}
	if o.TransportRetries < 0 {
		return fmt.Errorf("transport_retries must not be negative")
	}
	if o.MaxImageBytes <= 0 {
		return fmt.Errorf("max_image_bytes must be a positive integer")
	}
	if !strings.Contains(o.InstructionTemplate, "%s") {
		return fmt.Errorf("instruction_template must contain a %%s placeholder for the target number")
	}
	return nil
}

// Validate checks the solver settings.
func (s *SolverConfig) Validate() error {
	if s.RetryBudget <= 0 {
		return fmt.Errorf("retry_budget must be a positive integer")
	}
	if s.CropRadius <= 0 {
		return fmt.Errorf("crop_radius must be a positive integer")
	}
	if s.ClickDelayMin < 0 || s.ClickDelayMax < s.ClickDelayMin {
		return fmt.Errorf("click_delay_min/click_delay_max must form a non-negative range")
	}
	if s.DefaultTarget == "" {
		return fmt.Errorf("default_target is required")
	}
	for _, r := range s.DefaultTarget {
		if r < '0' || r > '9' {
			return fmt.Errorf("default_target must be numeric, got %q", s.DefaultTarget)
		}
	}
	return nil
}

// Validate checks the recognizer selection.
func (o *OCRConfig) Validate() error {
	switch o.Engine {
	case "tesseract", "gemini", "none":
	default:
		return fmt.Errorf("engine must be one of tesseract, gemini, none; got %q", o.Engine)
	}
	if o.BinarizeThreshold < 0 || o.BinarizeThreshold > 255 {
		return fmt.Errorf("binarize_threshold must be within 0..255")
	}
	if o.UpscaleFactor < 1 {
		return fmt.Errorf("upscale_factor must be at least 1")
	}
	if o.Engine == "gemini" && o.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required when the gemini engine is selected")
	}
	return nil
}
