package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type StepPolicy string

const (
	// StepPolicyAbort stops the run on the first missing element.
	StepPolicyAbort StepPolicy = "abort"
	// StepPolicySkip logs the miss and continues with the next step.
	StepPolicySkip StepPolicy = "skip"
)

type ExhaustionPolicy string

const (
	ExhaustionFatal    ExhaustionPolicy = "fatal"
	ExhaustionContinue ExhaustionPolicy = "continue"
)

type Config struct {
	AppConfig      *AppConfig
	BrowserConfig  *BrowserConfig
	InsightsConfig *InsightsConfig
	WorkflowConfig *WorkflowConfig
	DeliveryConfig *DeliveryConfig
}

type AppConfig struct {
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	Debug             bool          `envconfig:"DEBUG" default:"false"`
	LogFile           string        `envconfig:"LOG_FILE"`
	TraceFile         string        `envconfig:"TRACE_FILE"`
	RunTimeout        time.Duration `envconfig:"RUN_TIMEOUT" default:"10m"`
	DebugArtifactPath string        `envconfig:"DEBUG_ARTIFACT_PATH" default:"debug_output.html"`
}

type BrowserConfig struct {
	Headless     bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	SlowMo       int           `envconfig:"BROWSER_SLOW_MO" default:"0"`
	Timeout      int           `envconfig:"BROWSER_TIMEOUT" default:"30000"`
	ClickTimeout time.Duration `envconfig:"BROWSER_CLICK_TIMEOUT" default:"2s"`
	UserDataDir  string        `envconfig:"BROWSER_USER_DATA_DIR"`
	SkipInstall  bool          `envconfig:"BROWSER_SKIP_INSTALL" default:"false"`
}

type InsightsConfig struct {
	// Credentials are deliberately optional: a missing value surfaces as a failed login.
	Email           string `envconfig:"KOUNTA_EMAIL"`
	Password        string `envconfig:"KOUNTA_PASSWORD"`
	BaseURL         string `envconfig:"INSIGHTS_BASE_URL" default:"https://insights.kounta.com/insights?url=/embed/dashboards-next/"`
	PrimaryReport   string `envconfig:"INSIGHTS_REPORT_PRIMARY" default:"1231"`
	SecondaryReport string `envconfig:"INSIGHTS_REPORT_SECONDARY" default:"1216"`
	FrameID         string `envconfig:"INSIGHTS_FRAME_ID" default:"lookerFrame"`
	SiteName        string `envconfig:"INSIGHTS_SITE_NAME" default:"Donny|s Bar"`
	IntervalFrom    int    `envconfig:"INSIGHTS_INTERVAL_FROM" default:"228"`
	IntervalTo      int    `envconfig:"INSIGHTS_INTERVAL_TO" default:"158"`
	LocatorsFile    string `envconfig:"INSIGHTS_LOCATORS_FILE"`
}

type WorkflowConfig struct {
	StepPolicy       StepPolicy       `envconfig:"STEP_POLICY" default:"skip"`
	ExhaustionPolicy ExhaustionPolicy `envconfig:"EXHAUSTION_POLICY" default:"continue"`
	ClickRetries     int              `envconfig:"CLICK_RETRIES" default:"3"`
	ClickBackoff     time.Duration    `envconfig:"CLICK_BACKOFF" default:"1s"`
	PollInterval     time.Duration    `envconfig:"POLL_INTERVAL" default:"250ms"`
	FindTimeout      time.Duration    `envconfig:"FIND_TIMEOUT" default:"10s"`
	LongFindTimeout  time.Duration    `envconfig:"LONG_FIND_TIMEOUT" default:"30s"`
	GesturePause     time.Duration    `envconfig:"GESTURE_PAUSE" default:"500ms"`
	SettleDelay      time.Duration    `envconfig:"SETTLE_DELAY" default:"5s"`
	MaxUnitPasses    int              `envconfig:"MAX_UNIT_PASSES" default:"5"`
	FormatSteps      int              `envconfig:"EXPORT_FORMAT_STEPS" default:"1"`
}

type DeliveryConfig struct {
	WebhookURL string        `envconfig:"N8N_WEBHOOK_URL"`
	Timeout    time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"30s"`
}

func GetConfig() (*Config, error) {
	_ = godotenv.Load()

	var conf Config

	if err := envconfig.Process("", &conf); err != nil {
		return nil, fmt.Errorf("read config from env vars: %w", err)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return &conf, nil
}

// Validate checks enumerations and bounds only. Credentials and the webhook URL are not
// checked here; their absence is reported by the step that needs them.
func (c *Config) Validate() error {
	switch c.WorkflowConfig.StepPolicy {
	case StepPolicyAbort, StepPolicySkip:
	default:
		return fmt.Errorf("invalid STEP_POLICY %q: want %q or %q", c.WorkflowConfig.StepPolicy, StepPolicyAbort, StepPolicySkip)
	}

	switch c.WorkflowConfig.ExhaustionPolicy {
	case ExhaustionFatal, ExhaustionContinue:
	default:
		return fmt.Errorf("invalid EXHAUSTION_POLICY %q: want %q or %q", c.WorkflowConfig.ExhaustionPolicy, ExhaustionFatal, ExhaustionContinue)
	}

	if c.WorkflowConfig.ClickRetries < 1 {
		return fmt.Errorf("CLICK_RETRIES must be at least 1, got %d", c.WorkflowConfig.ClickRetries)
	}

	if c.WorkflowConfig.MaxUnitPasses < 1 {
		return fmt.Errorf("MAX_UNIT_PASSES must be at least 1, got %d", c.WorkflowConfig.MaxUnitPasses)
	}

	if c.WorkflowConfig.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}

	return nil
}

// ReportURL joins the dashboard base URL with a report identifier.
func (c *InsightsConfig) ReportURL(report string) string {
	return c.BaseURL + report
}
