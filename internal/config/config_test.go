package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		AppConfig:     &AppConfig{},
		BrowserConfig: &BrowserConfig{},
		InsightsConfig: &InsightsConfig{
			BaseURL: "https://insights.test/embed/",
		},
		WorkflowConfig: &WorkflowConfig{
			StepPolicy:       StepPolicySkip,
			ExhaustionPolicy: ExhaustionContinue,
			ClickRetries:     3,
			PollInterval:     250 * time.Millisecond,
			MaxUnitPasses:    5,
		},
		DeliveryConfig: &DeliveryConfig{},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "abort and fatal",
			mutate: func(c *Config) { c.WorkflowConfig.StepPolicy, c.WorkflowConfig.ExhaustionPolicy = StepPolicyAbort, ExhaustionFatal },
		},
		{
			name:    "unknown step policy",
			mutate:  func(c *Config) { c.WorkflowConfig.StepPolicy = "retry" },
			wantErr: "STEP_POLICY",
		},
		{
			name:    "unknown exhaustion policy",
			mutate:  func(c *Config) { c.WorkflowConfig.ExhaustionPolicy = "ignore" },
			wantErr: "EXHAUSTION_POLICY",
		},
		{
			name:    "no click attempts",
			mutate:  func(c *Config) { c.WorkflowConfig.ClickRetries = 0 },
			wantErr: "CLICK_RETRIES",
		},
		{
			name:    "no unit passes",
			mutate:  func(c *Config) { c.WorkflowConfig.MaxUnitPasses = 0 },
			wantErr: "MAX_UNIT_PASSES",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.WorkflowConfig.PollInterval = 0 },
			wantErr: "POLL_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()

			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetConfig(t *testing.T) {
	t.Setenv("STEP_POLICY", "abort")
	t.Setenv("RUN_TIMEOUT", "90s")
	t.Setenv("INSIGHTS_REPORT_PRIMARY", "42")
	t.Setenv("N8N_WEBHOOK_URL", "https://n8n.test/webhook/insights")

	c, err := GetConfig()

	require.NoError(t, err)
	assert.Equal(t, StepPolicyAbort, c.WorkflowConfig.StepPolicy)
	assert.Equal(t, 90*time.Second, c.AppConfig.RunTimeout)
	assert.Equal(t, "42", c.InsightsConfig.PrimaryReport)
	assert.Equal(t, "https://n8n.test/webhook/insights", c.DeliveryConfig.WebhookURL)
}

func TestGetConfigRejectsInvalidPolicy(t *testing.T) {
	t.Setenv("EXHAUSTION_POLICY", "sometimes")

	_, err := GetConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXHAUSTION_POLICY")
}

func TestReportURL(t *testing.T) {
	c := &InsightsConfig{BaseURL: "https://insights.test/insights?url=/embed/dashboards-next/"}

	assert.Equal(t, "https://insights.test/insights?url=/embed/dashboards-next/1216", c.ReportURL("1216"))
}
