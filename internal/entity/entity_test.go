package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayload(t *testing.T) {
	p := NewPayload("", nil, nil)

	assert.Equal(t, ReconciliationSentinel, p.Reconciliations)
	assert.Equal(t, []any{}, p.Data)
	assert.Equal(t, []any{}, p.Data1)

	rows := map[string]any{"rows": []any{}}
	p = NewPayload("37", rows, []any{"x"})

	assert.Equal(t, "37", p.Reconciliations)
	assert.Equal(t, rows, p.Data)
	assert.Equal(t, []any{"x"}, p.Data1)
}

func TestLocator(t *testing.T) {
	loc := Locator{Name: "tile", Strategy: StrategyCSS, Value: "section[aria-label='%s']"}

	filled := loc.With("Reconciliations")

	assert.Equal(t, "section[aria-label='Reconciliations']", filled.Value)
	assert.Equal(t, "section[aria-label='%s']", loc.Value)
	assert.Equal(t, "tile(css=section[aria-label='Reconciliations'])", filled.String())
	assert.Equal(t, "id=btnLogin", Locator{Strategy: StrategyID, Value: "btnLogin"}.String())
}

func TestRunReport(t *testing.T) {
	r := NewRunReport()

	assert.Equal(t, RunStatusPending, r.Status)
	assert.Nil(t, r.FinishedAt)
	assert.NotEmpty(t, r.ID.String())

	r.Record(StepOutcome{Step: "navigate", Status: StepStatusOK})
	r.Record(StepOutcome{Step: "site filter", Status: StepStatusSkipped})
	r.Record(StepOutcome{Step: "submit", Status: StepStatusSkipped})

	assert.Equal(t, 1, r.Count(StepStatusOK))
	assert.Equal(t, 2, r.Count(StepStatusSkipped))
	assert.Zero(t, r.Count(StepStatusFailed))

	r.Finish(RunStatusDelivered)

	assert.Equal(t, RunStatusDelivered, r.Status)
	require.NotNil(t, r.FinishedAt)
	assert.False(t, r.FinishedAt.Before(r.StartedAt))
}
