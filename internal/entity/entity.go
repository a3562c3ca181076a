package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
	StrategyID    Strategy = "id"
	StrategyName  Strategy = "name"
)

// Locator is a selection strategy resolved against the session's current scope.
// It is never cached across navigation.
type Locator struct {
	Name     string   `yaml:"-"`
	Strategy Strategy `yaml:"strategy"`
	Value    string   `yaml:"value"`
}

// With returns a copy whose Value has the %s placeholders filled from args.
func (l Locator) With(args ...any) Locator {
	l.Value = fmt.Sprintf(l.Value, args...)

	return l
}

func (l Locator) String() string {
	if l.Name != "" {
		return fmt.Sprintf("%s(%s=%s)", l.Name, l.Strategy, l.Value)
	}

	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// ReportRecord is the JSON-shaped value recovered from one export view.
type ReportRecord = any

// EmptyRecord is what a missing or unparsable export degrades to.
func EmptyRecord() ReportRecord {
	return []any{}
}

const ReconciliationSentinel = "0"

// Payload is the single delivery body. Build it with NewPayload and do not mutate it.
type Payload struct {
	Reconciliations string       `json:"no_of_reconciliations"`
	Data            ReportRecord `json:"data"`
	Data1           ReportRecord `json:"data1"`
}

func NewPayload(reconciliations string, primary, secondary ReportRecord) Payload {
	if reconciliations == "" {
		reconciliations = ReconciliationSentinel
	}

	if primary == nil {
		primary = EmptyRecord()
	}

	if secondary == nil {
		secondary = EmptyRecord()
	}

	return Payload{
		Reconciliations: reconciliations,
		Data:            primary,
		Data1:           secondary,
	}
}

type StepKind string

const (
	StepRequired StepKind = "required"
	StepSoft     StepKind = "soft"
)

type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusSkipped StepStatus = "skipped"
	StepStatusFailed  StepStatus = "failed"
)

type StepOutcome struct {
	Dashboard string
	Step      string
	Kind      StepKind
	Status    StepStatus
	Duration  time.Duration
	Error     string
}

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusDelivered RunStatus = "delivered"
	RunStatusFailed    RunStatus = "failed"
)

// RunReport summarises one one-shot run.
type RunReport struct {
	ID             uuid.UUID
	Status         RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	Steps          []StepOutcome
	Payload        *Payload
	DeliveryStatus int
	ArtifactPath   string
	Error          string
}

func NewRunReport() *RunReport {
	return &RunReport{
		ID:        uuid.New(),
		Status:    RunStatusPending,
		StartedAt: time.Now(),
		Steps:     make([]StepOutcome, 0),
	}
}

func (r *RunReport) Record(outcome StepOutcome) {
	r.Steps = append(r.Steps, outcome)
}

func (r *RunReport) Finish(status RunStatus) {
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
}

// Count returns the number of recorded steps with the given status.
func (r *RunReport) Count(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}

	return n
}
