// Package workflow runs the export script: for each dashboard it navigates, applies the filters,
// submits and reads the tiles, one step at a time.
//
// Steps are either required or soft. A required step that fails ends the run. A soft step that
// misses an element (absent, or still covered after the click retries) is handled by the
// configured step policy; any other failure of a soft step also ends the run.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/extract"
	"insights-exporter/internal/gadget"
	"insights-exporter/internal/interact"
	"insights-exporter/internal/locators"
	"insights-exporter/internal/ports"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	orchestratorName   = "Orchestrator"
	orchestratorTracer = "workflow.orchestrator"
)

type Step struct {
	Name  string
	Kind  entity.StepKind
	Stage string
	Run   func(ctx context.Context) error
}

type Orchestrator struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	browser      ports.BrowserManager
	primitives   *interact.Primitives
	switcher     *gadget.Switcher
	extractor    *extract.Extractor
	narrator     ports.Narrator
	locators     *locators.Table
	insights     *config.InsightsConfig
	policy       config.StepPolicy
	gesturePause time.Duration
	settleDelay  time.Duration
	findTimeout  time.Duration
	longTimeout  time.Duration
	dashboards   []Dashboard
}

type Params struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Browser    ports.BrowserManager
	Primitives *interact.Primitives
	Switcher   *gadget.Switcher
	Extractor  *extract.Extractor
	Narrator   ports.Narrator
	Locators   *locators.Table
}

func NewOrchestrator(params Params) *Orchestrator {
	wf := params.Config.WorkflowConfig

	return &Orchestrator{
		logger:       params.Logger.With(zap.String(logg.Layer, orchestratorName)),
		tracer:       otel.Tracer(orchestratorTracer),
		browser:      params.Browser,
		primitives:   params.Primitives,
		switcher:     params.Switcher,
		extractor:    params.Extractor,
		narrator:     params.Narrator,
		locators:     params.Locators,
		insights:     params.Config.InsightsConfig,
		policy:       wf.StepPolicy,
		gesturePause: wf.GesturePause,
		settleDelay:  wf.SettleDelay,
		findTimeout:  wf.FindTimeout,
		longTimeout:  wf.LongFindTimeout,
		dashboards:   Dashboards(params.Config.InsightsConfig),
	}
}

// harvest collects what the reading steps of a run produce.
type harvest struct {
	reconciliations string
	records         [2]entity.ReportRecord
}

// Run processes every dashboard in order and builds the delivery payload. Step outcomes are
// recorded on report as they happen, so a failed run still shows how far it got.
func (o *Orchestrator) Run(ctx context.Context, report *entity.RunReport) (payload entity.Payload, err error) {
	const op = "Run"
	logger := o.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, report.ID.String()))

	ctx, step := tracing.StartSpan(ctx, o.tracer, logger, op,
		attribute.String("run_id", report.ID.String()),
		attribute.String("policy", string(o.policy)))
	defer func() {
		step.End(err)
	}()

	var h harvest

	for _, d := range o.dashboards {
		o.narrator.Info(fmt.Sprintf("Dashboard %s (report %s)", d.Name, d.Report))
		logger.Info("Processing dashboard", zap.String(logg.Dashboard, d.Name), zap.String("report", d.Report))

		for _, s := range o.compile(d, &h) {
			if err := o.execute(ctx, logger, d, s, report); err != nil {
				return entity.Payload{}, err
			}
		}

		step.AddEvent("dashboard done", attribute.String("dashboard", d.Name))
	}

	payload = entity.NewPayload(h.reconciliations, h.records[SlotData], h.records[SlotData1])

	logger.Info("Run finished",
		zap.Int("skipped", report.Count(entity.StepStatusSkipped)),
		zap.String("reconciliations", payload.Reconciliations))

	return payload, nil
}

// execute runs one step, records its outcome and applies the step policy.
func (o *Orchestrator) execute(ctx context.Context, logger *zap.Logger, d Dashboard, s Step, report *entity.RunReport) error {
	const op = "execute"
	logger = logger.With(zap.String(logg.Dashboard, d.Name), zap.String(logg.Step, s.Name))

	logger.Debug("Step started", zap.String("kind", string(s.Kind)))

	started := time.Now()
	err := s.Run(ctx)

	outcome := entity.StepOutcome{
		Dashboard: d.Name,
		Step:      s.Name,
		Kind:      s.Kind,
		Duration:  time.Since(started),
	}

	switch {
	case err == nil:
		outcome.Status = entity.StepStatusOK
	case o.skippable(ctx, s, err):
		outcome.Status = entity.StepStatusSkipped
		outcome.Error = err.Error()
		logger.Warn("Step skipped", zap.String(logg.Policy, string(o.policy)), zap.Error(err))
	default:
		outcome.Status = entity.StepStatusFailed
		outcome.Error = err.Error()
	}

	report.Record(outcome)
	o.narrator.Step(outcome.Status, fmt.Sprintf("%s: %s", d.Name, s.Name))

	if outcome.Status != entity.StepStatusFailed {
		return nil
	}

	logger.Error("Step failed", zap.String("kind", string(s.Kind)), zap.Error(err))

	code := apperr.CodeOf(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = apperr.CodeTimeout
	case code == "":
		code = apperr.CodeInternal
	}

	return apperr.Wrap(op, code, err, map[string]any{
		apperr.MetaReason:    "step_failed",
		apperr.MetaStage:     s.Stage,
		apperr.MetaStep:      s.Name,
		apperr.MetaDashboard: d.Name,
	})
}

func (o *Orchestrator) skippable(ctx context.Context, s Step, err error) bool {
	return s.Kind == entity.StepSoft &&
		o.policy == config.StepPolicySkip &&
		ctx.Err() == nil &&
		interact.IsMiss(err)
}

func required(name, stage string, run func(ctx context.Context) error) Step {
	return Step{Name: name, Kind: entity.StepRequired, Stage: stage, Run: run}
}

func soft(name, stage string, run func(ctx context.Context) error) Step {
	return Step{Name: name, Kind: entity.StepSoft, Stage: stage, Run: run}
}

// compile turns a dashboard definition into its ordered steps. Reading steps store into h.
func (o *Orchestrator) compile(d Dashboard, h *harvest) []Step {
	steps := []Step{
		required("navigate", apperr.StageNavigation, func(ctx context.Context) error {
			return o.navigate(ctx, d)
		}),
	}

	if d.Authenticate {
		steps = append(steps, required("authenticate", apperr.StageAuthentication, o.authenticate))
	}

	steps = append(steps, required("enter frame", apperr.StageFrame, o.enterFrame))

	switch d.Time.Kind {
	case TimeRelativeHours:
		steps = append(steps,
			soft("open date filter", apperr.StageFilter, o.clickThrough(locators.RelativeDateChip)),
			soft("choose relative mode", apperr.StageFilter, o.clickThrough(locators.RelativeModeInput, locators.IsOption)),
			soft("first unit to hours", apperr.StageUnitSwitch, o.firstUnitToHours),
			soft("interval bounds", apperr.StageFilter, func(ctx context.Context) error {
				return o.intervalBounds(ctx, d.Time)
			}),
			soft("units to hours", apperr.StageUnitSwitch, o.unitsToHours),
		)
	case TimePreviousWeek:
		steps = append(steps,
			soft("previous week", apperr.StageFilter, o.clickThrough(locators.ThisWeekChip, locators.MoreOption, locators.PreviousWeekOption)),
		)
	}

	switch d.Site.Mode {
	case SiteValueRequired:
		steps = append(steps, soft("site filter", apperr.StageFilter, func(ctx context.Context) error {
			return o.siteValueRequired(ctx, d.Site.Name)
		}))
	case SiteCombobox:
		steps = append(steps, soft("site filter", apperr.StageFilter, func(ctx context.Context) error {
			return o.siteCombobox(ctx, d.Site.Name)
		}))
	}

	steps = append(steps,
		soft("submit", apperr.StageSubmit, func(ctx context.Context) error {
			return o.submit(ctx, d.Submit)
		}),
		// No page signal marks the end of the dashboard refresh.
		required("settle", apperr.StageSubmit, func(ctx context.Context) error {
			return interact.Pause(ctx, o.settleDelay)
		}),
	)

	if d.MetricTile != "" {
		steps = append(steps, soft("read "+d.MetricTile, apperr.StageMetric, func(ctx context.Context) error {
			h.reconciliations = o.extractor.ReadMetric(ctx, o.browser.Scope(), d.MetricTile)

			return nil
		}))
	}

	steps = append(steps, soft("export "+d.ExportTile, apperr.StageExport, func(ctx context.Context) error {
		record, err := o.extractor.Export(ctx, d.ExportTile)
		if err != nil {
			return err
		}

		h.records[d.Slot] = record

		return nil
	}))

	return steps
}

func (o *Orchestrator) navigate(ctx context.Context, d Dashboard) error {
	url := o.insights.ReportURL(d.Report)
	if err := o.browser.Navigate(ctx, url); err != nil {
		return apperr.WithStage(err, apperr.StageNavigation)
	}

	return nil
}

func (o *Orchestrator) authenticate(ctx context.Context) error {
	const op = "authenticate"
	scope := o.browser.Scope()

	emailLoc := o.locators.Get(locators.LoginEmail)
	email, found, err := o.primitives.Find(ctx, scope, emailLoc, o.longTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, emailLoc, "login_form_not_found")
	}

	if err := o.primitives.Type(ctx, email, o.insights.Email, 0); err != nil {
		return err
	}

	passwordLoc := o.locators.Get(locators.LoginPassword)
	password, found, err := o.primitives.Find(ctx, scope, passwordLoc, o.findTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, passwordLoc, "password_input_not_found")
	}

	if err := o.primitives.Type(ctx, password, o.insights.Password, 0); err != nil {
		return err
	}

	_, err = o.primitives.FindAndClick(ctx, scope, o.locators.Get(locators.LoginSubmit), o.findTimeout)

	return err
}

func (o *Orchestrator) enterFrame(ctx context.Context) error {
	const op = "enterFrame"

	loc := o.locators.Get(locators.DashboardFrame).With(o.insights.FrameID)
	frame, found, err := o.primitives.Find(ctx, o.browser.Scope(), loc, o.longTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, loc, "frame_not_found")
	}

	if err := o.browser.EnterFrame(ctx, frame); err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "enter_frame_failed",
			apperr.MetaSelector: loc.String(),
		})
	}

	return nil
}

// clickThrough clicks each named control in turn, pausing after each click. The first control
// gets the long timeout since it waits on the dashboard itself.
func (o *Orchestrator) clickThrough(names ...locators.Name) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for i, name := range names {
			timeout := o.findTimeout
			if i == 0 {
				timeout = o.longTimeout
			}

			if _, err := o.primitives.FindAndClick(ctx, o.browser.Scope(), o.locators.Get(name), timeout); err != nil {
				return err
			}

			if err := o.pause(ctx); err != nil {
				return err
			}
		}

		return nil
	}
}

// firstUnitToHours picks hours from the option list of the first unit control. The remaining
// controls are left to the switcher.
func (o *Orchestrator) firstUnitToHours(ctx context.Context) error {
	const op = "firstUnitToHours"
	scope := o.browser.Scope()

	unitLoc := o.locators.Get(locators.MonthsUnit)
	units, err := o.primitives.FindAll(ctx, scope, unitLoc, o.findTimeout)
	if err != nil {
		return err
	}

	if len(units) == 0 {
		return interact.Miss(op, unitLoc, "unit_control_not_found")
	}

	ok, err := o.primitives.SafeClick(ctx, units[0])
	if err != nil {
		return err
	}

	if !ok {
		return interact.Miss(op, unitLoc, "click_intercepted")
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	if _, err := o.primitives.FindAndClick(ctx, scope, o.locators.Get(locators.HoursOption), o.findTimeout); err != nil {
		return err
	}

	return o.pause(ctx)
}

func (o *Orchestrator) intervalBounds(ctx context.Context, filter TimeFilter) error {
	const op = "intervalBounds"
	scope := o.browser.Scope()

	loc := o.locators.Get(locators.IntervalValue)
	first, found, err := o.primitives.Find(ctx, scope, loc, o.findTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, loc, "interval_input_not_found")
	}

	if err := o.primitives.Type(ctx, first, strconv.Itoa(filter.From), 0); err != nil {
		return err
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	inputs, err := o.primitives.FindAll(ctx, scope, loc, 0)
	if err != nil {
		return err
	}

	if len(inputs) < 2 {
		o.logger.Warn("Second interval bound not present",
			zap.String(logg.Operation, op),
			zap.Int("inputs", len(inputs)))

		return nil
	}

	return o.primitives.Type(ctx, inputs[1], strconv.Itoa(filter.To), 0)
}

func (o *Orchestrator) unitsToHours(ctx context.Context) error {
	res, err := o.switcher.ConvergeToHours(ctx, o.browser.Scope())
	if err != nil {
		return err
	}

	if !res.Converged {
		o.narrator.Info(fmt.Sprintf("%d unit control(s) still show months after %d passes", res.Remaining, res.Passes))
	}

	return nil
}

func (o *Orchestrator) siteValueRequired(ctx context.Context, site string) error {
	scope := o.browser.Scope()

	if _, err := o.primitives.FindAndClick(ctx, scope, o.locators.Get(locators.ValueRequiredChip), o.longTimeout); err != nil {
		return err
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	input, err := o.primitives.FindAndClick(ctx, scope, o.locators.Get(locators.ModalValueInput), o.longTimeout)
	if err != nil {
		return err
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	// The first suggestion is the exact site.
	return o.primitives.Type(ctx, input, site, o.gesturePause, "ArrowDown", "Enter")
}

func (o *Orchestrator) siteCombobox(ctx context.Context, site string) error {
	const op = "siteCombobox"
	scope := o.browser.Scope()

	for _, name := range []locators.Name{locators.SiteNameChip, locators.ModalValueInput} {
		if _, err := o.primitives.FindAndClick(ctx, scope, o.locators.Get(name), o.longTimeout); err != nil {
			return err
		}
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	combo, err := o.primitives.FindAndClick(ctx, scope, o.locators.Get(locators.ComboboxInput), o.longTimeout)
	if err != nil {
		return err
	}

	if err := o.primitives.Type(ctx, combo, site, o.gesturePause, "ArrowDown", "Enter"); err != nil {
		return err
	}

	if err := o.pause(ctx); err != nil {
		return err
	}

	// Clicking the page body closes the suggestion popover.
	body, found, err := o.primitives.Find(ctx, scope, o.locators.Get(locators.PageBody), o.findTimeout)
	if err != nil {
		return err
	}

	if found {
		if ok, err := o.primitives.SafeClick(ctx, body); err != nil {
			return err
		} else if !ok {
			o.logger.Debug("Popover close click intercepted", zap.String(logg.Operation, op))
		}
	}

	return o.pause(ctx)
}

func (o *Orchestrator) submit(ctx context.Context, mode SubmitMode) error {
	const op = "submit"

	loc := o.locators.Get(locators.UpdateButton)
	button, found, err := o.primitives.Find(ctx, o.browser.Scope(), loc, o.longTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, loc, "update_button_not_found")
	}

	if mode == SubmitDispatch {
		if err := button.DispatchClick(ctx); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason:   "dispatch_click_failed",
				apperr.MetaSelector: loc.String(),
			})
		}

		return nil
	}

	ok, err := o.primitives.SafeClick(ctx, button)
	if err != nil {
		return err
	}

	if !ok {
		return interact.Miss(op, loc, "click_intercepted")
	}

	return nil
}

func (o *Orchestrator) pause(ctx context.Context) error {
	return interact.Pause(ctx, o.gesturePause)
}
