// Package gadget drives the relative-interval unit dropdowns of the dashboard filter popover.
//
// Each unit control is a readonly input whose value is either "months" or "hours". The control
// has no reliable option list to click, so a control is switched by focusing it and walking the
// list with the keyboard. Switching one control may re-render its siblings, which is why the set
// of controls still in months is re-read from the page on every pass.
package gadget

import (
	"context"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/interact"
	"insights-exporter/internal/locators"
	"insights-exporter/internal/ports"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	switcherName   = "UnitSwitcher"
	switcherTracer = "gadget.switcher"

	// Hours sits three entries above months in the unit list.
	hoursOffset = 3
)

type Result struct {
	// Passes is the number of passes that found controls to switch.
	Passes    int
	Converged bool
	// Remaining is the number of controls still in months when the switcher gave up.
	Remaining int
}

type Switcher struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	primitives   *interact.Primitives
	monthsUnit   entity.Locator
	maxPasses    int
	policy       config.ExhaustionPolicy
	gesturePause time.Duration
}

type Params struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Primitives *interact.Primitives
	Locators   *locators.Table
}

func NewSwitcher(params Params) *Switcher {
	wf := params.Config.WorkflowConfig

	return &Switcher{
		logger:       params.Logger.With(zap.String(logg.Layer, switcherName)),
		tracer:       otel.Tracer(switcherTracer),
		primitives:   params.Primitives,
		monthsUnit:   params.Locators.Get(locators.MonthsUnit),
		maxPasses:    wf.MaxUnitPasses,
		policy:       wf.ExhaustionPolicy,
		gesturePause: wf.GesturePause,
	}
}

// ConvergeToHours switches every unit control in scope from months to hours. It makes at most
// maxPasses passes and checks the page once more after the last one. When controls remain, the
// exhaustion policy decides between an error and a non-converged result.
func (s *Switcher) ConvergeToHours(ctx context.Context, scope ports.Scope) (res Result, err error) {
	const op = "ConvergeToHours"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.Int("max_passes", s.maxPasses))
	defer func() {
		step.SetAttributes(
			attribute.Int("passes", res.Passes),
			attribute.Bool("converged", res.Converged),
			attribute.Int("remaining", res.Remaining))
		step.End(err)
	}()

	for pass := 1; pass <= s.maxPasses; pass++ {
		controls, err := s.months(ctx, scope)
		if err != nil {
			return res, err
		}

		if len(controls) == 0 {
			res.Converged = true
			logger.Info("All unit controls show hours", zap.Int(logg.Pass, pass))

			return res, nil
		}

		res.Passes = pass
		logger.Info("Unit controls still in months",
			zap.Int(logg.Pass, pass),
			zap.Int("count", len(controls)))

		for i, control := range controls {
			if err := s.switchControl(ctx, control); err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}

				// A stale or covered control is picked up again by the next query.
				logger.Debug("Unit control not switched",
					zap.Int(logg.Pass, pass),
					zap.Int("index", i),
					zap.Error(err))
			}
		}
	}

	controls, err := s.months(ctx, scope)
	if err != nil {
		return res, err
	}

	if len(controls) == 0 {
		res.Converged = true

		return res, nil
	}

	res.Remaining = len(controls)

	if s.policy == config.ExhaustionFatal {
		return res, apperr.Wrap(op, apperr.CodeConvergenceExhausted,
			fmt.Errorf("%d unit controls still in months after %d passes", res.Remaining, s.maxPasses),
			map[string]any{
				apperr.MetaReason:   "units_not_converged",
				apperr.MetaStage:    apperr.StageUnitSwitch,
				apperr.MetaAttempts: s.maxPasses,
			})
	}

	logger.Warn("Unit controls did not converge, continuing",
		zap.Int("remaining", res.Remaining),
		zap.String(logg.Policy, string(s.policy)))

	return res, nil
}

// months reads the controls currently in months without waiting.
func (s *Switcher) months(ctx context.Context, scope ports.Scope) ([]ports.Element, error) {
	return s.primitives.FindAll(ctx, scope, s.monthsUnit, 0)
}

// switchControl focuses the control and moves its selection from months up to hours.
func (s *Switcher) switchControl(ctx context.Context, control ports.Element) error {
	ok, err := s.primitives.SafeClick(ctx, control)
	if err != nil {
		return err
	}

	if !ok {
		return interact.Miss("switchControl", s.monthsUnit, "click_intercepted")
	}

	if err := interact.Pause(ctx, s.gesturePause); err != nil {
		return err
	}

	if err := s.primitives.Press(ctx, control, 0, interact.Repeat("ArrowUp", hoursOffset)...); err != nil {
		return err
	}

	if err := s.primitives.Press(ctx, control, s.gesturePause, "Enter"); err != nil {
		return err
	}

	return interact.Pause(ctx, s.gesturePause)
}
