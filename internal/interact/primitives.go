package interact

import (
	"context"
	"errors"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
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
	primitivesName   = "Primitives"
	primitivesTracer = "interact.primitives"
)

// Primitives are the only place the exporter waits on or retries the UI. Absence of an element
// is a normal outcome here, never an error.
type Primitives struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	pollInterval time.Duration
	findTimeout  time.Duration
	retries      int
	backoff      time.Duration
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewPrimitives(params Params) *Primitives {
	wf := params.Config.WorkflowConfig

	return &Primitives{
		logger:       params.Logger.With(zap.String(logg.Layer, primitivesName)),
		tracer:       otel.Tracer(primitivesTracer),
		pollInterval: wf.PollInterval,
		findTimeout:  wf.FindTimeout,
		retries:      wf.ClickRetries,
		backoff:      wf.ClickBackoff,
	}
}

// FindTimeout is the default bounded wait for Find and FindAll.
func (p *Primitives) FindTimeout() time.Duration {
	return p.findTimeout
}

// Click attempts el.Click up to retries times, pausing backoff after each intercepted attempt.
// It reports false without error when every attempt was intercepted; any other failure is
// returned as is.
func (p *Primitives) Click(ctx context.Context, el ports.Element, retries int, backoff time.Duration) (ok bool, err error) {
	const op = "Click"
	logger := p.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op, attribute.Int("retries", retries))
	defer func() {
		step.End(err)
	}()

	if retries < 1 {
		retries = 1
	}

	for attempt := 1; attempt <= retries; attempt++ {
		clickErr := el.Click(ctx)
		if clickErr == nil {
			step.Attempt("click succeeded", attempt, nil)

			return true, nil
		}

		if !errors.Is(clickErr, ports.ErrIntercepted) {
			return false, apperr.Wrap(op, apperr.CodeActionFailed, clickErr, map[string]any{
				apperr.MetaReason:   "click_failed",
				apperr.MetaAttempts: attempt,
			})
		}

		step.Attempt("click intercepted", attempt, clickErr)
		logger.Debug("Click intercepted", zap.Int(logg.Attempt, attempt), zap.Error(clickErr))

		if attempt == retries {
			break
		}

		if err = Pause(ctx, backoff); err != nil {
			return false, err
		}
	}

	logger.Warn("Click still intercepted after retries", zap.Int("retries", retries))

	return false, nil
}

// SafeClick is Click with the configured retry budget.
func (p *Primitives) SafeClick(ctx context.Context, el ports.Element) (bool, error) {
	return p.Click(ctx, el, p.retries, p.backoff)
}

// Find polls scope until loc matches or timeout elapses. It returns the first match, or
// found=false when nothing appeared in time.
func (p *Primitives) Find(ctx context.Context, scope ports.Scope, loc entity.Locator, timeout time.Duration) (el ports.Element, found bool, err error) {
	const op = "Find"
	logger := p.logger.With(zap.String(logg.Operation, op), zap.Stringer(logg.Locator, loc))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op,
		attribute.String("locator", loc.String()),
		attribute.Int64("timeout_ms", timeout.Milliseconds()))
	defer func() {
		step.End(err)
	}()

	elements, err := p.poll(ctx, loc, timeout, func(ctx context.Context) ([]ports.Element, error) {
		return scope.Query(ctx, loc)
	})
	if err != nil {
		return nil, false, err
	}

	if len(elements) == 0 {
		logger.Debug("Element not found", zap.Duration("timeout", timeout))

		return nil, false, nil
	}

	return elements[0], true, nil
}

// FindAll polls like Find and returns every match, or an empty slice on timeout.
func (p *Primitives) FindAll(ctx context.Context, scope ports.Scope, loc entity.Locator, timeout time.Duration) (elements []ports.Element, err error) {
	const op = "FindAll"
	logger := p.logger.With(zap.String(logg.Operation, op), zap.Stringer(logg.Locator, loc))

	ctx, step := tracing.StartSpan(ctx, p.tracer, logger, op, attribute.String("locator", loc.String()))
	defer func() {
		step.End(err)
	}()

	elements, err = p.poll(ctx, loc, timeout, func(ctx context.Context) ([]ports.Element, error) {
		return scope.Query(ctx, loc)
	})
	if err != nil {
		return nil, err
	}

	step.SetAttributes(attribute.Int("matches", len(elements)))

	return elements, nil
}

// FindWithin is Find scoped to the descendants of parent.
func (p *Primitives) FindWithin(ctx context.Context, parent ports.Element, loc entity.Locator, timeout time.Duration) (ports.Element, bool, error) {
	elements, err := p.poll(ctx, loc, timeout, func(ctx context.Context) ([]ports.Element, error) {
		return parent.Query(ctx, loc)
	})
	if err != nil {
		return nil, false, err
	}

	if len(elements) == 0 {
		return nil, false, nil
	}

	return elements[0], true, nil
}

// poll queries immediately, then every pollInterval, until a match or the timeout. The only
// errors are driver errors and cancellation of ctx.
func (p *Primitives) poll(ctx context.Context, loc entity.Locator, timeout time.Duration, query func(context.Context) ([]ports.Element, error)) ([]ports.Element, error) {
	deadline := time.Now().Add(timeout)

	for {
		elements, err := query(ctx)
		if err != nil {
			return nil, apperr.Wrap("poll", apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason:   "query_failed",
				apperr.MetaSelector: loc.String(),
			})
		}

		if len(elements) > 0 {
			return elements, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []ports.Element{}, nil
		}

		if err := Pause(ctx, min(p.pollInterval, remaining)); err != nil {
			return nil, err
		}
	}
}

// FindAndClick finds loc in scope and clicks it only if it was found. A missing element or a
// click that stayed intercepted is reported as a not_found miss.
func (p *Primitives) FindAndClick(ctx context.Context, scope ports.Scope, loc entity.Locator, timeout time.Duration) (ports.Element, error) {
	const op = "FindAndClick"

	el, found, err := p.Find(ctx, scope, loc, timeout)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, Miss(op, loc, "element_not_found")
	}

	ok, err := p.SafeClick(ctx, el)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, Miss(op, loc, "click_intercepted")
	}

	return el, nil
}

// Type replaces the value of el, then sends the optional key gestures with gap between them.
func (p *Primitives) Type(ctx context.Context, el ports.Element, value string, gap time.Duration, keys ...string) error {
	const op = "Type"

	if err := el.Fill(ctx, value); err != nil {
		if errors.Is(err, ports.ErrIntercepted) {
			return apperr.Wrap(op, apperr.CodeIntercepted, err, map[string]any{
				apperr.MetaReason: "fill_intercepted",
			})
		}

		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "fill_failed",
		})
	}

	return p.Press(ctx, el, gap, keys...)
}

// Press sends keys to el one by one, pausing gap before each key.
func (p *Primitives) Press(ctx context.Context, el ports.Element, gap time.Duration, keys ...string) error {
	const op = "Press"

	for _, key := range keys {
		if err := Pause(ctx, gap); err != nil {
			return err
		}

		if err := el.Press(ctx, key); err != nil {
			return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
				apperr.MetaReason: "press_failed",
				"key":             key,
			})
		}
	}

	return nil
}

// Repeat returns key n times.
func Repeat(key string, n int) []string {
	keys := make([]string, 0, max(n, 0))
	for i := 0; i < n; i++ {
		keys = append(keys, key)
	}

	return keys
}

// Pause blocks for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Miss builds the error a step reports when a UI element it needs is absent or unclickable.
func Miss(op string, loc entity.Locator, reason string) error {
	return apperr.Wrap(op, apperr.CodeNotFound, fmt.Errorf("%s: %s", reason, loc), map[string]any{
		apperr.MetaReason:   reason,
		apperr.MetaSelector: loc.String(),
	})
}

// IsMiss reports whether err is a missing-element outcome rather than a driver failure.
func IsMiss(err error) bool {
	return apperr.HasCode(err, apperr.CodeNotFound) || apperr.HasCode(err, apperr.CodeIntercepted)
}
