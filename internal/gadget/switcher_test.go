package gadget

import (
	"context"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/interact"
	"insights-exporter/internal/locators"
	"insights-exporter/internal/ports"
	"insights-exporter/internal/ports/portstest"
	"insights-exporter/pkg/apperr"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSwitcher(t *testing.T, maxPasses int, policy config.ExhaustionPolicy) *Switcher {
	t.Helper()

	logger := zaptest.NewLogger(t)
	conf := &config.Config{
		WorkflowConfig: &config.WorkflowConfig{
			ExhaustionPolicy: policy,
			ClickRetries:     2,
			ClickBackoff:     time.Millisecond,
			PollInterval:     time.Millisecond,
			FindTimeout:      10 * time.Millisecond,
			MaxUnitPasses:    maxPasses,
		},
	}

	return NewSwitcher(Params{
		Config:     conf,
		Logger:     logger,
		Primitives: interact.NewPrimitives(interact.Params{Config: conf, Logger: logger}),
		Locators:   locators.Default(),
	})
}

// unitControl is in months until it receives ArrowUp x3 followed by Enter.
func unitControl(label string) *portstest.Element {
	el := portstest.NewElement(label, string(locators.MonthsUnit))
	ups := 0
	el.OnPress = func(key string) {
		switch key {
		case "ArrowUp":
			ups++
		case "Enter":
			if ups >= hoursOffset {
				el.Hidden = true
			}
			ups = 0
		}
	}

	return el
}

func TestConvergeToHours(t *testing.T) {
	t.Run("nothing to switch", func(t *testing.T) {
		s := newTestSwitcher(t, 5, config.ExhaustionContinue)
		doc := portstest.NewDocument("frame")

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, Result{Passes: 0, Converged: true}, res)
	})

	t.Run("switches every control in one pass", func(t *testing.T) {
		s := newTestSwitcher(t, 5, config.ExhaustionContinue)
		a, b := unitControl("a"), unitControl("b")
		doc := portstest.NewDocument("frame", a, b)

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, Result{Passes: 1, Converged: true}, res)
		assert.Equal(t, []string{"ArrowUp", "ArrowUp", "ArrowUp", "Enter"}, a.Pressed())
		assert.Equal(t, 1, b.Clicks())
	})

	t.Run("re-reads controls that revert", func(t *testing.T) {
		s := newTestSwitcher(t, 5, config.ExhaustionContinue)
		a, b := unitControl("a"), unitControl("b")
		reverted := false
		bPress := b.OnPress
		b.OnPress = func(key string) {
			bPress(key)
			// Switching b re-renders a back to months once.
			if key == "Enter" && !reverted {
				reverted = true
				a.Hidden = false
			}
		}
		doc := portstest.NewDocument("frame", a, b)

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, Result{Passes: 2, Converged: true}, res)
		assert.Equal(t, 2, a.Clicks())
		assert.Equal(t, 1, b.Clicks())
	})

	t.Run("retries an intercepted control on the next pass", func(t *testing.T) {
		s := newTestSwitcher(t, 5, config.ExhaustionContinue)
		a := unitControl("a")
		a.ClickErrs = []error{
			fmt.Errorf("%w: popover", ports.ErrIntercepted),
			fmt.Errorf("%w: popover", ports.ErrIntercepted),
		}
		doc := portstest.NewDocument("frame", a)

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.True(t, res.Converged)
		assert.Equal(t, 2, res.Passes)
		assert.Equal(t, 3, a.Clicks())
	})

	t.Run("last pass success is confirmed by a final read", func(t *testing.T) {
		s := newTestSwitcher(t, 1, config.ExhaustionFatal)
		doc := portstest.NewDocument("frame", unitControl("a"))

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, Result{Passes: 1, Converged: true}, res)
	})
}

func TestConvergeToHoursExhaustion(t *testing.T) {
	stuck := func() *portstest.Element {
		return portstest.NewElement("stuck", string(locators.MonthsUnit))
	}

	t.Run("continue policy reports remaining controls", func(t *testing.T) {
		s := newTestSwitcher(t, 3, config.ExhaustionContinue)
		el := stuck()
		doc := portstest.NewDocument("frame", el, unitControl("ok"))

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.NoError(t, err)
		assert.Equal(t, Result{Passes: 3, Converged: false, Remaining: 1}, res)
		assert.Equal(t, 3, el.Clicks())
	})

	t.Run("fatal policy fails the step", func(t *testing.T) {
		s := newTestSwitcher(t, 2, config.ExhaustionFatal)
		doc := portstest.NewDocument("frame", stuck(), stuck())

		res, err := s.ConvergeToHours(context.Background(), doc)

		require.Error(t, err)
		assert.True(t, apperr.HasCode(err, apperr.CodeConvergenceExhausted))
		assert.Equal(t, 2, res.Remaining)
		assert.False(t, res.Converged)
	})
}

func TestConvergeToHoursCancelled(t *testing.T) {
	s := newTestSwitcher(t, 5, config.ExhaustionContinue)
	s.gesturePause = time.Hour
	doc := portstest.NewDocument("frame", unitControl("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ConvergeToHours(ctx, doc)

	assert.ErrorIs(t, err, context.Canceled)
}
