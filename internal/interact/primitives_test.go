package interact

import (
	"context"
	"errors"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/ports"
	"insights-exporter/internal/ports/portstest"
	"insights-exporter/pkg/apperr"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestPrimitives(t *testing.T) *Primitives {
	t.Helper()

	return NewPrimitives(Params{
		Logger: zaptest.NewLogger(t),
		Config: &config.Config{
			WorkflowConfig: &config.WorkflowConfig{
				ClickRetries: 3,
				ClickBackoff: time.Millisecond,
				PollInterval: time.Millisecond,
				FindTimeout:  20 * time.Millisecond,
			},
		},
	})
}

func intercepted(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = fmt.Errorf("%w: overlay", ports.ErrIntercepted)
	}

	return errs
}

func TestClickRetriesOnInterception(t *testing.T) {
	tests := []struct {
		name          string
		interceptions int
		retries       int
		wantOK        bool
		wantAttempts  int
	}{
		{name: "succeeds first time", interceptions: 0, retries: 3, wantOK: true, wantAttempts: 1},
		{name: "succeeds after one interception", interceptions: 1, retries: 3, wantOK: true, wantAttempts: 2},
		{name: "succeeds on last attempt", interceptions: 2, retries: 3, wantOK: true, wantAttempts: 3},
		{name: "fails when interceptions equal retries", interceptions: 3, retries: 3, wantOK: false, wantAttempts: 3},
		{name: "fails when interceptions exceed retries", interceptions: 7, retries: 3, wantOK: false, wantAttempts: 3},
		{name: "single attempt budget", interceptions: 1, retries: 1, wantOK: false, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPrimitives(t)
			el := portstest.NewElement("button")
			el.ClickErrs = intercepted(tt.interceptions)

			ok, err := p.Click(context.Background(), el, tt.retries, time.Millisecond)

			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantAttempts, el.Clicks())
		})
	}
}

func TestClickPropagatesOtherFailures(t *testing.T) {
	p := newTestPrimitives(t)
	el := portstest.NewElement("button")
	detached := errors.New("element is detached")
	el.ClickErrs = []error{detached}

	ok, err := p.Click(context.Background(), el, 3, time.Millisecond)

	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, detached)
	assert.Equal(t, apperr.CodeActionFailed, apperr.CodeOf(err))
	assert.Equal(t, 1, el.Clicks(), "non-interception failures are not retried")
}

func TestClickStopsOnCancellation(t *testing.T) {
	p := newTestPrimitives(t)
	el := portstest.NewElement("button")
	el.ClickErrs = intercepted(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := p.Click(ctx, el, 5, time.Hour)

	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, el.Clicks())
}

func TestFindReturnsFirstMatch(t *testing.T) {
	p := newTestPrimitives(t)
	first := portstest.NewElement("first", "target")
	second := portstest.NewElement("second", "target")
	doc := portstest.NewDocument("page", portstest.NewElement("other", "other"), first, second)

	el, found, err := p.Find(context.Background(), doc, entity.Locator{Name: "target"}, 10*time.Millisecond)

	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, first, el)
}

func TestFindTimesOutWithoutError(t *testing.T) {
	p := newTestPrimitives(t)
	doc := portstest.NewDocument("page")

	start := time.Now()
	el, found, err := p.Find(context.Background(), doc, entity.Locator{Name: "missing"}, 15*time.Millisecond)

	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, el)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
	assert.Greater(t, doc.Queries(), 1, "absence is polled, not checked once")
}

func TestFindSeesLateElement(t *testing.T) {
	p := newTestPrimitives(t)
	late := portstest.NewElement("late", "target")
	late.Hidden = true
	doc := portstest.NewDocument("page", late)

	trigger := portstest.NewElement("trigger", "trigger")
	trigger.OnClick = func() { late.Hidden = false }

	ok, err := p.SafeClick(context.Background(), trigger)
	require.NoError(t, err)
	require.True(t, ok)

	el, found, err := p.Find(context.Background(), doc, entity.Locator{Name: "target"}, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Same(t, late, el)
}

func TestFindPropagatesDriverErrors(t *testing.T) {
	p := newTestPrimitives(t)
	doc := portstest.NewDocument("page")
	doc.QueryErr = errors.New("protocol error")

	_, found, err := p.Find(context.Background(), doc, entity.Locator{Name: "target"}, 10*time.Millisecond)

	require.Error(t, err)
	assert.False(t, found)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
}

func TestFindAll(t *testing.T) {
	p := newTestPrimitives(t)

	t.Run("returns every match in order", func(t *testing.T) {
		a := portstest.NewElement("a", "unit")
		b := portstest.NewElement("b", "unit")
		doc := portstest.NewDocument("page", a, portstest.NewElement("x", "x"), b)

		elements, err := p.FindAll(context.Background(), doc, entity.Locator{Name: "unit"}, 10*time.Millisecond)

		require.NoError(t, err)
		require.Len(t, elements, 2)
		assert.Same(t, a, elements[0])
		assert.Same(t, b, elements[1])
	})

	t.Run("returns empty non-nil slice on timeout", func(t *testing.T) {
		doc := portstest.NewDocument("page")

		elements, err := p.FindAll(context.Background(), doc, entity.Locator{Name: "unit"}, 5*time.Millisecond)

		require.NoError(t, err)
		assert.NotNil(t, elements)
		assert.Empty(t, elements)
	})
}

func TestFindAndClickReportsMisses(t *testing.T) {
	p := newTestPrimitives(t)

	t.Run("missing element", func(t *testing.T) {
		doc := portstest.NewDocument("page")

		_, err := p.FindAndClick(context.Background(), doc, entity.Locator{Name: "chip"}, 5*time.Millisecond)

		require.Error(t, err)
		assert.True(t, IsMiss(err))
		assert.Equal(t, "element_not_found", apperr.Reason(err))
	})

	t.Run("click stays intercepted", func(t *testing.T) {
		chip := portstest.NewElement("chip", "chip")
		chip.ClickErrs = intercepted(10)
		doc := portstest.NewDocument("page", chip)

		_, err := p.FindAndClick(context.Background(), doc, entity.Locator{Name: "chip"}, 5*time.Millisecond)

		require.Error(t, err)
		assert.True(t, IsMiss(err))
		assert.Equal(t, "click_intercepted", apperr.Reason(err))
		assert.Equal(t, 3, chip.Clicks())
	})

	t.Run("found and clicked", func(t *testing.T) {
		chip := portstest.NewElement("chip", "chip")
		doc := portstest.NewDocument("page", chip)

		el, err := p.FindAndClick(context.Background(), doc, entity.Locator{Name: "chip"}, 5*time.Millisecond)

		require.NoError(t, err)
		assert.Same(t, chip, el)
		assert.Equal(t, 1, chip.Clicks())
	})
}

func TestTypeFillsThenPresses(t *testing.T) {
	p := newTestPrimitives(t)
	input := portstest.NewElement("input", "input")

	err := p.Type(context.Background(), input, "Donny|s Bar", 0, "ArrowDown", "Enter")

	require.NoError(t, err)
	assert.Equal(t, "Donny|s Bar", input.Value())
	assert.Equal(t, []string{"ArrowDown", "Enter"}, input.Pressed())
}

func TestTypeClassifiesFillFailures(t *testing.T) {
	p := newTestPrimitives(t)
	input := portstest.NewElement("input", "input")
	input.FillErr = fmt.Errorf("%w: covered", ports.ErrIntercepted)

	err := p.Type(context.Background(), input, "228", 0)

	require.Error(t, err)
	assert.True(t, IsMiss(err))
	assert.Empty(t, input.Pressed())
}

func TestRepeat(t *testing.T) {
	assert.Equal(t, []string{"ArrowUp", "ArrowUp", "ArrowUp"}, Repeat("ArrowUp", 3))
	assert.Empty(t, Repeat("Enter", 0))
}

func TestPause(t *testing.T) {
	require.NoError(t, Pause(context.Background(), time.Millisecond))
	require.NoError(t, Pause(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Pause(ctx, time.Hour), context.Canceled)
}
