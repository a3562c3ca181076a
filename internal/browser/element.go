package browser

import (
	"context"
	"errors"
	"fmt"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/ports"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Playwright reports an obscured target through the message of the timed-out action.
var interceptMarkers = []string{
	"intercepts pointer events",
	"element is not visible",
	"element is outside of the viewport",
	"element is not stable",
}

// classify maps driver errors onto the ports error classes.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, marker := range interceptMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", ports.ErrIntercepted, marker)
		}
	}

	return err
}

// selector renders a locator in playwright's selector syntax.
func selector(loc entity.Locator) (string, error) {
	switch loc.Strategy {
	case entity.StrategyCSS:
		return "css=" + loc.Value, nil
	case entity.StrategyXPath:
		return "xpath=" + loc.Value, nil
	case entity.StrategyID:
		return fmt.Sprintf(`css=[id="%s"]`, loc.Value), nil
	case entity.StrategyName:
		return fmt.Sprintf(`css=[name="%s"]`, loc.Value), nil
	default:
		return "", fmt.Errorf("unsupported locator strategy %q", loc.Strategy)
	}
}

func wrapHandles(handles []playwright.ElementHandle, clickTimeout float64) []ports.Element {
	elements := make([]ports.Element, 0, len(handles))
	for _, h := range handles {
		elements = append(elements, &element{handle: h, clickTimeout: clickTimeout})
	}

	return elements
}

type frameScope struct {
	frame        playwright.Frame
	kind         string
	clickTimeout float64
}

func (s *frameScope) Query(_ context.Context, loc entity.Locator) ([]ports.Element, error) {
	sel, err := selector(loc)
	if err != nil {
		return nil, err
	}

	handles, err := s.frame.QuerySelectorAll(sel)
	if err != nil {
		// A frame that navigates mid-query has simply nothing to offer yet.
		if errors.Is(err, playwright.ErrTargetClosed) || strings.Contains(err.Error(), "Execution context was destroyed") {
			return []ports.Element{}, nil
		}

		return nil, fmt.Errorf("query %s in %s scope: %w", loc, s.kind, err)
	}

	return wrapHandles(handles, s.clickTimeout), nil
}

func (s *frameScope) Markup(_ context.Context) (string, error) {
	return s.frame.Content()
}

type pageView struct {
	*frameScope
	page playwright.Page
}

func (v *pageView) Close(_ context.Context) error {
	if v.page.IsClosed() {
		return nil
	}

	return v.page.Close()
}

// closedScope stands in for the scope of a session that is not running.
type closedScope struct{}

var errSessionClosed = errors.New("browser session is not running")

func (closedScope) Query(context.Context, entity.Locator) ([]ports.Element, error) {
	return nil, errSessionClosed
}

func (closedScope) Markup(context.Context) (string, error) {
	return "", errSessionClosed
}

type element struct {
	handle       playwright.ElementHandle
	clickTimeout float64
}

func (e *element) Click(_ context.Context) error {
	return classify(e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(e.clickTimeout),
	}))
}

func (e *element) DispatchClick(_ context.Context) error {
	_, err := e.handle.Evaluate("el => el.click()")

	return err
}

func (e *element) Fill(_ context.Context, value string) error {
	return classify(e.handle.Fill(value, playwright.ElementHandleFillOptions{
		Timeout: playwright.Float(e.clickTimeout),
	}))
}

func (e *element) Press(_ context.Context, key string) error {
	return e.handle.Press(key)
}

func (e *element) Hover(_ context.Context) error {
	return classify(e.handle.Hover(playwright.ElementHandleHoverOptions{
		Timeout: playwright.Float(e.clickTimeout),
	}))
}

func (e *element) ScrollIntoView(_ context.Context) error {
	return e.handle.ScrollIntoViewIfNeeded(playwright.ElementHandleScrollIntoViewIfNeededOptions{
		Timeout: playwright.Float(e.clickTimeout),
	})
}

func (e *element) Text(_ context.Context) (string, error) {
	text, err := e.handle.InnerText()
	if err != nil {
		return e.handle.TextContent()
	}

	return text, nil
}

func (e *element) Query(_ context.Context, loc entity.Locator) ([]ports.Element, error) {
	sel, err := selector(loc)
	if err != nil {
		return nil, err
	}

	handles, err := e.handle.QuerySelectorAll(sel)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", loc, err)
	}

	return wrapHandles(handles, e.clickTimeout), nil
}
