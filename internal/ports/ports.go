package ports

import (
	"context"
	"errors"
	"insights-exporter/internal/entity"
)

// ErrIntercepted marks the transient click failure class: the target exists but another
// element receives the pointer event, or it is momentarily obscured.
var ErrIntercepted = errors.New("click intercepted")

// Scope is the document context queries resolve against: the top-level page, an embedded
// frame or a separately opened view.
type Scope interface {
	// Query returns the current matches without waiting.
	Query(ctx context.Context, loc entity.Locator) ([]Element, error)
	Markup(ctx context.Context) (string, error)
}

type Element interface {
	Click(ctx context.Context) error
	// DispatchClick clicks through script, bypassing hit-testing.
	DispatchClick(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
	Hover(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Query(ctx context.Context, loc entity.Locator) ([]Element, error)
}

// View is an additional browsing context opened by an action, addressed by its own handle.
type View interface {
	Scope
	Close(ctx context.Context) error
}

type BrowserManager interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	// Navigate loads url in the main page and resets the active scope to the top-level document.
	Navigate(ctx context.Context, url string) error
	// Scope returns the active scope; exactly one is active at a time.
	Scope() Scope
	// EnterFrame makes the content of the given iframe element the active scope.
	EnterFrame(ctx context.Context, frame Element) error
	// OpenView runs trigger and returns the browsing context it opened.
	OpenView(ctx context.Context, trigger func(ctx context.Context) error) (View, error)
	IsReady() bool
}

type Sink interface {
	Deliver(ctx context.Context, runID string, payload entity.Payload) (int, error)
}

type Narrator interface {
	Banner()
	Step(status entity.StepStatus, message string)
	Info(message string)
	Summary(report *entity.RunReport)
}
