// Package portstest provides an in-memory stand-in for the browser driver: documents made of
// scripted elements that match locators by name or value.
package portstest

import (
	"context"
	"errors"
	"fmt"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/ports"
	"strings"
	"sync"
)

// Element is a scripted DOM node. It matches a locator whose Name or Value is listed in Matches.
type Element struct {
	Matches  []string
	Label    string
	Hidden   bool
	TextBody string
	Children []*Element

	// Frame is the document behind an iframe element.
	Frame *Document

	// ClickErrs is consumed one entry per click; a nil entry or an empty queue succeeds.
	ClickErrs []error
	OnClick   func()
	OnPress   func(key string)
	OnHover   func()
	FillErr   error

	mu         sync.Mutex
	clicks     int
	dispatches int
	hovers     int
	value      string
	pressed    []string
}

func NewElement(label string, matches ...string) *Element {
	return &Element{Label: label, Matches: matches}
}

func (e *Element) matches(loc entity.Locator) bool {
	if e.Hidden {
		return false
	}

	for _, m := range e.Matches {
		if m == loc.Value || (loc.Name != "" && m == loc.Name) {
			return true
		}
	}

	return false
}

func (e *Element) Click(_ context.Context) error {
	e.mu.Lock()
	e.clicks++

	var err error
	if len(e.ClickErrs) > 0 {
		err = e.ClickErrs[0]
		e.ClickErrs = e.ClickErrs[1:]
	}
	onClick := e.OnClick
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if onClick != nil {
		onClick()
	}

	return nil
}

func (e *Element) DispatchClick(_ context.Context) error {
	e.mu.Lock()
	e.dispatches++
	onClick := e.OnClick
	e.mu.Unlock()

	if onClick != nil {
		onClick()
	}

	return nil
}

func (e *Element) Fill(_ context.Context, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.FillErr != nil {
		return e.FillErr
	}

	e.value = value

	return nil
}

func (e *Element) Press(_ context.Context, key string) error {
	e.mu.Lock()
	e.pressed = append(e.pressed, key)
	onPress := e.OnPress
	e.mu.Unlock()

	if onPress != nil {
		onPress(key)
	}

	return nil
}

func (e *Element) Hover(_ context.Context) error {
	e.mu.Lock()
	e.hovers++
	onHover := e.OnHover
	e.mu.Unlock()

	if onHover != nil {
		onHover()
	}

	return nil
}

func (e *Element) ScrollIntoView(_ context.Context) error {
	return nil
}

func (e *Element) Text(_ context.Context) (string, error) {
	return e.TextBody, nil
}

func (e *Element) Query(_ context.Context, loc entity.Locator) ([]ports.Element, error) {
	return query(e.Children, loc), nil
}

func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.clicks
}

func (e *Element) Dispatches() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.dispatches
}

func (e *Element) Hovers() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.hovers
}

func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.value
}

func (e *Element) Pressed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.pressed...)
}

// Document is a scope holding a flat list of top-level elements.
type Document struct {
	Name     string
	QueryErr error

	mu       sync.Mutex
	elements []*Element
	queries  int
}

func NewDocument(name string, elements ...*Element) *Document {
	return &Document{Name: name, elements: elements}
}

func (d *Document) Add(elements ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elements = append(d.elements, elements...)
}

func (d *Document) Query(_ context.Context, loc entity.Locator) ([]ports.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queries++
	if d.QueryErr != nil {
		return nil, d.QueryErr
	}

	return query(d.elements, loc), nil
}

func (d *Document) Markup(_ context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "<html data-doc=%q>", d.Name)
	for _, el := range d.elements {
		fmt.Fprintf(&b, "<div data-label=%q>%s</div>", el.Label, el.TextBody)
	}
	b.WriteString("</html>")

	return b.String(), nil
}

func (d *Document) Queries() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.queries
}

func query(elements []*Element, loc entity.Locator) []ports.Element {
	matched := make([]ports.Element, 0)
	for _, el := range elements {
		if el.matches(loc) {
			matched = append(matched, el)
		}
	}

	return matched
}

// View is a document opened as a separate browsing context.
type View struct {
	*Document

	mu     sync.Mutex
	closed bool
}

func NewView(name string, elements ...*Element) *View {
	return &View{Document: NewDocument(name, elements...)}
}

func (v *View) Close(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true

	return nil
}

func (v *View) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.closed
}

var ErrNoView = errors.New("no view was opened")

// Browser implements ports.BrowserManager over Documents. Pages maps a URL to the document
// Navigate loads; unknown URLs load an empty document.
type Browser struct {
	Pages     map[string]*Document
	LaunchErr error

	mu       sync.Mutex
	current  ports.Scope
	pending  []*View
	visited  []string
	launched int
	closed   int
	ready    bool
}

func NewBrowser() *Browser {
	return &Browser{Pages: make(map[string]*Document)}
}

func (b *Browser) Launch(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.launched++
	if b.LaunchErr != nil {
		return b.LaunchErr
	}

	b.ready = true
	b.current = NewDocument("about:blank")

	return nil
}

func (b *Browser) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed++
	b.ready = false

	return nil
}

func (b *Browser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return errors.New("browser not ready")
	}

	b.visited = append(b.visited, url)

	doc, ok := b.Pages[url]
	if !ok {
		doc = NewDocument(url)
	}
	b.current = doc

	return nil
}

func (b *Browser) Scope() ports.Scope {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return NewDocument("closed")
	}

	return b.current
}

func (b *Browser) EnterFrame(_ context.Context, frame ports.Element) error {
	el, ok := frame.(*Element)
	if !ok || el.Frame == nil {
		return errors.New("element has no content frame")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = el.Frame

	return nil
}

// QueueView makes the next OpenView call return v, provided its trigger succeeds.
func (b *Browser) QueueView(v *View) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, v)
}

func (b *Browser) OpenView(ctx context.Context, trigger func(ctx context.Context) error) (ports.View, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil, ErrNoView
	}

	v := b.pending[0]
	b.pending = b.pending[1:]

	return v, nil
}

func (b *Browser) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ready
}

func (b *Browser) Visited() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.visited...)
}

func (b *Browser) Launches() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.launched
}

func (b *Browser) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Narrator records narration lines as "<status> <message>".
type Narrator struct {
	mu    sync.Mutex
	lines []string
}

func (n *Narrator) Banner() {
	n.add("banner")
}

func (n *Narrator) Step(status entity.StepStatus, message string) {
	n.add(fmt.Sprintf("%s %s", status, message))
}

func (n *Narrator) Info(message string) {
	n.add("info " + message)
}

func (n *Narrator) Summary(report *entity.RunReport) {
	n.add(fmt.Sprintf("summary %s", report.Status))
}

func (n *Narrator) Lines() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.lines...)
}

func (n *Narrator) add(line string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.lines = append(n.lines, line)
}
