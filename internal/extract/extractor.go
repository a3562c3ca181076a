package extract

import (
	"context"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/interact"
	"insights-exporter/internal/locators"
	"insights-exporter/internal/ports"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	extractorName   = "Extractor"
	extractorTracer = "extract.extractor"
)

// Numbers stay json.Number so a parsed record renders back to the same text.
var decoder = json.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

type Extractor struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	browser      ports.BrowserManager
	primitives   *interact.Primitives
	locators     *locators.Table
	formatSteps  int
	gesturePause time.Duration
	findTimeout  time.Duration
	longTimeout  time.Duration
}

type Params struct {
	fx.In

	Config     *config.Config
	Logger     *zap.Logger
	Browser    ports.BrowserManager
	Primitives *interact.Primitives
	Locators   *locators.Table
}

func NewExtractor(params Params) *Extractor {
	wf := params.Config.WorkflowConfig

	return &Extractor{
		logger:       params.Logger.With(zap.String(logg.Layer, extractorName)),
		tracer:       otel.Tracer(extractorTracer),
		browser:      params.Browser,
		primitives:   params.Primitives,
		locators:     params.Locators,
		formatSteps:  wf.FormatSteps,
		gesturePause: wf.GesturePause,
		findTimeout:  wf.FindTimeout,
		longTimeout:  wf.LongFindTimeout,
	}
}

// ReadMetric returns the trimmed value text of the tile labelled label. Any absence, including an
// empty value, yields entity.ReconciliationSentinel.
func (x *Extractor) ReadMetric(ctx context.Context, scope ports.Scope, label string) string {
	const op = "ReadMetric"
	logger := x.logger.With(zap.String(logg.Operation, op), zap.String("tile", label))

	ctx, step := tracing.StartSpan(ctx, x.tracer, logger, op, attribute.String("tile", label))

	value, err := x.readMetric(ctx, scope, label)
	step.End(err)

	if err != nil || value == "" {
		logger.Warn("Metric unavailable, using sentinel", zap.Error(err))

		return entity.ReconciliationSentinel
	}

	logger.Info("Metric read", zap.String("value", value))

	return value
}

func (x *Extractor) readMetric(ctx context.Context, scope ports.Scope, label string) (string, error) {
	const op = "readMetric"

	tileLoc := x.locators.Get(locators.Tile).With(label)
	tile, found, err := x.primitives.Find(ctx, scope, tileLoc, x.longTimeout)
	if err != nil {
		return "", err
	}

	if !found {
		return "", interact.Miss(op, tileLoc, "tile_not_found")
	}

	valueLoc := x.locators.Get(locators.TileValue)
	value, found, err := x.primitives.FindWithin(ctx, tile, valueLoc, x.findTimeout)
	if err != nil {
		return "", err
	}

	if !found {
		return "", interact.Miss(op, valueLoc, "value_not_found")
	}

	text, err := value.Text(ctx)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "read_text_failed",
			apperr.MetaStage:  apperr.StageMetric,
		})
	}

	return strings.TrimSpace(text), nil
}

// Export downloads the data of the tile labelled label as JSON through the tile's export dialog.
// The dialog opens the data in a new view, which is read and closed before returning.
//
// A UI element missing along the way is reported as a not_found error; what it means for the
// run is left to the caller.
func (x *Extractor) Export(ctx context.Context, label string) (record entity.ReportRecord, err error) {
	const op = "Export"
	logger := x.logger.With(zap.String(logg.Operation, op), zap.String("tile", label))

	ctx, step := tracing.StartSpan(ctx, x.tracer, logger, op, attribute.String("tile", label))
	defer func() {
		step.End(err)
	}()

	scope := x.browser.Scope()

	tileLoc := x.locators.Get(locators.Tile).With(label)
	tile, found, err := x.primitives.Find(ctx, scope, tileLoc, x.longTimeout)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, x.miss(op, tileLoc, "tile_not_found")
	}

	// The actions button is only rendered while the tile is hovered.
	if err := tile.Hover(ctx); err != nil {
		logger.Debug("Hover over tile failed", zap.Error(err))
	}

	step.AddEvent("tile hovered")

	if _, err := x.primitives.FindAndClick(ctx, scope, x.locators.Get(locators.TileActions).With(label), x.longTimeout); err != nil {
		return nil, apperr.WithStage(err, apperr.StageExport)
	}

	if _, err := x.primitives.FindAndClick(ctx, scope, x.locators.Get(locators.DownloadData), x.longTimeout); err != nil {
		return nil, apperr.WithStage(err, apperr.StageExport)
	}

	if err := x.chooseJSON(ctx, scope); err != nil {
		return nil, apperr.WithStage(err, apperr.StageExport)
	}

	step.AddEvent("format selected", attribute.Int("format_steps", x.formatSteps))

	openLoc := x.locators.Get(locators.ExportOpen)
	open, found, err := x.primitives.Find(ctx, scope, openLoc, x.longTimeout)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, x.miss(op, openLoc, "open_button_not_found")
	}

	if err := open.ScrollIntoView(ctx); err != nil {
		logger.Debug("Scroll to open button failed", zap.Error(err))
	}

	view, err := x.browser.OpenView(ctx, func(ctx context.Context) error {
		ok, err := x.primitives.SafeClick(ctx, open)
		if err != nil {
			return err
		}

		if !ok {
			return x.miss(op, openLoc, "click_intercepted")
		}

		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) == "" {
			err = x.miss(op, openLoc, "view_not_opened")
		}

		return nil, apperr.WithStage(err, apperr.StageExport)
	}

	defer func() {
		if closeErr := view.Close(ctx); closeErr != nil {
			logger.Warn("Failed to close export view", zap.Error(closeErr))
		}
	}()

	text, err := x.readBody(ctx, view)
	if err != nil {
		return nil, err
	}

	record = Parse(text)
	logger.Info("Export read", zap.Int("bytes", len(text)))

	return record, nil
}

// chooseJSON opens the format list of the export dialog and moves the selection formatSteps
// entries down, where JSON sits.
func (x *Extractor) chooseJSON(ctx context.Context, scope ports.Scope) error {
	const op = "chooseJSON"

	wrapperLoc := x.locators.Get(locators.ExportFormat)
	wrapper, found, err := x.primitives.Find(ctx, scope, wrapperLoc, x.findTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, wrapperLoc, "format_selector_not_found")
	}

	caretLoc := x.locators.Get(locators.FormatCaret)
	caret, found, err := x.primitives.FindWithin(ctx, wrapper, caretLoc, x.findTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, caretLoc, "format_caret_not_found")
	}

	ok, err := x.primitives.SafeClick(ctx, caret)
	if err != nil {
		return err
	}

	if !ok {
		return interact.Miss(op, caretLoc, "click_intercepted")
	}

	inputLoc := x.locators.Get(locators.FormatInput)
	input, found, err := x.primitives.FindWithin(ctx, wrapper, inputLoc, x.findTimeout)
	if err != nil {
		return err
	}

	if !found {
		return interact.Miss(op, inputLoc, "format_input_not_found")
	}

	if err := x.primitives.Press(ctx, input, x.gesturePause, interact.Repeat("ArrowDown", x.formatSteps)...); err != nil {
		return err
	}

	return x.primitives.Press(ctx, input, x.gesturePause, "Enter")
}

// readBody returns the preformatted text of the view, or "" when the view has none.
func (x *Extractor) readBody(ctx context.Context, view ports.View) (string, error) {
	const op = "readBody"

	body, found, err := x.primitives.Find(ctx, view, x.locators.Get(locators.ExportBody), x.longTimeout)
	if err != nil {
		return "", err
	}

	if !found {
		x.logger.Warn("Export view has no body", zap.String(logg.Operation, op))

		return "", nil
	}

	text, err := body.Text(ctx)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "read_text_failed",
			apperr.MetaStage:  apperr.StageExport,
		})
	}

	return text, nil
}

func (x *Extractor) miss(op string, loc entity.Locator, reason string) error {
	return apperr.WithStage(interact.Miss(op, loc, reason), apperr.StageExport)
}

// Parse decodes text as JSON. Empty or malformed text yields entity.EmptyRecord; Parse never fails.
func Parse(text string) entity.ReportRecord {
	data := []byte(strings.TrimSpace(text))
	if len(data) == 0 || !decoder.Valid(data) {
		return entity.EmptyRecord()
	}

	var record entity.ReportRecord
	if err := decoder.Unmarshal(data, &record); err != nil {
		return entity.EmptyRecord()
	}

	return record
}
