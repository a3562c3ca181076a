package usecase

import (
	"context"
	"fmt"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/ports"
	"insights-exporter/internal/usecase/adapters"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	exportServiceName = "ExportService"
	exportTracer      = "usecase.export"

	// Teardown and the failure dump run after the run deadline may have passed.
	cleanupTimeout = 30 * time.Second
)

type ExportService struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	browser      adapters.BrowserService
	workflow     adapters.WorkflowService
	sink         adapters.DeliveryService
	narrator     ports.Narrator
	runTimeout   time.Duration
	artifactPath string
}

type ExportServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  adapters.BrowserService
	Workflow adapters.WorkflowService
	Sink     adapters.DeliveryService
	Narrator ports.Narrator
}

func NewExportService(params ExportServiceParams) *ExportService {
	return &ExportService{
		logger:       params.Logger.With(zap.String(logg.Layer, exportServiceName)),
		tracer:       otel.Tracer(exportTracer),
		browser:      params.Browser,
		workflow:     params.Workflow,
		sink:         params.Sink,
		narrator:     params.Narrator,
		runTimeout:   params.Config.AppConfig.RunTimeout,
		artifactPath: params.Config.AppConfig.DebugArtifactPath,
	}
}

// Run performs one export: it launches the browser, runs the dashboard workflow and delivers the
// payload once. The browser is closed on every path. When the workflow fails, the markup of the
// active page is dumped to the artifact path and nothing is delivered.
func (s *ExportService) Run(ctx context.Context) (report *entity.RunReport, err error) {
	const op = "Run"

	report = entity.NewRunReport()
	runID := report.ID.String()
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op, attribute.String("run_id", runID))
	defer func() {
		step.SetAttributes(attribute.String("status", string(report.Status)))
		step.End(err)
	}()

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	report.Status = entity.RunStatusRunning
	s.narrator.Banner()
	logger.Info("Export run started", zap.Duration("timeout", s.runTimeout))

	defer s.narrator.Summary(report)
	defer s.closeBrowser(logger)

	if err = s.browser.Launch(ctx); err != nil {
		err = apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
			apperr.MetaRunID:  runID,
		})
		s.fail(logger, report, err)

		return report, err
	}

	step.AddEvent("browser launched")

	payload, err := s.execute(ctx, report)
	if err != nil {
		s.fail(logger, report, err)
		s.dumpPage(logger, report)

		return report, err
	}

	report.Payload = &payload
	step.AddEvent("workflow done", attribute.Int("steps", len(report.Steps)))

	status, err := s.sink.Deliver(ctx, runID, payload)
	report.DeliveryStatus = status

	if err != nil {
		s.fail(logger, report, err)

		return report, err
	}

	report.Finish(entity.RunStatusDelivered)
	logger.Info("Export run delivered",
		zap.Int(logg.Status, status),
		zap.Int("skipped", report.Count(entity.StepStatusSkipped)))

	return report, nil
}

// execute runs the workflow, turning a panic into an internal error.
func (s *ExportService) execute(ctx context.Context, report *entity.RunReport) (payload entity.Payload, err error) {
	const op = "execute"

	defer func() {
		if r := recover(); r != nil {
			err = apperr.Wrap(op, apperr.CodeInternal, fmt.Errorf("panic: %v", r), map[string]any{
				apperr.MetaReason: "panic",
			})
		}
	}()

	if !s.browser.IsReady() {
		return entity.Payload{}, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	return s.workflow.Run(ctx, report)
}

func (s *ExportService) fail(logger *zap.Logger, report *entity.RunReport, err error) {
	report.Error = err.Error()
	report.Finish(entity.RunStatusFailed)

	logger.Error("Export run failed",
		zap.String("code", apperr.CodeOf(err)),
		zap.String("stage", apperr.Stage(err)),
		zap.Error(err))
}

// dumpPage writes the markup of the active scope for post-mortem inspection.
func (s *ExportService) dumpPage(logger *zap.Logger, report *entity.RunReport) {
	const op = "dumpPage"

	if s.artifactPath == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	markup, err := s.browser.Scope().Markup(ctx)
	if err != nil {
		logger.Warn("Failed to read page markup", zap.Error(err))

		return
	}

	if err := os.WriteFile(s.artifactPath, []byte(markup), 0o644); err != nil {
		err = apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "write_artifact_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaPath:   s.artifactPath,
		})
		logger.Warn("Failed to write page dump", zap.Error(err))

		return
	}

	report.ArtifactPath = s.artifactPath
	logger.Info("Page dump written", zap.String("path", s.artifactPath), zap.Int("bytes", len(markup)))
}

func (s *ExportService) closeBrowser(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.browser.Close(ctx); err != nil {
		logger.Warn("Failed to close browser", zap.Error(err))
	}
}
