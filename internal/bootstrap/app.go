package bootstrap

import (
	"insights-exporter/internal/browser"
	"insights-exporter/internal/config"
	"insights-exporter/internal/console"
	"insights-exporter/internal/delivery"
	"insights-exporter/internal/extract"
	"insights-exporter/internal/gadget"
	"insights-exporter/internal/interact"
	"insights-exporter/internal/locators"
	"insights-exporter/internal/ports"
	"insights-exporter/internal/usecase"
	"insights-exporter/internal/workflow"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

func NewApp() *fx.App {
	return fx.New(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,
			newLocators,

			fx.Annotate(browser.NewManager, fx.As(new(ports.BrowserManager))),
			fx.Annotate(delivery.NewWebhook, fx.As(new(ports.Sink))),
			fx.Annotate(console.NewNarrator, fx.As(new(ports.Narrator))),

			interact.NewPrimitives,
			gadget.NewSwitcher,
			extract.NewExtractor,
			workflow.NewOrchestrator,

			usecase.NewUsecase,
		),

		fx.Invoke(
			// Providers are lazy; the tracer provider must exist before the first span.
			func(*sdktrace.TracerProvider) {},
			runExport,
		),

		fx.StartTimeout(10*time.Second),
		fx.StopTimeout(45*time.Second),
	)
}

func newLocators(config *config.Config) (*locators.Table, error) {
	return locators.LoadFile(config.InsightsConfig.LocatorsFile)
}
