package usecase

import (
	"insights-exporter/internal/config"
	"insights-exporter/internal/ports"
	"insights-exporter/internal/usecase/adapters"
	"insights-exporter/internal/workflow"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	Export   adapters.ExportService
	Browser  adapters.BrowserService
	Delivery adapters.DeliveryService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Browser  ports.BrowserManager
	Workflow *workflow.Orchestrator
	Sink     ports.Sink
	Narrator ports.Narrator
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Export:   factory.CreateExportService(),
		Browser:  factory.CreateBrowserService(),
		Delivery: factory.CreateDeliveryService(),
	}
}
