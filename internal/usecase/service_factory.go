package usecase

import (
	"insights-exporter/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateExportService() adapters.ExportService {
	return NewExportService(ExportServiceParams{
		Browser:  f.deps.Browser,
		Workflow: f.deps.Workflow,
		Sink:     f.deps.Sink,
		Narrator: f.deps.Narrator,
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
	})
}

func (f *serviceFactory) CreateBrowserService() adapters.BrowserService {
	return f.deps.Browser
}

func (f *serviceFactory) CreateDeliveryService() adapters.DeliveryService {
	return f.deps.Sink
}
