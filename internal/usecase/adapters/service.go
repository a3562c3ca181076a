package adapters

import (
	"context"
	"insights-exporter/internal/entity"
	"insights-exporter/internal/ports"
)

type BrowserService interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Scope() ports.Scope
	IsReady() bool
}

type WorkflowService interface {
	Run(ctx context.Context, report *entity.RunReport) (entity.Payload, error)
}

type DeliveryService interface {
	Deliver(ctx context.Context, runID string, payload entity.Payload) (int, error)
}

type ExportService interface {
	Run(ctx context.Context) (*entity.RunReport, error)
}
