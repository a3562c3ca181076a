package bootstrap

import (
	"context"
	"insights-exporter/internal/usecase"
	"insights-exporter/pkg/logg"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runExport performs a single export after start-up and shuts the application down when it
// returns. A failed run is logged and reported by the narrator; the process still exits cleanly.
func runExport(lc fx.Lifecycle, shutdowner fx.Shutdowner, service *usecase.Service, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("Starting insights export...")

			go func() {
				defer close(done)

				report, err := service.Export.Run(ctx)
				if err != nil {
					logger.Error("Export finished with an error", zap.Error(err))
				} else {
					logger.Info("Export finished",
						zap.String(logg.RunID, report.ID.String()),
						zap.Int(logg.Status, report.DeliveryStatus))
				}

				if err := shutdowner.Shutdown(); err != nil {
					logger.Error("Failed to request shutdown", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("Shutting down insights exporter...")

			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
