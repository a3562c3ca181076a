package bootstrap

import (
	"context"
	"errors"
	"insights-exporter/internal/config"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const serviceName = "insights-exporter"

// newTraceProvider exports spans to TRACE_FILE. Without it spans are still recorded, so span
// events show up in the logs, but nothing is written.
func newTraceProvider(lc fx.Lifecycle, config *config.Config, logger *zap.Logger) (*sdktrace.TracerProvider, error) {
	var (
		out  io.Writer = io.Discard
		file *os.File
	)

	if path := config.AppConfig.TraceFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}

		out, file = f, f
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		logger.Fatal("Failed to create trace exporter", zap.Error(err))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		logger.Fatal("Failed to create resource", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)

			if file != nil {
				err = errors.Join(err, file.Close())
			}

			return err
		},
	})

	return tp, nil
}
