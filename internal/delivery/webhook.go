package delivery

import (
	"bytes"
	"context"
	"errors"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/pkg/apperr"
	"insights-exporter/pkg/logg"
	"insights-exporter/pkg/tracing"
	"io"
	"net/http"

	json "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	webhookName   = "Webhook"
	webhookTracer = "delivery.webhook"

	RunIDHeader = "X-Run-Id"
)

// Webhook posts the run payload to a workflow automation endpoint. It sends exactly one request
// per Deliver call and never retries.
type Webhook struct {
	logger *zap.Logger
	tracer trace.Tracer
	url    string
	client *http.Client
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewWebhook(params Params) *Webhook {
	return &Webhook{
		logger: params.Logger.With(zap.String(logg.Layer, webhookName)),
		tracer: otel.Tracer(webhookTracer),
		url:    params.Config.DeliveryConfig.WebhookURL,
		client: &http.Client{Timeout: params.Config.DeliveryConfig.Timeout},
	}
}

// Deliver posts payload as JSON and returns the response status. Any HTTP response counts as
// delivered; the status is logged and the body is ignored.
func (w *Webhook) Deliver(ctx context.Context, runID string, payload entity.Payload) (status int, err error) {
	const op = "Deliver"
	logger := w.logger.With(zap.String(logg.Operation, op), zap.String(logg.RunID, runID))

	ctx, step := tracing.StartSpan(ctx, w.tracer, logger, op, attribute.String("run_id", runID))
	defer func() {
		step.SetAttributes(attribute.Int("status", status))
		step.End(err)
	}()

	if w.url == "" {
		return 0, apperr.Wrap(op, apperr.CodeDeliveryFailed, errors.New("N8N_WEBHOOK_URL is not set"), map[string]any{
			apperr.MetaReason: "webhook_url_missing",
			apperr.MetaStage:  apperr.StageDelivery,
		})
	}

	body, err := json.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return 0, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "encode_payload_failed",
			apperr.MetaStage:  apperr.StageDelivery,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, apperr.Wrap(op, apperr.CodeDeliveryFailed, err, map[string]any{
			apperr.MetaReason: "build_request_failed",
			apperr.MetaStage:  apperr.StageDelivery,
		})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RunIDHeader, runID)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, apperr.Wrap(op, apperr.CodeDeliveryFailed, err, map[string]any{
			apperr.MetaReason: "post_failed",
			apperr.MetaStage:  apperr.StageDelivery,
		})
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Warn("Webhook answered with an error status", zap.Int(logg.Status, resp.StatusCode))
	} else {
		logger.Info("Payload delivered", zap.Int(logg.Status, resp.StatusCode), zap.Int("bytes", len(body)))
	}

	return resp.StatusCode, nil
}
