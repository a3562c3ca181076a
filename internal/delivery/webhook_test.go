package delivery

import (
	"context"
	"encoding/json"
	"insights-exporter/internal/config"
	"insights-exporter/internal/entity"
	"insights-exporter/pkg/apperr"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capture struct {
	mu       sync.Mutex
	requests int
	body     []byte
	header   http.Header
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.requests++
		c.body, _ = io.ReadAll(r.Body)
		c.header = r.Header.Clone()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"Workflow was started"}`))
	}
}

func newTestWebhook(t *testing.T, url string) *Webhook {
	t.Helper()

	return NewWebhook(Params{
		Logger: zaptest.NewLogger(t),
		Config: &config.Config{
			DeliveryConfig: &config.DeliveryConfig{
				WebhookURL: url,
				Timeout:    time.Second,
			},
		},
	})
}

func TestDeliver(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	payload := entity.NewPayload("37",
		map[string]any{"rows": []any{map[string]any{"site": "Donny's Bar", "value": json.Number("12")}}},
		nil)

	status, err := newTestWebhook(t, server.URL).Deliver(context.Background(), "run-1", payload)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	c.mu.Lock()
	defer c.mu.Unlock()

	assert.Equal(t, 1, c.requests)
	assert.Equal(t, "application/json", c.header.Get("Content-Type"))
	assert.Equal(t, "run-1", c.header.Get(RunIDHeader))
	assert.JSONEq(t,
		`{"no_of_reconciliations":"37","data":{"rows":[{"site":"Donny's Bar","value":12}]},"data1":[]}`,
		string(c.body))
}

func TestDeliverDoesNotRetry(t *testing.T) {
	c := &capture{}
	server := httptest.NewServer(c.handler(http.StatusInternalServerError))
	defer server.Close()

	status, err := newTestWebhook(t, server.URL).Deliver(context.Background(), "run-2", entity.NewPayload("", nil, nil))

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, status)

	c.mu.Lock()
	defer c.mu.Unlock()

	assert.Equal(t, 1, c.requests)
	assert.JSONEq(t, `{"no_of_reconciliations":"0","data":[],"data1":[]}`, string(c.body))
}

func TestDeliverFailures(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		status, err := newTestWebhook(t, "").Deliver(context.Background(), "run-3", entity.NewPayload("1", nil, nil))

		require.Error(t, err)
		assert.Zero(t, status)
		assert.Equal(t, apperr.CodeDeliveryFailed, apperr.CodeOf(err))
		assert.Equal(t, "webhook_url_missing", apperr.Reason(err))
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		status, err := newTestWebhook(t, url).Deliver(context.Background(), "run-4", entity.NewPayload("1", nil, nil))

		require.Error(t, err)
		assert.Zero(t, status)
		assert.Equal(t, apperr.CodeDeliveryFailed, apperr.CodeOf(err))
		assert.Equal(t, apperr.StageDelivery, apperr.Stage(err))
	})
}
