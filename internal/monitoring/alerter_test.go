package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/referencias-work/curator-cli/internal/config"
	"github.com/referencias-work/curator-cli/internal/model"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5, MinProcessed: 5})

	rep := &model.Report{ID: "r1", Mode: model.ModeThumbnails, Processed: 20, Updated: 15, Failed: 5}
	assert.Empty(t, a.Evaluate(rep, nil))
	assert.Empty(t, a.Evaluate(nil, nil))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5, MinProcessed: 5})

	rep := &model.Report{ID: "r2", Mode: model.ModeLocation, Processed: 10, Failed: 8}
	alerts := a.Evaluate(rep, nil)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Equal(t, "r2", alerts[0].RunID)
	assert.Contains(t, alerts[0].Message, "80.0%")
}

func TestAlerter_Evaluate_MinimumProcessedRequired(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.1})

	// Only 3 processed, below the default minimum of 5.
	rep := &model.Report{Mode: model.ModeThumbnails, Processed: 3, Failed: 3}
	assert.Empty(t, a.Evaluate(rep, nil))
}

func TestAlerter_Evaluate_CanceledAndAborted(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.5})

	rep := &model.Report{Mode: model.ModeThumbnails, Processed: 2, Queued: 40, Batches: 1, Canceled: true}
	alerts := a.Evaluate(rep, errors.New("disk full"))
	require.Len(t, alerts, 2)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertRunAborted])
	assert.True(t, types[AlertRunCanceled])
	assert.Contains(t, alerts[0].Message, "disk full")
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert)) {
			assert.NotEmpty(t, alert.Type)
		}
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})
	assert.True(t, a.Enabled())

	alerts := []Alert{
		{Type: AlertRunFailureRate, Severity: "high", Message: "test alert 1"},
		{Type: AlertRunCanceled, Severity: "low", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.False(t, a.Enabled())

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunAborted, Message: "test"}})
	assert.Equal(t, 0, sent)
}
