// Package monitoring evaluates finished run reports and posts alerts to a
// webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/config"
	"github.com/referencias-work/curator-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertRunCanceled    AlertType = "run_canceled"
	AlertRunAborted     AlertType = "run_aborted"
)

// defaultMinProcessed applies when the config leaves MinProcessed unset.
const defaultMinProcessed = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"runId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run reports against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinProcessed <= 0 {
		cfg.MinProcessed = defaultMinProcessed
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a.cfg.WebhookURL != ""
}

// Evaluate checks a finished report against thresholds. runErr is the error
// returned alongside the report, if any.
func (a *Alerter) Evaluate(rep *model.Report, runErr error) []Alert {
	if rep == nil {
		return nil
	}
	var alerts []Alert
	now := time.Now().UTC()

	if runErr != nil {
		alerts = append(alerts, Alert{
			Type:     AlertRunAborted,
			Severity: "high",
			Message:  fmt.Sprintf("%s run aborted after %d batch(es): %v", rep.Mode, rep.Batches, runErr),
			RunID:    rep.ID,
			Details: map[string]any{
				"processed": rep.Processed,
				"batches":   rep.Batches,
			},
			Timestamp: now,
		})
	}

	if rep.Processed >= a.cfg.MinProcessed && a.cfg.FailureRateThreshold > 0 {
		rate := float64(rep.Failed) / float64(rep.Processed)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRunFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"%s run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed)",
					rep.Mode, rate*100, a.cfg.FailureRateThreshold*100, rep.Failed, rep.Processed,
				),
				RunID: rep.ID,
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       rep.Failed,
					"processed":    rep.Processed,
				},
				Timestamp: now,
			})
		}
	}

	if rep.Canceled {
		alerts = append(alerts, Alert{
			Type:     AlertRunCanceled,
			Severity: "low",
			Message:  fmt.Sprintf("%s run canceled after %d of %d queued item(s)", rep.Mode, rep.Processed, rep.Queued),
			RunID:    rep.ID,
			Details: map[string]any{
				"processed": rep.Processed,
				"queued":    rep.Queued,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
