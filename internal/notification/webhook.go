package notification

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Webhook posts notices as JSON to a configured endpoint. The gateway on the
// other side owns channel selection (SMS, app push, email).
type Webhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhook creates a webhook notifier
func NewWebhook(url string, logger *zap.Logger) *Webhook {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Webhook{client: client, url: url, logger: logger}
}

// Notify posts the notice. Errors are logged, never propagated.
func (w *Webhook) Notify(ctx context.Context, n Notice) {
	n.SentAt = time.Now()

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(n).
		Post(w.url)

	if err != nil {
		w.logger.Warn("notification webhook failed",
			zap.String("kind", string(n.Kind)),
			zap.String("report", n.ReportNumber),
			zap.Error(err))
		return
	}

	if resp.IsError() {
		w.logger.Warn("notification webhook rejected",
			zap.String("kind", string(n.Kind)),
			zap.String("report", n.ReportNumber),
			zap.Int("status", resp.StatusCode()))
	}
}
