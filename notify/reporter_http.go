package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/metrics"
)

const (
	notifierNameHTTP = "http_reporter"

	defaultReportTimeout = 5 * time.Second
)

var _ Notifier = &HTTPReporter{}

// HTTPReporter posts each notification as JSON to a presentation-layer HTTP endpoint.
// Reports are sent in the background: a slow or failing endpoint never delays the write.
type HTTPReporter struct {
	Logger polylog.Logger

	// The URL notifications are posted to.
	URL string

	// Timeout bounds each report. Defaults to 5s.
	Timeout time.Duration

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Notify sends the notification in the background.
func (r *HTTPReporter) Notify(_ context.Context, notification Notification) {
	logger := r.Logger.With(
		"component", "notification_reporter_http",
		"operation", notification.OperationName,
		"phase", string(notification.Phase),
	)

	serialized, err := json.Marshal(notification)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to serialize the notification. Skip reporting.")
		return
	}

	go func() {
		if err := r.send(serialized); err != nil {
			metrics.ObserveNotificationFailure(notifierNameHTTP)
			logger.Warn().Err(err).Msg("Failed to send the notification over HTTP. Skip reporting.")
		}
	}()
}

func (r *HTTPReporter) send(serialized []byte) error {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	// The report outlives the write that triggered it.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(serialized))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("error sending the notification: got HTTP status %d", resp.StatusCode)
	}

	return nil
}
