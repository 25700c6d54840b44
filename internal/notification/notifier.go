// Package notification delivers trend reversal alerts to external channels.
package notification

import (
	"context"
	"log/slog"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "INFO"
	AlertWarning AlertLevel = "WARNING"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`

	Series   string  `json:"series"` // exchange:token:tf
	ReportID string  `json:"report_id"`
	From     string  `json:"from"` // previous direction
	To       string  `json:"to"`
	Slope    float64 `json:"slope"`
	Start    int     `json:"start_index"` // window index where the new segment begins
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("trend alert",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("series", alert.Series),
		slog.String("report_id", alert.ReportID))
	return nil
}
