package notifier

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies an alert type
type Kind string

const (
	// KindStructuralChange means extraction found meetings but no statement links
	KindStructuralChange Kind = "structural_change"
)

// Alert is a run-level notification
type Alert struct {
	Kind     Kind      `json:"kind"`
	RunID    string    `json:"run_id"`
	Message  string    `json:"message"`
	Meetings int       `json:"meetings"`
	Source   string    `json:"source,omitempty"`
	Time     time.Time `json:"time"`
}

// Notifier defines the interface for delivering alerts
type Notifier interface {
	// Notify delivers one alert
	Notify(ctx context.Context, alert Alert) error
}

// maxAlertLength keeps formatted alerts readable in chat webhooks
const maxAlertLength = 500

// formatAlert renders an alert as a short human-readable message
func formatAlert(a Alert) string {
	msg := fmt.Sprintf("[fomc-docs] %s\n", a.Kind)
	msg += a.Message + "\n"
	if a.Meetings > 0 {
		msg += fmt.Sprintf("Meetings inspected: %d\n", a.Meetings)
	}
	if a.Source != "" {
		msg += fmt.Sprintf("Source: %s\n", a.Source)
	}
	if a.RunID != "" {
		msg += fmt.Sprintf("Run: %s\n", a.RunID)
	}

	if len(msg) > maxAlertLength {
		msg = msg[:maxAlertLength-3] + "..."
	}
	return msg
}

// StructuralChange builds the alert raised when no statement links were found
func StructuralChange(runID, source string, meetings int, now time.Time) Alert {
	return Alert{
		Kind:     KindStructuralChange,
		RunID:    runID,
		Message:  "No statement links were found for any meeting; the calendar markup or link labels may have changed.",
		Meetings: meetings,
		Source:   source,
		Time:     now.UTC(),
	}
}
