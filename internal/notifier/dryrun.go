package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DryRunNotifier prints alerts instead of delivering them
type DryRunNotifier struct {
	out io.Writer
}

// NewDryRunNotifier creates a dry-run notifier writing to out (stdout when nil)
func NewDryRunNotifier(out io.Writer) *DryRunNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &DryRunNotifier{out: out}
}

// Notify prints the alert that would be sent
func (n *DryRunNotifier) Notify(_ context.Context, alert Alert) error {
	msg := formatAlert(alert)
	if _, err := fmt.Fprintf(n.out, "--- Alert ---\n%s\n", msg); err != nil {
		return fmt.Errorf("writing alert: %w", err)
	}
	return nil
}
