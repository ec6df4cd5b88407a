package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived tells a user credits arrived from another wallet.
	KindTransferReceived = "transfer_received"
	// KindRequestDecided tells a user their top-up or withdrawal was decided.
	KindRequestDecided = "request_decided"
	// KindLoanDecided tells a user their loan application was decided.
	KindLoanDecided = "loan_decided"
	// KindLoanRepaid confirms a loan was settled.
	KindLoanRepaid = "loan_repaid"
)

// Message describes a notification payload. Destination is the user id; the
// delivery channel is the notifier's concern.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured log. It stands in
// until a real push channel exists.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
