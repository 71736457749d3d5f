package notification

import (
	"context"
	"log/slog"
)

// LogProvider writes messages to the log instead of a real email/SMS
// provider. The default for local runs.
type LogProvider struct {
	log *slog.Logger
}

func NewLogProvider(log *slog.Logger) *LogProvider {
	return &LogProvider{log: log}
}

func (p *LogProvider) Send(_ context.Context, msg Message) error {
	p.log.Info("sending notification",
		"channel", msg.Channel,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
	)
	return nil
}
