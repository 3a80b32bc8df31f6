package mq

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher only logs. It is the default when no broker is configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, n Notification) error {
	d.log.Info("notification",
		zap.String("id", n.ID),
		zap.String("kind", n.Kind),
		zap.Uint("poll_id", n.PollID),
		zap.String("key", n.IdempotencyKey),
		zap.Uints("recipients", n.RecipientIDs),
	)
	return nil
}

func (d *LogDispatcher) Close() error { return nil }
