package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/rice-reservation/internal/queue"
)

// Mailer hands a magic link to the email channel.
type Mailer interface {
	SendMagicLink(ctx context.Context, msg queue.MagicLinkMessage) error
}

// LogMailer writes magic links to the log. It stands in for the mail
// pipeline in development.
type LogMailer struct{ Log *zap.Logger }

func (m LogMailer) SendMagicLink(_ context.Context, msg queue.MagicLinkMessage) error {
	m.Log.Info("magic link issued",
		zap.String("to", msg.To),
		zap.String("url", msg.URL),
		zap.String("expires_at", msg.ExpiresAt))
	return nil
}
