package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log instead of delivering them.
// Used in development and when no SMTP relay is configured.
type LogNotifier struct {
	logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, email, name, code string) error {
	n.logger.Info("verification code notification",
		zap.String("email", email), zap.String("name", name), zap.String("code", code))
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, email, name, resetLink string) error {
	n.logger.Info("password reset notification",
		zap.String("email", email), zap.String("name", name), zap.String("reset_link", resetLink))
	return nil
}

func (n *LogNotifier) SendWelcome(_ context.Context, email, name string) error {
	n.logger.Info("welcome notification", zap.String("email", email), zap.String("name", name))
	return nil
}

func (n *LogNotifier) SendAdminNotification(_ context.Context, name, email, company string) error {
	n.logger.Info("admin notification",
		zap.String("name", name), zap.String("email", email), zap.String("company", company))
	return nil
}
