// Package notifier defines the outbound email contract consumed by the
// account service.
package notifier

import "context"

// Notifier delivers transactional mail. Failures are surfaced to the caller;
// the account service decides which deliveries are allowed to fail silently.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, name, code string) error
	SendPasswordReset(ctx context.Context, email, name, resetLink string) error
	SendWelcome(ctx context.Context, email, name string) error
	SendAdminNotification(ctx context.Context, name, email, company string) error
}
