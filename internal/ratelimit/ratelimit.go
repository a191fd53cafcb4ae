// Package ratelimit implements the sliding-window admission control used by
// the account service. Counters live behind the Store interface so a single
// process can run on the in-memory map while multi-instance deployments plug
// in the Redis store without touching call sites.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Action classes. Each carries an independent (max, window) policy and an
// independent key space.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionVerify   = "verify"
	ActionForgot   = "forgot"
	ActionResend   = "resend"
)

// Policy caps attempts per identifier within a rolling window.
type Policy struct {
	Max    int
	Window time.Duration
}

// DefaultPolicies returns the portal's per-action limits.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionRegister: {Max: 3, Window: time.Hour},
		ActionLogin:    {Max: 5, Window: 15 * time.Minute},
		ActionVerify:   {Max: 5, Window: 15 * time.Minute},
		ActionForgot:   {Max: 3, Window: time.Hour},
		ActionResend:   {Max: 3, Window: time.Hour},
	}
}

// Store tracks attempt counts per key. The first increment of a fresh window
// starts the counter at 1 with resetAt = now + window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
	Clear(ctx context.Context, key string) error
}

// Result reports an admission decision. RetryAfter is meaningful only when
// Allowed is false.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies per-action policies on top of a Store. Store failures are
// logged and fail open: the limiter is an abuse dampener, not the security
// boundary of last resort.
type Limiter struct {
	store    Store
	policies map[string]Policy
	logger   *zap.Logger
}

// NewLimiter builds a limiter. Nil policies fall back to DefaultPolicies.
func NewLimiter(store Store, policies map[string]Policy, logger *zap.Logger) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{store: store, policies: policies, logger: logger}
}

// Allow admits or denies one attempt for (action, identifier).
func (l *Limiter) Allow(ctx context.Context, action, identifier string) Result {
	policy, ok := l.policies[action]
	if !ok {
		return Result{Allowed: true}
	}
	count, resetAt, err := l.store.Incr(ctx, l.key(action, identifier), policy.Window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("action", action), zap.Error(err))
		return Result{Allowed: true}
	}
	if count > policy.Max {
		retry := time.Until(resetAt)
		if retry < time.Second {
			retry = time.Second
		}
		return Result{Allowed: false, RetryAfter: retry}
	}
	return Result{Allowed: true, Remaining: policy.Max - count}
}

// Clear lifts prior penalties for (action, identifier). Used after a
// successful verification or login.
func (l *Limiter) Clear(ctx context.Context, action, identifier string) {
	if err := l.store.Clear(ctx, l.key(action, identifier)); err != nil {
		l.logger.Warn("rate limit clear failed",
			zap.String("action", action), zap.Error(err))
	}
}

func (l *Limiter) key(action, identifier string) string {
	return action + ":" + strings.ToLower(strings.TrimSpace(identifier))
}
