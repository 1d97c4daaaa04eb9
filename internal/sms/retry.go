package sms

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryingNotifier wraps a Notifier with capped exponential backoff. Gateway
// hiccups are retried a few times before the send is abandoned; the OTP flow
// never blocks on delivery either way.
type RetryingNotifier struct {
	next        Notifier
	maxAttempts uint64
	baseDelay   time.Duration
}

// NewRetryingNotifier wraps next with up to maxAttempts total attempts starting
// at baseDelay backoff. maxAttempts 0 defaults to 3, baseDelay 0 to 500ms.
func NewRetryingNotifier(next Notifier, maxAttempts uint64, baseDelay time.Duration) *RetryingNotifier {
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &RetryingNotifier{next: next, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// SendCode sends through the wrapped notifier, retrying transient failures.
func (n *RetryingNotifier) SendCode(ctx context.Context, phone, code string) error {
	backoff := retry.WithMaxRetries(n.maxAttempts-1, retry.NewExponential(n.baseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(n.next.SendCode(ctx, phone, code))
	})
}
