// Package sms delivers one-time passcodes through an external SMS gateway.
// Delivery is fire-and-forget from the caller's point of view; the gateway
// owns its own retry policy.
package sms

import "context"

// Notifier sends a one-time passcode to a phone number.
type Notifier interface {
	SendCode(ctx context.Context, phone, code string) error
}
