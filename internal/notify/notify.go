// Package notify sends alert notifications to monitor contacts. The
// only channel implemented is email; the Sink interface leaves room
// for the other channels monitor contacts can express a preference
// for (sms, call, slack, webhook) without requiring them.
package notify

import (
	"context"

	"github.com/sentrymon/engine/internal/store"
)

// Event is the payload a Sink renders into a message body. Stage
// distinguishes open/upgrade/recover/reminder so a Sink can format
// each differently without the caller needing channel-specific logic.
type Event struct {
	Stage   string // open, upgrade, recover, reminder
	Alert   *store.Alert
	Monitor *store.Monitor
}

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Sent      bool
	MessageID string
	Err       error
}

// Sink delivers one notification to one recipient. Implementations
// must be safe to call concurrently and should not themselves dedupe —
// the Alert Manager owns the at-least-once/20-hour-window contract via
// NotificationLog and last_notification_at.
type Sink interface {
	Send(ctx context.Context, recipient store.Contact, ev Event) Outcome
}
