package notification

import (
	"fmt"
	"time"
)

// Idempotency keys follow {type}:{entityType}:{entityId}[:{discriminator}].
// The discriminator rules, in order of precedence:
//   - single-fire events carry none, so re-enqueues collapse;
//   - time-anchored events (reminders) carry the fire time truncated to the
//     hour, so a retriggered scan within the same hour cannot duplicate one;
//   - explicit resends carry the current timestamp, so an operator resend is
//     intentionally allowed to create a new job.

// Key builds the idempotency key for a single-fire notification.
func Key(t Type, et EntityType, entityID int64) string {
	return fmt.Sprintf("%s:%s:%d", t, et, entityID)
}

// ReminderKey builds the key for a time-anchored notification.
func ReminderKey(t Type, et EntityType, entityID int64, fireAt time.Time) string {
	bucket := fireAt.UTC().Truncate(time.Hour).Format("2006-01-02T15")
	return fmt.Sprintf("%s:%s:%d:%s", t, et, entityID, bucket)
}

// ResendKey builds the key for an operator-triggered resend.
func ResendKey(t Type, et EntityType, entityID int64, now time.Time) string {
	return fmt.Sprintf("%s:%s:%d:resend-%d", t, et, entityID, now.UTC().UnixNano())
}
