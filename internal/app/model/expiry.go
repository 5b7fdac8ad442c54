package model

import "time"

// Fixed delete-time choices offered after an upload, in minutes.
const (
	TTLTenMinutes = 10
	TTLOneHour    = 60
	TTLOneDay     = 24 * 60
	TTLOneWeek    = 7 * 24 * 60
	TTLNever      = 0
)

// TTLChoices is the order the delete-time buttons are shown in.
var TTLChoices = []int{TTLTenMinutes, TTLOneHour, TTLOneDay, TTLOneWeek, TTLNever}

// ExpiryFor returns the deadline for a record created at now. A zero ttl
// means the record never expires and yields nil.
func ExpiryFor(now time.Time, ttlMinutes int) *time.Time {
	if ttlMinutes <= 0 {
		return nil
	}
	at := now.Add(time.Duration(ttlMinutes) * time.Minute).UTC()
	return &at
}

// Expired reports whether a nullable deadline has elapsed at now.
func Expired(expiryAt *time.Time, now time.Time) bool {
	return expiryAt != nil && !now.Before(*expiryAt)
}

// TTLLabel renders a ttl for buttons and replies.
func TTLLabel(ttlMinutes int) string {
	switch {
	case ttlMinutes <= 0:
		return "Never"
	case ttlMinutes%(24*60) == 0:
		days := ttlMinutes / (24 * 60)
		if days == 1 {
			return "24 hours"
		}
		return itoa(days) + " days"
	case ttlMinutes%60 == 0:
		hours := ttlMinutes / 60
		if hours == 1 {
			return "1 hour"
		}
		return itoa(hours) + " hours"
	default:
		return itoa(ttlMinutes) + " min"
	}
}
