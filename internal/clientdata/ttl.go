package clientdata

import "time"

// DefaultTTL applies when a caller stores a value without an explicit lifetime.
// Filed statements are rarely amended, so entries live for a month.
const DefaultTTL = 30 * 24 * time.Hour

// TTLFromDays converts a configured expiry in days, falling back to DefaultTTL.
func TTLFromDays(days int) time.Duration {
	if days <= 0 {
		return DefaultTTL
	}
	return time.Duration(days) * 24 * time.Hour
}
