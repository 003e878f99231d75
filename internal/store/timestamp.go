// Timestamp adapter between wall-clock time.Time values and the store's
// native representation (Unix milliseconds in the indexed columns). All
// conversions at the read/write boundary go through these helpers so the
// tolerance rules live in one place.
package store

import "time"

// UnixMillis converts t to the store-native millisecond representation.
// The zero time maps to 0, which FromMillis treats as "missing".
func UnixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis converts a store-native timestamp back to wall-clock time.
// Missing or corrupt values (zero or negative) are substituted with the
// current time rather than failing the read: a session with a mangled
// timestamp should still render, just sorted as recent.
func FromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
