package store

import (
	"testing"
	"time"
)

func TestUnixMillis_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	got := FromMillis(UnixMillis(ts))
	if !got.Equal(ts) {
		t.Fatalf("round trip mismatch: %v != %v", got, ts)
	}
}

func TestUnixMillis_ZeroTime(t *testing.T) {
	if ms := UnixMillis(time.Time{}); ms != 0 {
		t.Fatalf("zero time should encode as 0, got %d", ms)
	}
}

func TestFromMillis_MissingSubstitutesNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	for _, ms := range []int64{0, -1} {
		got := FromMillis(ms)
		if got.Before(before) {
			t.Fatalf("FromMillis(%d) = %v, expected a current timestamp", ms, got)
		}
	}
}
