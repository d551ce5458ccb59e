package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_Freshness(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name        string
		expires     time.Time
		wantExpired bool
		wantTTLMin  time.Duration
		wantTTLMax  time.Duration
	}{
		{name: "max-age 60 just stored", expires: now.Add(time.Minute), wantTTLMin: 59 * time.Second, wantTTLMax: time.Minute},
		{name: "stale page", expires: now.Add(-time.Hour), wantExpired: true},
		{name: "expired a second ago", expires: now.Add(-time.Second), wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.wantExpired {
				t.Errorf("IsExpired() = %v, want %v", got, tt.wantExpired)
			}
			if got := entry.TTL(); got < tt.wantTTLMin || got > tt.wantTTLMax {
				t.Errorf("TTL() = %v, want between %v and %v", got, tt.wantTTLMin, tt.wantTTLMax)
			}
		})
	}
}
