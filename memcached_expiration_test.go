package sessionstore

import (
	"math"
	"testing"
	"time"
)

func TestCalculateMemcachedExpiration(t *testing.T) {
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      int32
	}{
		{
			name:      "Short Expiration (1 hour from now)",
			expiresAt: now.Add(time.Hour),
			want:      3600, // Delta
		},
		{
			name:      "Long Expiration (60 days from now) - Use Timestamp",
			expiresAt: now.Add(60 * 24 * time.Hour),
			want:      int32(now.Add(60 * 24 * time.Hour).Unix()), // Timestamp
		},
		{
			name:      "Exact 30 Days (Delta)",
			expiresAt: now.Add(30 * 24 * time.Hour),
			want:      int32(30 * 24 * 3600), // Delta
		},
		{
			name:      "30 Days + 1 Second (Timestamp)",
			expiresAt: now.Add(30*24*time.Hour + time.Second),
			want:      int32(now.Add(30*24*time.Hour + time.Second).Unix()), // Timestamp
		},
		{
			name:      "Beyond 2038 is clamped",
			expiresAt: time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
			want:      math.MaxInt32,
		},
		{
			name:      "Sub-second remainder rounds up",
			expiresAt: now.Add(1500 * time.Millisecond),
			want:      2,
		},
		{
			name:      "Less than a second is not never",
			expiresAt: now.Add(time.Millisecond),
			want:      1,
		},
		{
			name:      "Already expired",
			expiresAt: now.Add(-time.Minute),
			want:      -1,
		},
		{
			name:      "Expires now",
			expiresAt: now,
			want:      -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateMemcachedExpiration(now, tt.expiresAt)
			if got != tt.want {
				t.Errorf("calculateMemcachedExpiration() = %v, want %v", got, tt.want)
			}
		})
	}
}
