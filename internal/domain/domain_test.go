package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)

	tests := []struct {
		name    string
		endDate string
		want    bool
	}{
		{"yesterday", "2025-06-14", true},
		{"today", "2025-06-15", false},
		{"tomorrow", "2025-06-16", false},
		{"long past", "2024-01-01", true},
		{"unparseable keeps record", "not-a-date", false},
		{"rfc3339 past", "2025-06-10T00:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := &Ad{EndDate: tt.endDate}
			assert.Equal(t, tt.want, ad.Expired(now))
		})
	}
}

func TestDaysUntilExpiry(t *testing.T) {
	now := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)

	ad := &Ad{EndDate: "2025-06-20"}
	days, err := ad.DaysUntilExpiry(now)
	require.NoError(t, err)
	assert.Equal(t, 5, days)

	ad = &Ad{EndDate: "2025-06-15"}
	days, err = ad.DaysUntilExpiry(now)
	require.NoError(t, err)
	assert.Equal(t, 0, days)

	ad = &Ad{EndDate: "2025-06-13"}
	days, err = ad.DaysUntilExpiry(now)
	require.NoError(t, err)
	assert.Equal(t, -2, days)

	ad = &Ad{EndDate: "nonsense"}
	_, err = ad.DaysUntilExpiry(now)
	assert.Error(t, err)
}

func TestExpiringWithin(t *testing.T) {
	now := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

	assert.True(t, (&Ad{EndDate: "2025-06-15"}).ExpiringWithin(now, 5))
	assert.True(t, (&Ad{EndDate: "2025-06-20"}).ExpiringWithin(now, 5))
	assert.False(t, (&Ad{EndDate: "2025-06-21"}).ExpiringWithin(now, 5))
	// Already expired ads are handled by deletion, not reminders.
	assert.False(t, (&Ad{EndDate: "2025-06-14"}).ExpiringWithin(now, 5))
}

func TestMediaPaths(t *testing.T) {
	ad := &Ad{
		Img:              "/uploads/a.jpg",
		Video:            "/uploads/a.mp4",
		AdditionalImages: []string{"/uploads/b.jpg", "/uploads/c.jpg"},
		AdditionalVideos: []string{"/uploads/b.mp4"},
	}
	assert.Equal(t, []string{
		"/uploads/a.jpg", "/uploads/a.mp4",
		"/uploads/b.jpg", "/uploads/c.jpg", "/uploads/b.mp4",
	}, ad.MediaPaths())

	assert.Empty(t, (&Ad{}).MediaPaths())
}
