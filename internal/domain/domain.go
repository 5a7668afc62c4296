package domain

import (
	"fmt"
	"math"
	"time"
)

const DateLayout = "2006-01-02"

// Ad is one advertisement listing. JSON field names are the wire and
// storage format; media paths are uploads-relative ("/uploads/...") and
// owned exclusively by the ad that references them.
type Ad struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Img              string         `json:"img"`
	Video            string         `json:"video,omitempty"`
	AdditionalImages []string       `json:"additionalImages,omitempty"`
	AdditionalVideos []string       `json:"additionalVideos,omitempty"`
	Category         string         `json:"category"`
	Price            float64        `json:"price"`
	Contact          string         `json:"contact"`
	SupplierName     string         `json:"supplierName"`
	Email            string         `json:"email"`
	StartDate        string         `json:"startDate"`
	EndDate          string         `json:"endDate"`
	Views            int            `json:"views"`
	Approved         bool           `json:"approved"`
	History          []HistoryEvent `json:"history,omitempty"`
}

// HistoryEvent is one entry in an ad's opportunistic visit/action trail.
type HistoryEvent struct {
	Date   string `json:"date"`
	Action string `json:"action"`
	User   string `json:"user"`
}

// ArchivedAd is an ad snapshot appended to the history log on deletion.
type ArchivedAd struct {
	Ad
	DeletedAt time.Time `json:"deletedAt"`
}

// AdminProfile is the single admin record stored in admin.json.
// Password holds a bcrypt hash.
type AdminProfile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
	Role     string `json:"role"`
}

// MediaPaths returns every media path the ad owns, primary first.
func (a *Ad) MediaPaths() []string {
	paths := make([]string, 0, 2+len(a.AdditionalImages)+len(a.AdditionalVideos))
	if a.Img != "" {
		paths = append(paths, a.Img)
	}
	if a.Video != "" {
		paths = append(paths, a.Video)
	}
	paths = append(paths, a.AdditionalImages...)
	paths = append(paths, a.AdditionalVideos...)
	return paths
}

// ParseDate parses a stored calendar date. Values are interpreted in UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err == nil {
		return t, nil
	}
	// Older records carry full RFC 3339 timestamps.
	if t, rfcErr := time.Parse(time.RFC3339, value); rfcErr == nil {
		y, m, d := t.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
}

// Expired reports whether the ad's validity window has elapsed: its end
// date is strictly before now's calendar day. An ad whose end date equals
// today is still active.
func (a *Ad) Expired(now time.Time) bool {
	end, err := ParseDate(a.EndDate)
	if err != nil {
		// Unparseable window: keep the record.
		return false
	}
	return end.Before(startOfDay(now))
}

// DaysUntilExpiry returns the number of days until the ad's end date,
// rounded up. Negative for already-expired ads.
func (a *Ad) DaysUntilExpiry(now time.Time) (int, error) {
	end, err := ParseDate(a.EndDate)
	if err != nil {
		return 0, err
	}
	diff := end.Sub(startOfDay(now))
	return int(math.Ceil(diff.Hours() / 24)), nil
}

// ExpiringWithin reports whether the ad expires in [0, days] days from now.
func (a *Ad) ExpiringWithin(now time.Time, days int) bool {
	left, err := a.DaysUntilExpiry(now)
	if err != nil {
		return false
	}
	return left >= 0 && left <= days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
