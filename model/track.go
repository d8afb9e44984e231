package model

import (
	"fmt"
	"time"
)

// TrackStatus is the sale state of a listed track.
type TrackStatus string

const (
	TrackStatusActive  TrackStatus = "active"
	TrackStatusSold    TrackStatus = "sold"
	TrackStatusPending TrackStatus = "pending"
)

// Valid reports whether s is one of the known statuses.
func (s TrackStatus) Valid() bool {
	switch s {
	case TrackStatusActive, TrackStatusSold, TrackStatusPending:
		return true
	}
	return false
}

// Track represents an audio track offered for sale.
type Track struct {
	ID          string      `json:"id"`
	UserID      int64       `json:"userId"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist,omitempty"`
	Genre       string      `json:"genre"`
	FileName    string      `json:"fileName"`
	FileSize    int64       `json:"fileSize"`
	DurationSec int         `json:"durationSec"`
	Price       int64       `json:"price"` // whole rubles
	Status      TrackStatus `json:"status"`
	ObjectKey   string      `json:"-"` // key in the object store, empty when the upload failed
	CDNURL      string      `json:"cdnUrl,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	SoldAt      *time.Time  `json:"soldAt,omitempty"`
}

// Duration renders the track length as m:ss.
func (t *Track) Duration() string {
	return FormatDuration(t.DurationSec)
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

// TrackView is the API shape of a track, with the rendered duration.
type TrackView struct {
	*Track
	Duration string `json:"duration"`
}

// View wraps the track for JSON responses.
func (t *Track) View() TrackView {
	return TrackView{Track: t, Duration: t.Duration()}
}

// TrackSummary aggregates a user's catalogue for the dashboard.
type TrackSummary struct {
	Total        int   `json:"total"`
	Active       int   `json:"active"`
	Sold         int   `json:"sold"`
	Pending      int   `json:"pending"`
	AveragePrice int64 `json:"averagePrice"`
}
