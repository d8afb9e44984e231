package market

import (
	"strings"

	"trackmarket/model"
)

// FilterByStatus keeps the tracks with the given status; an empty status keeps all.
func FilterByStatus(tracks []*model.Track, status model.TrackStatus) []*model.Track {
	if status == "" {
		return tracks
	}
	out := make([]*model.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Search matches q against titles, case-insensitively.
func Search(tracks []*model.Track, q string) []*model.Track {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return tracks
	}
	out := make([]*model.Track, 0, len(tracks))
	for _, t := range tracks {
		if strings.Contains(strings.ToLower(t.Title), q) {
			out = append(out, t)
		}
	}
	return out
}

// Partitioned splits a catalogue by status. Every track lands in exactly one slice.
type Partitioned struct {
	Active  []*model.Track
	Sold    []*model.Track
	Pending []*model.Track
}

func Partition(tracks []*model.Track) Partitioned {
	var p Partitioned
	for _, t := range tracks {
		switch t.Status {
		case model.TrackStatusActive:
			p.Active = append(p.Active, t)
		case model.TrackStatusSold:
			p.Sold = append(p.Sold, t)
		default:
			p.Pending = append(p.Pending, t)
		}
	}
	return p
}

// Summarize counts tracks per status and averages their prices.
func Summarize(tracks []*model.Track) model.TrackSummary {
	p := Partition(tracks)
	s := model.TrackSummary{
		Total:   len(tracks),
		Active:  len(p.Active),
		Sold:    len(p.Sold),
		Pending: len(p.Pending),
	}
	if len(tracks) > 0 {
		var sum int64
		for _, t := range tracks {
			sum += t.Price
		}
		s.AveragePrice = sum / int64(len(tracks))
	}
	return s
}
