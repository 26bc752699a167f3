package heatmap

import (
	"fmt"
	"sort"
)

// WatchURLPrefix is the watch page URL without the video id.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// WatchURL returns the watch page URL for id.
func WatchURL(id string) string {
	return WatchURLPrefix + id
}

// FormatMillis renders ms as m:ss, or h:mm:ss from one hour up.
func FormatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// TopMarkers returns up to n markers ordered by intensity, highest first.
// Ties go to the earlier start.
func TopMarkers(markers []Marker, n int) []Marker {
	if n <= 0 || len(markers) == 0 {
		return []Marker{}
	}
	out := append([]Marker(nil), markers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IntensityScoreNormalized != out[j].IntensityScoreNormalized {
			return out[i].IntensityScoreNormalized > out[j].IntensityScoreNormalized
		}
		return out[i].StartMillis < out[j].StartMillis
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// MarkersAbove keeps markers whose intensity is at least threshold, in timeline order.
func MarkersAbove(markers []Marker, threshold float64) []Marker {
	out := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.IntensityScoreNormalized >= threshold {
			out = append(out, m)
		}
	}
	return out
}
