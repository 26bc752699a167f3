package heatmap

import "sort"

// Normalize builds a Summary from a located markers list.
func Normalize(videoID string, list *MarkersList) *Summary {
	if list == nil {
		return &Summary{VideoID: videoID, Markers: []Marker{}}
	}
	markers := NormalizeMarkers(list.Markers)
	var decorations []DecorationRange
	if list.MarkersDecoration != nil && len(list.MarkersDecoration.TimedMarkerDecorations) > 0 {
		decorations = NormalizeDecorations(list.MarkersDecoration.TimedMarkerDecorations)
	}
	return &Summary{
		VideoID:                 videoID,
		Markers:                 markers,
		Decorations:             decorations,
		EstimatedDurationMillis: EstimateDuration(markers, list.Markers),
		Peak:                    Peak(markers),
		AverageIntensity:        AverageIntensity(markers),
	}
}

// NormalizeMarkers converts raw markers into Markers sorted by start time.
// Entries without a usable start are dropped. Equal starts keep input order.
func NormalizeMarkers(raw []RawMarker) []Marker {
	out := make([]Marker, 0, len(raw))
	for _, r := range raw {
		start, ok := millis(r.StartMillis)
		if !ok {
			continue
		}
		duration, _ := millis(r.DurationMillis)
		var intensity float64
		if r.IntensityScoreNormalized != nil {
			intensity = float64(*r.IntensityScoreNormalized)
		}
		out = append(out, Marker{
			StartMillis:              start,
			DurationMillis:           duration,
			IntensityScoreNormalized: intensity,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartMillis < out[j].StartMillis
	})
	return out
}

// NormalizeDecorations keeps ranges with both bounds and sorts them by start.
func NormalizeDecorations(raw []RawDecoration) []DecorationRange {
	out := make([]DecorationRange, 0, len(raw))
	for _, r := range raw {
		start, ok := millis(r.VisibleTimeRangeStartMillis)
		if !ok {
			continue
		}
		end, ok := millis(r.VisibleTimeRangeEndMillis)
		if !ok {
			continue
		}
		out = append(out, DecorationRange{
			VisibleTimeRangeStartMillis: start,
			VisibleTimeRangeEndMillis:   end,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].VisibleTimeRangeStartMillis < out[j].VisibleTimeRangeStartMillis
	})
	return out
}

// Peak returns the first marker with the highest intensity, or nil.
func Peak(markers []Marker) *Marker {
	if len(markers) == 0 {
		return nil
	}
	best := markers[0]
	for _, m := range markers[1:] {
		if m.IntensityScoreNormalized > best.IntensityScoreNormalized {
			best = m
		}
	}
	return &best
}

// AverageIntensity is the arithmetic mean of marker intensities, 0 when empty.
func AverageIntensity(markers []Marker) float64 {
	if len(markers) == 0 {
		return 0
	}
	var sum float64
	for _, m := range markers {
		sum += m.IntensityScoreNormalized
	}
	return sum / float64(len(markers))
}

// EstimateDuration adds the duration of the last raw marker to the start of
// the last normalized marker. The raw entry is used even when it was dropped
// during normalization.
func EstimateDuration(markers []Marker, raw []RawMarker) int64 {
	if len(markers) == 0 || len(raw) == 0 {
		return 0
	}
	duration, _ := millis(raw[len(raw)-1].DurationMillis)
	return markers[len(markers)-1].StartMillis + duration
}
