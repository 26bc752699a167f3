package heatmap

// Marker is one time bucket of replay intensity.
type Marker struct {
	StartMillis              int64   `json:"start_millis"`
	DurationMillis           int64   `json:"duration_millis"`
	IntensityScoreNormalized float64 `json:"intensity_score_normalized"`
}

// EndMillis returns the exclusive end of the bucket.
func (m Marker) EndMillis() int64 {
	return m.StartMillis + m.DurationMillis
}

// DecorationRange is a highlighted sub-range of the timeline.
type DecorationRange struct {
	VisibleTimeRangeStartMillis int64 `json:"visible_time_range_start_millis"`
	VisibleTimeRangeEndMillis   int64 `json:"visible_time_range_end_millis"`
}

// Summary is the normalized heatmap for a single video.
type Summary struct {
	VideoID                 string            `json:"video_id"`
	Markers                 []Marker          `json:"markers"`
	Decorations             []DecorationRange `json:"decorations,omitempty"`
	EstimatedDurationMillis int64             `json:"estimated_duration_millis"`
	Peak                    *Marker           `json:"peak,omitempty"`
	AverageIntensity        float64           `json:"average_intensity"`
}

// BatchItemResult is the outcome for one input of a batch fetch.
// Data is nil when the video has no heatmap or when Err is set.
type BatchItemResult struct {
	Key  string   `json:"key"`
	Data *Summary `json:"data"`
	Err  error    `json:"-"`
}
