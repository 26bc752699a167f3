package heatmap

import (
	"bytes"
	"encoding/json"
)

// MarkersList is the macroMarkersListEntity.markersList payload. Every field
// is optional; Normalize decides what to keep.
type MarkersList struct {
	Markers           []RawMarker        `json:"markers"`
	MarkersDecoration *MarkersDecoration `json:"markersDecoration"`
}

// RawMarker is a marker as served upstream, with string-typed millis.
type RawMarker struct {
	StartMillis              *LooseString `json:"startMillis"`
	DurationMillis           *LooseString `json:"durationMillis"`
	IntensityScoreNormalized *LooseFloat  `json:"intensityScoreNormalized"`
}

// MarkersDecoration holds the optional highlighted ranges.
type MarkersDecoration struct {
	TimedMarkerDecorations []RawDecoration `json:"timedMarkerDecorations"`
}

// RawDecoration is a decoration range as served upstream.
type RawDecoration struct {
	VisibleTimeRangeStartMillis *LooseString `json:"visibleTimeRangeStartMillis"`
	VisibleTimeRangeEndMillis   *LooseString `json:"visibleTimeRangeEndMillis"`
}

var nullLiteral = []byte("null")

// Locate walks
//
//	frameworkUpdates.entityBatchUpdate.mutations[].payload.macroMarkersListEntity.markersList
//
// and returns the first markers list whose markersDecoration is set (present,
// not null, false, 0 or "").
// A missing or mistyped step anywhere on the path yields ok == false. A
// qualifying list whose contents cannot be decoded is a parse failure.
func Locate(doc Document) (*MarkersList, bool, error) {
	mutations, ok := lookup(json.RawMessage(doc), "frameworkUpdates", "entityBatchUpdate", "mutations")
	if !ok {
		return nil, false, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(mutations, &entries); err != nil {
		return nil, false, nil
	}
	for _, mutation := range entries {
		list, ok := lookup(mutation, "payload", "macroMarkersListEntity", "markersList")
		if !ok {
			continue
		}
		decoration, ok := field(list, "markersDecoration")
		if !ok || !truthy(decoration) {
			continue
		}
		out, err := decodeMarkersList(list, decoration)
		if err != nil {
			return nil, false, parseError(err)
		}
		return out, true, nil
	}
	return nil, false, nil
}

// decodeMarkersList decodes list. A decoration that is not an object still
// qualifies the list but carries no ranges.
func decodeMarkersList(list, decoration json.RawMessage) (*MarkersList, error) {
	var wire struct {
		Markers []RawMarker `json:"markers"`
	}
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, err
	}
	out := &MarkersList{Markers: wire.Markers}
	if bytes.HasPrefix(bytes.TrimSpace(decoration), []byte("{")) {
		var dec MarkersDecoration
		if err := json.Unmarshal(decoration, &dec); err != nil {
			return nil, err
		}
		out.MarkersDecoration = &dec
	}
	return out, nil
}

// truthy reports whether a present JSON value counts as set: false, 0 and
// the empty string do not.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("false")), bytes.Equal(raw, []byte(`""`)):
		return false
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return false
		}
		return n != 0
	default:
		return true
	}
}

func lookup(raw json.RawMessage, path ...string) (json.RawMessage, bool) {
	cur := raw
	for _, key := range path {
		next, ok := field(cur, key)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// field reads key from a JSON object. Non-objects, missing keys, and null
// values all report absence.
func field(raw json.RawMessage, key string) (json.RawMessage, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	v, ok := obj[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), nullLiteral) {
		return nil, false
	}
	return v, true
}
