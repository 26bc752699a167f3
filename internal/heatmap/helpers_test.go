package heatmap

import (
	"encoding/json"
	"testing"
)

func pageHTML(t *testing.T, payload any) string {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return `<!DOCTYPE html><html><head><script nonce="x">var ytInitialData = ` + string(b) +
		`;</script></head><body></body></html>`
}

func mutationsDoc(mutations ...any) map[string]any {
	return map[string]any{
		"frameworkUpdates": map[string]any{
			"entityBatchUpdate": map[string]any{
				"mutations": mutations,
			},
		},
	}
}

func markersMutation(markersList map[string]any) map[string]any {
	return map[string]any{
		"entityKey": "abc",
		"payload": map[string]any{
			"macroMarkersListEntity": map[string]any{
				"markersList": markersList,
			},
		},
	}
}

func samplePayload() map[string]any {
	return mutationsDoc(
		map[string]any{"payload": map[string]any{"otherEntity": map[string]any{}}},
		markersMutation(map[string]any{
			"markerType": "MARKER_TYPE_HEATMAP",
			"markers": []any{
				map[string]any{"startMillis": "2000", "durationMillis": "1000", "intensityScoreNormalized": 0.4},
				map[string]any{"startMillis": "0", "durationMillis": "1000", "intensityScoreNormalized": 1},
				map[string]any{"startMillis": "1000", "durationMillis": "1000", "intensityScoreNormalized": 0.7},
			},
			"markersDecoration": map[string]any{
				"timedMarkerDecorations": []any{
					map[string]any{"visibleTimeRangeStartMillis": 1500, "visibleTimeRangeEndMillis": 2500},
				},
			},
		}),
	)
}

func mustDocument(t *testing.T, payload any) Document {
	t.Helper()
	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	doc, err := Decode(string(b))
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return doc
}
