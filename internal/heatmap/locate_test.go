package heatmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateFindsFirstDecoratedList(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, mutationsDoc(
		markersMutation(map[string]any{
			"markers": []any{map[string]any{"startMillis": "9"}},
		}),
		markersMutation(map[string]any{
			"markers":           []any{map[string]any{"startMillis": "1"}},
			"markersDecoration": map[string]any{},
		}),
		markersMutation(map[string]any{
			"markers":           []any{map[string]any{"startMillis": "2"}},
			"markersDecoration": map[string]any{},
		}),
	))

	list, ok, err := Locate(doc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list.Markers, 1)
	require.Equal(t, LooseString("1"), *list.Markers[0].StartMillis)
}

func TestLocateNotFound(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		payload any
	}{
		{"empty object", map[string]any{}},
		{"top level array", []any{1, 2}},
		{"missing entityBatchUpdate", map[string]any{"frameworkUpdates": map[string]any{}}},
		{"empty mutations", mutationsDoc()},
		{"mutations not a sequence", map[string]any{
			"frameworkUpdates": map[string]any{"entityBatchUpdate": map[string]any{"mutations": map[string]any{}}},
		}},
		{"frameworkUpdates is a string", map[string]any{"frameworkUpdates": "nope"}},
		{"no decoration", mutationsDoc(markersMutation(map[string]any{"markers": []any{}}))},
		{"null decoration", mutationsDoc(markersMutation(map[string]any{"markers": []any{}, "markersDecoration": nil}))},
		{"false decoration", mutationsDoc(markersMutation(map[string]any{"markers": []any{}, "markersDecoration": false}))},
		{"empty string decoration", mutationsDoc(markersMutation(map[string]any{"markers": []any{}, "markersDecoration": ""}))},
		{"zero decoration", mutationsDoc(markersMutation(map[string]any{"markers": []any{}, "markersDecoration": 0}))},
		{"mutation without payload", mutationsDoc(map[string]any{"entityKey": "x"}, "scalar", nil)},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			list, ok, err := Locate(mustDocument(t, tc.payload))
			require.NoError(t, err)
			require.False(t, ok)
			require.Nil(t, list)
		})
	}
}

func TestLocateRejectsUndecodableList(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, mutationsDoc(markersMutation(map[string]any{
		"markers":           "not a list",
		"markersDecoration": map[string]any{},
	})))
	_, ok, err := Locate(doc)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrParseFailed)
}

func TestLocateToleratesLooseFieldTypes(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, mutationsDoc(markersMutation(map[string]any{
		"markers": []any{
			map[string]any{"startMillis": 1500, "durationMillis": true, "intensityScoreNormalized": "0.25"},
		},
		"markersDecoration": map[string]any{},
	})))
	list, ok, err := Locate(doc)
	require.NoError(t, err)
	require.True(t, ok)
	markers := NormalizeMarkers(list.Markers)
	require.Equal(t, []Marker{{StartMillis: 1500, DurationMillis: 0, IntensityScoreNormalized: 0.25}}, markers)
}

func TestLocateNonObjectDecorationQualifiesWithoutRanges(t *testing.T) {
	t.Parallel()

	for name, decoration := range map[string]any{
		"array":  []any{},
		"true":   true,
		"string": "yes",
	} {
		decoration := decoration
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			doc := mustDocument(t, mutationsDoc(
				markersMutation(map[string]any{
					"markers":           []any{map[string]any{"startMillis": "0", "intensityScoreNormalized": 1}},
					"markersDecoration": decoration,
				}),
				markersMutation(map[string]any{"markers": []any{}, "markersDecoration": map[string]any{}}),
			))
			list, ok, err := Locate(doc)
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, list.Markers, 1)
			require.Nil(t, list.MarkersDecoration)
		})
	}
}

func TestLocateSkipsFalsyDecorationForLaterList(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, mutationsDoc(
		markersMutation(map[string]any{"markers": []any{}, "markersDecoration": false}),
		markersMutation(map[string]any{
			"markers":           []any{map[string]any{"startMillis": "5"}},
			"markersDecoration": map[string]any{"timedMarkerDecorations": []any{}},
		}),
	))
	list, ok, err := Locate(doc)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, list.Markers, 1)
	require.NotNil(t, list.MarkersDecoration)
}
