// Package heatmap turns a watch page into a normalized replay heatmap.
//
// The pipeline is split into small pure steps so each one can be exercised
// in isolation:
//   - Extract pulls the ytInitialData JSON literal out of the raw HTML.
//   - Decode checks that the literal is well-formed JSON and returns it as a Document.
//   - Locate walks the frameworkUpdates mutations looking for the markers list.
//   - Normalize converts the markers list into a sorted, strongly typed Summary.
//
// None of the steps keep state between calls. Upstream schema drift shows up as
// ErrParseFailed (the payload is broken) or a nil result (nothing to report).
package heatmap
