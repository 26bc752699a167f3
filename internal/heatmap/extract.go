package heatmap

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	// InitialDataMarker precedes the JSON literal assigned in the watch page.
	InitialDataMarker = "var ytInitialData = "
	// InitialDataTerminator closes the script block holding the assignment.
	InitialDataTerminator = ";</script>"
)

var (
	errMarkerNotFound     = errors.New("ytInitialData marker not found")
	errTerminatorNotFound = errors.New("ytInitialData terminator not found")
)

// Document is the decoded ytInitialData tree. It is kept as raw JSON and
// walked field by field by Locate.
type Document json.RawMessage

// Extract returns the text between the first InitialDataMarker and the first
// InitialDataTerminator that follows it. The text is returned untouched.
func Extract(html string) (string, error) {
	idx := strings.Index(html, InitialDataMarker)
	if idx < 0 {
		return "", parseError(errMarkerNotFound)
	}
	start := idx + len(InitialDataMarker)
	end := strings.Index(html[start:], InitialDataTerminator)
	if end < 0 {
		return "", parseError(errTerminatorNotFound)
	}
	return html[start : start+end], nil
}

// Decode parses raw as JSON of any shape. An empty object is valid.
func Decode(raw string) (Document, error) {
	var doc json.RawMessage
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, parseError(err)
	}
	return Document(doc), nil
}

// ExtractDocument runs Extract followed by Decode.
func ExtractDocument(html string) (Document, error) {
	raw, err := Extract(html)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
