package heatmap

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the pipeline matches exactly one of
// these through errors.Is.
var (
	ErrInvalidVideoID = errors.New("invalid video id")
	ErrFetchFailed    = errors.New("fetch failed")
	ErrTimedOut       = errors.New("request timed out")
	ErrParseFailed    = errors.New("parse failed")
	// ErrNoData is not returned by a fetch; a missing heatmap is reported as a
	// nil Summary. Surfaces that need an error value for it use this one.
	ErrNoData = errors.New("no heatmap data available")
)

var kinds = []error{ErrInvalidVideoID, ErrFetchFailed, ErrTimedOut, ErrParseFailed, ErrNoData}

// Error carries the kind of a failure plus whatever detail was observed.
type Error struct {
	Kind       error
	VideoID    string
	StatusCode int
	Status     string
	Err        error
}

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("heatmap error")
	}
	if e.VideoID != "" {
		fmt.Fprintf(&b, " (video %s)", e.VideoID)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
		if e.Status != "" {
			fmt.Fprintf(&b, " %s", e.Status)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// KindOf returns the kind sentinel matched by err, or nil when err is nil or
// did not originate from this package.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var he *Error
	if errors.As(err, &he) && he.Kind != nil {
		return he.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a stable label for err's kind, used in metrics and API payloads.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInvalidVideoID:
		return "InvalidVideoId"
	case ErrFetchFailed:
		return "FetchFailed"
	case ErrTimedOut:
		return "TimedOut"
	case ErrParseFailed:
		return "ParseFailed"
	case ErrNoData:
		return "NoDataAvailable"
	case nil:
		if err == nil {
			return ""
		}
	}
	return "Unknown"
}

// WithVideoID stamps id onto err when it is an *Error without one.
func WithVideoID(err error, id string) error {
	var he *Error
	if errors.As(err, &he) && he.VideoID == "" {
		cp := *he
		cp.VideoID = id
		return &cp
	}
	return err
}

func parseError(err error) error {
	return &Error{Kind: ErrParseFailed, Err: err}
}
