// Package videoid extracts and validates video identifiers from free-form input.
package videoid

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/JakeFAU/replay-heatmap/internal/heatmap"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var knownHosts = map[string]struct{}{
	"youtube.com":              {},
	"www.youtube.com":          {},
	"m.youtube.com":            {},
	"music.youtube.com":        {},
	"youtube-nocookie.com":     {},
	"www.youtube-nocookie.com": {},
}

// pathPrefixes hold the route segments that are followed by the id.
var pathPrefixes = []string{"shorts", "embed", "live", "v", "e"}

// Valid reports whether s is a bare 11 character video id.
func Valid(s string) bool {
	return idPattern.MatchString(s)
}

// Parse returns the video id contained in input, which may be a bare id or a
// watch, short link, shorts, embed or live URL.
func Parse(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if Valid(trimmed) {
		return trimmed, nil
	}
	if id, ok := fromURL(trimmed); ok {
		return id, nil
	}
	return "", &heatmap.Error{Kind: heatmap.ErrInvalidVideoID, Err: fmt.Errorf("unrecognized input %q", input)}
}

func fromURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")

	if host == "youtu.be" {
		return validOnly(segments[0])
	}
	if _, ok := knownHosts[host]; !ok {
		return "", false
	}
	if segments[0] == "watch" {
		return validOnly(u.Query().Get("v"))
	}
	if len(segments) >= 2 {
		for _, prefix := range pathPrefixes {
			if segments[0] == prefix {
				return validOnly(segments[1])
			}
		}
	}
	return "", false
}

func validOnly(id string) (string, bool) {
	if !Valid(id) {
		return "", false
	}
	return id, true
}
