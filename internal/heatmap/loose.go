package heatmap

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// LooseString accepts a JSON string or number and keeps its text form.
// Any other JSON type decodes to the empty string.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*s = LooseString(data)
	default:
		*s = ""
	}
	return nil
}

// LooseFloat accepts a JSON number or a numeric string. Anything else is 0.
type LooseFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *LooseFloat) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Float64(); err == nil {
			*f = LooseFloat(v)
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = LooseFloat(v)
			return nil
		}
	}
	*f = 0
	return nil
}

// parseInt reads a base-10 integer from the start of s: leading whitespace
// and an optional sign are skipped, parsing stops at the first non-digit.
// ok is false when no digit was read or the value overflows.
func parseInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\r\n")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// millis parses a non-negative millisecond value. Missing, unparseable and
// negative values report ok == false.
func millis(s *LooseString) (int64, bool) {
	if s == nil {
		return 0, false
	}
	v, ok := parseInt(string(*s))
	if !ok || v < 0 {
		return 0, false
	}
	return v, true
}
