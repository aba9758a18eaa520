// Package value turns raw XML text into typed scalar values.
package value

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only date form recognised in element text.
const DateLayout = "2006-01-02"

var boolTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "ja": true,
	"false": false, "0": false, "no": false, "nein": false,
}

// Convert infers the type of s. Order: int64, float64, bool, date (as Unix seconds, UTC), string.
// "1" and "0" always parse as integers before the boolean step is reached.
func Convert(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, ok := boolTokens[strings.ToLower(s)]; ok {
		return b
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return t.Unix()
	}
	return s
}
