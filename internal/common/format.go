package common

import (
	"strings"
	"time"
)

// ShortAddress renders 0x1234...abcd. Strings too short to abbreviate are
// returned unchanged.
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// FormatDateTime accepts unix seconds or unix milliseconds and formats the
// instant as RFC 3339 in UTC. Zero yields an empty string.
func FormatDateTime(ts int64) string {
	if ts <= 0 {
		return ""
	}
	var t time.Time
	if ts > 1e12 {
		t = time.UnixMilli(ts)
	} else {
		t = time.Unix(ts, 0)
	}
	return t.UTC().Format(time.RFC3339)
}
