package room

import (
	"regexp"
	"strings"
	"time"
)

// Default is the room every invalid or empty identifier falls back to.
const Default = "lobby"

// MaxSnapshotName is the longest snapshot name kept after sanitation.
const MaxSnapshotName = 100

// SnapshotTimeLayout names unnamed snapshots. It sorts lexically.
const SnapshotTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	validKey        = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	invalidNameChar = regexp.MustCompile(`[^A-Za-z0-9 _-]`)
)

// Sanitize maps any raw room identifier to a valid room key.
// Anything that is not 1-64 letters, digits, underscores or hyphens
// becomes Default. Sanitize is idempotent.
func Sanitize(raw string) string {
	key := strings.TrimSpace(raw)
	if key == "" || !validKey.MatchString(key) {
		return Default
	}
	return key
}

// Valid reports whether key is already a sanitized room key.
func Valid(key string) bool {
	return validKey.MatchString(key)
}

// SnapshotName cleans a user supplied snapshot name. An empty name is
// replaced by the UTC timestamp of now.
func SnapshotName(raw string, now time.Time) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return now.UTC().Format(SnapshotTimeLayout)
	}
	name = invalidNameChar.ReplaceAllString(name, "_")
	if len(name) > MaxSnapshotName {
		name = name[:MaxSnapshotName]
	}
	return name
}
