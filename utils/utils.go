package utils

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"photosweep/types"
)

const bytesPerMB = 1024 * 1024

// ShortID derives a stable 8 character identifier from a file path.
// Collisions are tolerated; ids only group records inside one report.
func ShortID(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])[:8]
}

// SizeMB converts a byte count to megabytes rounded to two decimals,
// halves to even
func SizeMB(size int64) float64 {
	return math.RoundToEven(float64(size)/bytesPerMB*100) / 100
}

// FormatTimestamp renders t in local time with report layout
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(types.TimestampLayout)
}

// ParseRecursiveFlag interprets the second positional argument of the CLI.
// Only "true" (any case) enables recursion; an absent argument does too.
func ParseRecursiveFlag(arg string, present bool) bool {
	if !present {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(arg), "true")
}

// Float64Ptr returns a pointer to a copy of v
func Float64Ptr(v float64) *float64 {
	return &v
}
