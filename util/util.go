package util

import (
	"slices"
	"time"
)

// TimestampLayout matches the timestamps the benchmark tools put in their own file names.
const TimestampLayout = "20060102_150405"

func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// SortedKeys returns the keys of a registry map in order, for help text.
func SortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
