package chflow

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FenceKey identifies the authoritative in-flight request within a category.
type FenceKey string

// Category is an independent data domain with its own fence state.
type Category string

const (
	// CategoryDetails covers the merged challenge details.
	CategoryDetails Category = "details"
	// CategorySubmissions covers the caller's own submissions.
	CategorySubmissions Category = "submissions"
	// CategoryResults covers the final results.
	CategoryResults Category = "results"
	// CategoryCheckpoints covers design checkpoints.
	CategoryCheckpoints Category = "checkpoints"
)

// Categories lists every fetch category.
var Categories = []Category{
	CategoryDetails,
	CategorySubmissions,
	CategoryResults,
	CategoryCheckpoints,
}

// String returns the category name.
func (c Category) String() string {
	return string(c)
}

// Key derives the canonical fence key for a request subject.
//
// Numeric and string forms of the same id map to the same key: 42, int64(42),
// 42.0 and "42" all yield "42". Key never fails.
func Key(subject any) FenceKey {
	switch v := subject.(type) {
	case nil:
		return ""
	case FenceKey:
		return v
	case string:
		return FenceKey(strings.TrimSpace(v))
	case int:
		return FenceKey(strconv.FormatInt(int64(v), 10))
	case int8:
		return FenceKey(strconv.FormatInt(int64(v), 10))
	case int16:
		return FenceKey(strconv.FormatInt(int64(v), 10))
	case int32:
		return FenceKey(strconv.FormatInt(int64(v), 10))
	case int64:
		return FenceKey(strconv.FormatInt(v, 10))
	case uint:
		return FenceKey(strconv.FormatUint(uint64(v), 10))
	case uint8:
		return FenceKey(strconv.FormatUint(uint64(v), 10))
	case uint16:
		return FenceKey(strconv.FormatUint(uint64(v), 10))
	case uint32:
		return FenceKey(strconv.FormatUint(uint64(v), 10))
	case uint64:
		return FenceKey(strconv.FormatUint(v, 10))
	case float32:
		return floatKey(float64(v))
	case float64:
		return floatKey(v)
	case fmt.Stringer:
		return FenceKey(strings.TrimSpace(v.String()))
	default:
		return FenceKey(fmt.Sprint(v))
	}
}

// integral floats in the int64 or uint64 range print like the integer of the
// same value
func floatKey(f float64) FenceKey {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		switch {
		case f >= math.MinInt64 && f < 1<<63:
			return FenceKey(strconv.FormatInt(int64(f), 10))
		case f >= 1<<63 && f < 1<<64:
			return FenceKey(strconv.FormatUint(uint64(f), 10))
		}
	}
	return FenceKey(strconv.FormatFloat(f, 'g', -1, 64))
}

// String returns the key as a plain string.
func (k FenceKey) String() string {
	return string(k)
}

// Int64 parses the key as a numeric challenge id.
func (k FenceKey) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(k), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
