package util

import (
	"strconv"

	"currencyapi/internal/model"
)

// MaxListLimit hard cap on rows per list request
const MaxListLimit = 500

// NormalizeListParams pins limit and offset so equivalent requests share a
// cache key. A missing or non-numeric limit becomes MaxListLimit and larger
// values are capped; a missing or non-numeric offset becomes 0.
func NormalizeListParams(params model.Params) model.Params {
	limit := MaxListLimit
	if raw, ok := params.Get("limit"); ok && isDigits(raw) {
		if n, err := strconv.Atoi(raw); err == nil && n < MaxListLimit {
			limit = n
		}
	}

	offset := 0
	if raw, ok := params.Get("offset"); ok && isDigits(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			offset = n
		}
	}

	params = params.Set("limit", strconv.Itoa(limit))
	return params.Set("offset", strconv.Itoa(offset))
}

// ParseID parses a non-negative integer path id
func ParseID(raw string) (uint, bool) {
	if !isDigits(raw) {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n > uint64(^uint(0)) {
		return 0, false
	}
	return uint(n), true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
