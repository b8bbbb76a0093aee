package reconcile

import (
	"strconv"
	"strings"
)

// ParseManifestIDs extracts manifest ids from free-form text. Tokens are
// separated by commas, semicolons, tabs, spaces or newlines; tokens that are
// not positive integers are dropped. The result keeps first-seen order with
// duplicates removed.
func ParseManifestIDs(text string) []int64 {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t', ' ':
			return true
		}
		return false
	})

	seen := make(map[int64]bool, len(fields))
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		if !isDigits(f) {
			continue
		}
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
