package schema

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/docbase-core/internal/core/domain"
)

// validateFormat applies the leaf validator for a string format tag and
// returns the canonical value. Unknown tags are rejected so a typo in a
// schema surfaces as a validation issue instead of silently passing.
func validateFormat(format, value string) (string, error) {
	switch format {
	case "":
		return value, nil
	case domain.StringFormatDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return "", fmt.Errorf("%q is not a date (want 2006-01-02)", value)
		}
		return value, nil
	case domain.StringFormatInstant:
		return canonicalInstant(value)
	case domain.StringFormatMarkdown:
		if !utf8.ValidString(value) {
			return "", fmt.Errorf("markdown value is not valid UTF-8")
		}
		return value, nil
	default:
		return "", fmt.Errorf("unknown string format %q", format)
	}
}

// canonicalInstant normalizes an RFC3339 instant to a single absolute-time
// representation while preserving the original UTC offset for display:
// sub-second precision is trimmed to what is present and the offset is kept
// exactly as written ("Z" stays "Z", "+02:00" stays "+02:00").
func canonicalInstant(value string) (string, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "", fmt.Errorf("%q is not an instant (want RFC 3339)", value)
	}
	// time.Parse keeps the offset in the value's fixed-zone location, so
	// formatting reproduces the original offset.
	return t.Format(time.RFC3339Nano), nil
}
