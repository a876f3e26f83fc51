/*
timezone.go - Structured parsing of UTC-offset labels

PURPOSE:
  Report intake historically carried the timezone as a descriptive label such
  as "(UTC+05:30) Mumbai" with the offset embedded in the string. The offset
  is parsed once at the data-model boundary into whole minutes; everything
  downstream is timezone-agnostic UTC math plus the literal local-clock noon
  check.
*/
package rob

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	utcOffsetRe = regexp.MustCompile(`\(UTC([+-])(\d{2}):(\d{2})\)`)
	utcBareRe   = regexp.MustCompile(`\(UTC\)`)
)

// ParseUTCOffset extracts the offset in minutes from a "(UTC±HH:MM)" label.
// A bare "(UTC)" means zero.
func ParseUTCOffset(label string) (int, error) {
	if label == "" {
		return 0, fmt.Errorf("empty timezone label")
	}

	m := utcOffsetRe.FindStringSubmatch(label)
	if m == nil {
		if utcBareRe.MatchString(label) {
			return 0, nil
		}
		return 0, fmt.Errorf("unrecognized timezone label %q", label)
	}

	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	if hours > 14 || minutes > 59 {
		return 0, fmt.Errorf("offset out of range in %q", label)
	}

	offset := hours*60 + minutes
	if m[1] == "-" {
		offset = -offset
	}
	return offset, nil
}

// FormatUTCOffset renders minutes back into the canonical "(UTC±HH:MM)" form.
func FormatUTCOffset(minutes int) string {
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("(UTC%s%02d:%02d)", sign, minutes/60, minutes%60)
}
