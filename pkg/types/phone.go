package types

import "strings"

// MaskPhone redacts all but the last four digits of a phone number so it can
// be returned to clients or logged without exposing the full number.
func MaskPhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return ""
	}

	digits := make([]rune, 0, len(trimmed))
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}

	visible := string(digits[len(digits)-4:])
	return strings.Repeat("*", len(digits)-4) + visible
}
