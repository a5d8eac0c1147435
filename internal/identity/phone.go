package identity

import "strings"

// NormalizePhone reduces raw to "+<digits>". Without an explicit "+", local
// numbers with the domestic trunk prefix 8 and bare 10-digit numbers are
// rewritten to the +7 form. Fewer than ten digits is not a phone number.
func NormalizePhone(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) < 10 {
		return "", false
	}

	if strings.HasPrefix(raw, "+") {
		return "+" + digits, true
	}

	switch {
	case len(digits) == 11 && digits[0] == '8':
		return "+7" + digits[1:], true
	case len(digits) == 10:
		return "+7" + digits, true
	default:
		return "+" + digits, true
	}
}
