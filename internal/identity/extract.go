package identity

import (
	"regexp"
	"strings"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/validator"
)

var (
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{8,17}\d`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// ExtractedContacts holds what a free-text scan found.
type ExtractedContacts struct {
	Phone string
	Email string
}

// ExtractContacts returns the first normalizable phone and the first valid
// email mentioned in text. Either may be empty.
func ExtractContacts(text string) ExtractedContacts {
	var out ExtractedContacts
	if strings.TrimSpace(text) == "" {
		return out
	}

	for _, candidate := range phonePattern.FindAllString(text, -1) {
		if phone, ok := NormalizePhone(candidate); ok {
			out.Phone = phone
			break
		}
	}

	for _, candidate := range emailPattern.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".")
		if validator.IsEmail(candidate) {
			out.Email = strings.ToLower(candidate)
			break
		}
	}
	return out
}
