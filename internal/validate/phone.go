package validate

import (
	"regexp"
	"strings"

	apperrors "github.com/parserhub/hub-server-go/internal/errors"
)

var phoneSeparators = regexp.MustCompile(`[\s\-()]`)

// Phone normalizes a user-entered phone number to +7XXXXXXXXXX form.
// Leading 8 or 7 is rewritten to +7; anything that is not a Russian mobile
// number of the right length is rejected. The auth registry requires its
// input already normalized, so every caller goes through here first.
func Phone(raw string) (string, error) {
	phone := phoneSeparators.ReplaceAllString(raw, "")

	digits := strings.TrimPrefix(phone, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", apperrors.InvalidInput("phone", "must contain only digits")
		}
	}
	if digits == "" {
		return "", apperrors.MissingRequired("phone")
	}

	switch {
	case strings.HasPrefix(phone, "8"):
		phone = "+7" + phone[1:]
	case strings.HasPrefix(phone, "7"):
		phone = "+7" + phone[1:]
	case !strings.HasPrefix(phone, "+"):
		phone = "+" + phone
	}

	if !strings.HasPrefix(phone, "+7") {
		return "", apperrors.InvalidInput("phone", "must start with +7")
	}
	if len(phone) != 12 {
		return "", apperrors.InvalidInput("phone", "must be 11 digits including the country code")
	}

	return phone, nil
}
