package domains

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var urlValidator = validator.New()

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}
	if raw != strings.TrimSpace(raw) {
		return errors.New("url must not have surrounding whitespace")
	}
	if err := urlValidator.Var(raw, "http_url"); err != nil {
		return errors.New("url must be an absolute http or https url")
	}
	return nil
}
