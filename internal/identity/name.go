package identity

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/sketchhive/internal/model"
	"github.com/go-playground/validator/v10"
)

// Display name and device key limits
const (
	MinNameLength   = 3
	MaxNameLength   = 24
	MaxDeviceLength = 128
)

var (
	validate *validator.Validate

	// Characters a display name may keep; everything else is stripped
	disallowedNameChars = regexp.MustCompile(`[^A-Za-z0-9 _\-\s]`)

	// Regular expression for a cleaned display name
	displayNameRegex = regexp.MustCompile(`^[A-Za-z0-9 _-]{3,24}$`)
)

func init() {
	validate = validator.New()

	// Register custom validation tags
	validate.RegisterValidation("displayname", validateDisplayName)
}

// validateDisplayName validates a cleaned display name
func validateDisplayName(fl validator.FieldLevel) bool {
	return displayNameRegex.MatchString(fl.Field().String())
}

// CleanName normalizes a proposed display name.
// Whitespace is trimmed and collapsed, characters outside [A-Za-z0-9 _-] are
// stripped and the result is truncated to MaxNameLength.
func CleanName(raw string) (string, *model.Rejection) {
	trimmed := strings.TrimSpace(raw)
	stripped := disallowedNameChars.ReplaceAllString(trimmed, "")
	cleaned := strings.Join(strings.Fields(stripped), " ")

	if len(cleaned) > MaxNameLength {
		cleaned = strings.TrimRight(cleaned[:MaxNameLength], " ")
	}

	if trimmed != "" && cleaned == "" {
		return "", &model.Rejection{Reason: model.ReasonChars}
	}
	if len(cleaned) < MinNameLength {
		return "", &model.Rejection{Reason: model.ReasonShort}
	}
	if err := validate.Var(cleaned, "displayname"); err != nil {
		return "", &model.Rejection{Reason: model.ReasonChars}
	}

	return cleaned, nil
}

// CleanDevice trims a device key and checks it is printable and bounded
func CleanDevice(raw string) (string, *model.Rejection) {
	device := strings.TrimSpace(raw)
	if device == "" {
		return "", nil
	}
	if err := validate.Var(device, "max=128,printascii"); err != nil {
		return "", &model.Rejection{Reason: model.ReasonDevice}
	}
	return device, nil
}

// suffixed returns base with "-n" appended, shortening base so the result
// stays within MaxNameLength.
func suffixed(base string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > MaxNameLength {
		base = strings.TrimRight(base[:MaxNameLength-len(suffix)], " ")
	}
	return base + suffix
}
