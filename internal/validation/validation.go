package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"habitheroes/internal/models"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	pinRegex      = regexp.MustCompile(`^[0-9]{4}$`)
	timeOfDayRe   = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
	familyCodeRe  = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	usernameRegex = regexp.MustCompile(`^[a-z]+-[a-z]+[0-9]*$`)

	folder = cases.Fold()
)

const (
	MaxNameLength    = 100
	MaxTitleLength   = 200
	MaxMessageLength = 1000
	MaxXPReward      = 1000
	MaxRewardCost    = 100000
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// NormalizeName trims a display name and converts it to NFC so visually
// identical names compare equal
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// NormalizeEmail trims and case-folds an email address
func NormalizeEmail(email string) string {
	return folder.String(strings.TrimSpace(email))
}

// NormalizeUsername trims and case-folds a child username
func NormalizeUsername(username string) string {
	return folder.String(norm.NFC.String(strings.TrimSpace(username)))
}

// NormalizeFamilyCode trims and upper-cases a family code
func NormalizeFamilyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < 8 {
		return ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}
	return nil
}

// ValidateName checks if a display name is valid
func ValidateName(name string) error {
	name = NormalizeName(name)
	if name == "" {
		return ValidationError{Field: "name", Message: "name is required"}
	}
	n := utf8.RuneCountInString(name)
	if n < 2 {
		return ValidationError{Field: "name", Message: "name must be at least 2 characters"}
	}
	if n > MaxNameLength {
		return ValidationError{Field: "name", Message: fmt.Sprintf("name must be at most %d characters", MaxNameLength)}
	}
	return nil
}

// ValidateTitle checks a habit or reward title
func ValidateTitle(field, title string) error {
	title = NormalizeName(title)
	if title == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, MaxTitleLength)}
	}
	return nil
}

// ValidatePIN checks a child PIN: exactly four digits
func ValidatePIN(pin string) error {
	if !pinRegex.MatchString(pin) {
		return ValidationError{Field: "pin", Message: "pin must be 4 digits"}
	}
	return nil
}

// ValidateUsername checks the adjective-noun shape of child usernames
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ValidationError{Field: "username", Message: "invalid username"}
	}
	return nil
}

// ValidateFamilyCode checks a normalized family code
func ValidateFamilyCode(code string) error {
	if !familyCodeRe.MatchString(code) {
		return ValidationError{Field: "family_code", Message: "family code must be 6 letters or digits"}
	}
	return nil
}

// ValidateTimeOfDay accepts "" or an "HH:MM" 24 hour clock time
func ValidateTimeOfDay(field, value string) error {
	if value == "" {
		return nil
	}
	if !timeOfDayRe.MatchString(value) {
		return ValidationError{Field: field, Message: "time must be HH:MM"}
	}
	return nil
}

// ValidateXPReward checks the XP a habit awards
func ValidateXPReward(xp int) error {
	if xp <= 0 || xp > MaxXPReward {
		return ValidationError{Field: "xp_reward", Message: fmt.Sprintf("xp reward must be between 1 and %d", MaxXPReward)}
	}
	return nil
}

// ValidateCost checks a reward cost
func ValidateCost(cost int) error {
	if cost <= 0 || cost > MaxRewardCost {
		return ValidationError{Field: "cost", Message: fmt.Sprintf("cost must be between 1 and %d", MaxRewardCost)}
	}
	return nil
}

// ValidateCategory checks a reward category and its recurring flag
func ValidateCategory(category string, recurring bool) error {
	switch category {
	case models.CategoryOneTime:
		if recurring {
			return ValidationError{Field: "category", Message: "one-time rewards cannot recur"}
		}
		return nil
	case models.CategoryDaily, models.CategoryWeekly, models.CategoryMonthly, models.CategoryYearly:
		return nil
	}
	return ValidationError{Field: "category", Message: "unknown category"}
}

// ValidateDelay checks an auto-approval delay
func ValidateDelay(value int, unit string) error {
	if value <= 0 {
		return ValidationError{Field: "delay_value", Message: "delay must be positive"}
	}
	switch unit {
	case models.UnitHours, models.UnitDays, models.UnitWeeks:
		return nil
	}
	return ValidationError{Field: "delay_unit", Message: "unit must be hours, days or weeks"}
}

// ValidateDeviceType checks a device type
func ValidateDeviceType(deviceType string) error {
	switch deviceType {
	case models.DeviceWeb, models.DeviceIOS, models.DeviceAndroid:
		return nil
	}
	return ValidationError{Field: "device_type", Message: "device type must be web, ios or android"}
}

// ValidateFeedback requires a non-blank review message
func ValidateFeedback(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ValidationError{Field: "message", Message: "feedback message is required"}
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return ValidationError{Field: "message", Message: fmt.Sprintf("message must be at most %d characters", MaxMessageLength)}
	}
	return nil
}

// Required returns a ValidationError for an empty field
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	return nil
}
