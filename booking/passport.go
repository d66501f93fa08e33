package booking

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MinPassportValidityDays is the validity required after departure for
// itineraries through Istanbul.
const MinPassportValidityDays = 150

var passportCities = []string{"istanbul", "stamboll"}

// RequiresPassportCheck reports whether an itinerary touching these
// locations needs the passport validity rule.
func RequiresPassportCheck(locations ...string) bool {
	for _, loc := range locations {
		l := strings.ToLower(strings.TrimSpace(loc))
		if l == "" {
			continue
		}
		for _, c := range passportCities {
			if strings.Contains(l, c) {
				return true
			}
		}
	}
	return false
}

// PassportError is a failed passport validity check.
type PassportError struct {
	Traveler string
	Expiry   *time.Time
	Days     int
}

func (e *PassportError) Error() string {
	if e.Expiry == nil {
		return fmt.Sprintf("passport expiry date is required for %s when travelling to Istanbul", e.Traveler)
	}
	return fmt.Sprintf("passport of %s expires %d days after departure, at least %d are required",
		e.Traveler, e.Days, MinPassportValidityDays)
}

func (e *PassportError) Unwrap() error { return ErrValidation }

// CheckPassport enforces the validity rule for one traveler. It is a no-op
// when none of the locations is in scope.
func CheckPassport(traveler string, expiry *time.Time, departure time.Time, locations ...string) error {
	if !RequiresPassportCheck(locations...) {
		return nil
	}
	if expiry == nil || expiry.IsZero() {
		return &PassportError{Traveler: traveler}
	}
	days := int(math.Ceil(expiry.Sub(departure).Hours() / 24))
	if days < MinPassportValidityDays {
		return &PassportError{Traveler: traveler, Expiry: expiry, Days: days}
	}
	return nil
}
