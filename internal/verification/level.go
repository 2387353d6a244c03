package verification

import (
	"time"

	"github.com/hongminglow/nova-be/internal/models"
)

// DeriveMonitoringLevel computes a user's monitoring level from date of
// birth and verification ticks. A kid without a date of birth is treated
// as under age. Non-kid accounts are never moderated and report partial.
func DeriveMonitoringLevel(u models.User, now time.Time) models.MonitoringLevel {
	if u.UserType != models.UserTypeKid {
		return models.MonitoringPartial
	}
	if u.Profile.DateOfBirth == nil {
		return models.MonitoringFull
	}
	if Age(*u.Profile.DateOfBirth, now) < AdultMonitoringAge {
		return models.MonitoringFull
	}
	if !IsFullyVerified(u) {
		return models.MonitoringFull
	}
	return models.MonitoringPartial
}

// IsFullyVerified reports whether a kid has both ticks. Parent and school
// accounts have no two-tick requirement.
func IsFullyVerified(u models.User) bool {
	if u.UserType != models.UserTypeKid {
		return true
	}
	return u.Verification.ParentVerified && u.Verification.SchoolVerified
}

// Age returns whole years elapsed between dob and now, counting a birthday
// only once it has been reached.
func Age(dob, now time.Time) int {
	dob = dob.UTC()
	now = now.UTC()
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
