package cleanup

import (
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/models"
)

// ErrInvalidThresholdConfig means the configured (count, unit) pair cannot
// produce a usable cutoff date. The marking cycle is skipped; no deletion
// chain is started.
var ErrInvalidThresholdConfig = errors.New("invalid threshold configuration")

// Offsets above this are nonsense (hundreds of millennia in days) and almost
// certainly a corrupted setting row.
const maxOffsetDays = 100_000_000

// ThresholdDate computes the retention cutoff: orders created before it are
// eligible for removal. The result is midnight at the start of the day
// `count` units before now, in now's location.
//
// Months count as 30 days and years as 365, deliberately. Installations have
// relied on this approximation for their retention windows, so it is kept
// rather than corrected to calendar arithmetic.
func ThresholdDate(count int, unit models.ThresholdUnit, now time.Time) (time.Time, error) {
	if count < 0 {
		return time.Time{}, fmt.Errorf("%w: negative count %d", ErrInvalidThresholdConfig, count)
	}

	var offsetDays int
	switch unit {
	case models.ThresholdUnitMonths:
		offsetDays = count * 30
	case models.ThresholdUnitYears:
		offsetDays = count * 365
	default:
		// Unknown units fall back to raw days.
		offsetDays = count
	}
	if offsetDays < 0 || offsetDays > maxOffsetDays {
		return time.Time{}, fmt.Errorf("%w: offset of %d days", ErrInvalidThresholdConfig, offsetDays)
	}

	cutoff := now.AddDate(0, 0, -offsetDays)
	year, month, day := cutoff.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), nil
}
