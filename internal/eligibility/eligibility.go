// Package eligibility decides whether a donor may give blood again.
//
// A donor's last donation is recorded as a month name and a year string. The
// donation is taken to have happened on the first day of that month, and the
// donor becomes eligible again 90 days later.
package eligibility

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/model"
)

// Cooldown is the minimum gap between two donations.
const Cooldown = 90 * 24 * time.Hour

var (
	// ErrNeverDonated is returned by ParseLastDonation when no donation is recorded.
	ErrNeverDonated = errors.New("no previous donation")
	// ErrMalformed is returned by ParseLastDonation for unreadable month or year values.
	ErrMalformed = errors.New("malformed last donation")
)

// parseMonth matches a lowercase English month name, full or abbreviated to
// three letters.
func parseMonth(s string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if s == name || s == name[:3] {
			return m, true
		}
	}
	return 0, false
}

// ParseLastDonation resolves a month name and year to the first day of that
// month in UTC. Month names are matched case-insensitively in full or as a
// three-letter abbreviation.
func ParseLastDonation(month, year *string) (time.Time, error) {
	if month == nil || year == nil || strings.TrimSpace(*month) == "" || strings.TrimSpace(*year) == "" {
		return time.Time{}, ErrNeverDonated
	}
	m, ok := parseMonth(strings.ToLower(strings.TrimSpace(*month)))
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrMalformed, *month)
	}
	y, err := strconv.Atoi(strings.TrimSpace(*year))
	if err != nil || y <= 0 {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrMalformed, *year)
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
}

// EligibleOnUnreadableRecord is the policy for donation records that cannot be
// parsed: the donor is treated as eligible. A missing record and a malformed
// one both end up here, so bad data never blocks a willing donor.
func EligibleOnUnreadableRecord(err error) bool {
	return errors.Is(err, ErrNeverDonated) || errors.Is(err, ErrMalformed)
}

// CanDonate reports whether a donor whose last donation is month/year may
// donate at now.
func CanDonate(month, year *string, now time.Time) bool {
	last, err := ParseLastDonation(month, year)
	if err != nil {
		return EligibleOnUnreadableRecord(err)
	}
	return !now.Before(last.Add(Cooldown))
}

// NextEligibleDate returns the date from which the donor may donate again and
// true, or the zero time and false when the donor is available now.
func NextEligibleDate(month, year *string, now time.Time) (time.Time, bool) {
	if CanDonate(month, year, now) {
		return time.Time{}, false
	}
	last, _ := ParseLastDonation(month, year)
	return last.Add(Cooldown), true
}

// Status is the eligibility summary shown on a donor's dashboard.
type Status struct {
	CanDonate    bool       `json:"can_donate"`
	AvailableNow bool       `json:"available_now"`
	NextEligible *time.Time `json:"next_eligible_date,omitempty"`
}

// ForDonor evaluates a donor's eligibility at now.
func ForDonor(d *model.Donor, now time.Time) Status {
	next, waiting := NextEligibleDate(d.LastDonationMonth, d.LastDonationYear, now)
	if !waiting {
		return Status{CanDonate: true, AvailableNow: true}
	}
	return Status{NextEligible: &next}
}
