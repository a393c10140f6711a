package model

import "time"

type BadgeType string

const (
	BadgeFirstDonor   BadgeType = "first_donor"
	BadgeRegularDonor BadgeType = "regular_donor"
	BadgeSuperDonor   BadgeType = "super_donor"
	BadgeTopDonor     BadgeType = "top_donor"
	BadgeHeroDonor    BadgeType = "hero_donor"
	BadgeLifesaver    BadgeType = "lifesaver"
)

// BadgeTier is a completed-donation milestone and the bonus it pays.
type BadgeTier struct {
	Type      BadgeType
	Threshold int
	Bonus     int
	Title     string
}

// BadgeTiers is ordered by ascending threshold.
var BadgeTiers = []BadgeTier{
	{Type: BadgeFirstDonor, Threshold: 1, Bonus: 0, Title: "First Donor"},
	{Type: BadgeRegularDonor, Threshold: 2, Bonus: 200, Title: "Regular Donor"},
	{Type: BadgeSuperDonor, Threshold: 5, Bonus: 500, Title: "Super Donor"},
	{Type: BadgeTopDonor, Threshold: 10, Bonus: 1000, Title: "Top Donor"},
	{Type: BadgeHeroDonor, Threshold: 20, Bonus: 2000, Title: "Hero Donor"},
	{Type: BadgeLifesaver, Threshold: 50, Bonus: 5000, Title: "Lifesaver"},
}

type DonorBadge struct {
	ID                      int64     `json:"id"`
	DonorID                 int64     `json:"donor_id"`
	BadgeType               BadgeType `json:"badge_type"`
	DonationCountWhenEarned int       `json:"donation_count_when_earned"`
	EarnedAt                time.Time `json:"earned_at"`
}
