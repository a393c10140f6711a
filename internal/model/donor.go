package model

import (
	"fmt"
	"strings"
	"time"
)

type BloodGroup string

const (
	BloodAPos  BloodGroup = "A+"
	BloodANeg  BloodGroup = "A-"
	BloodBPos  BloodGroup = "B+"
	BloodBNeg  BloodGroup = "B-"
	BloodABPos BloodGroup = "AB+"
	BloodABNeg BloodGroup = "AB-"
	BloodOPos  BloodGroup = "O+"
	BloodONeg  BloodGroup = "O-"
)

var BloodGroups = []BloodGroup{
	BloodAPos, BloodANeg, BloodBPos, BloodBNeg,
	BloodABPos, BloodABNeg, BloodOPos, BloodONeg,
}

func (g BloodGroup) Valid() bool {
	for _, bg := range BloodGroups {
		if g == bg {
			return true
		}
	}
	return false
}

// ParseBloodGroup normalizes case and surrounding space before validating.
func ParseBloodGroup(s string) (BloodGroup, error) {
	g := BloodGroup(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("unknown blood group %q", s)
	}
	return g, nil
}

type Donor struct {
	ID                int64      `json:"id"`
	AccountID         int64      `json:"account_id"`
	FullName          string     `json:"full_name"`
	Phone             string     `json:"phone"`
	Email             string     `json:"email"`
	Age               int        `json:"age"`
	BloodGroup        BloodGroup `json:"blood_group"`
	Thana             string     `json:"thana"`
	PostOffice        string     `json:"post_office"`
	District          string     `json:"district"`
	IsActive          bool       `json:"is_active"`
	IsAvailable       bool       `json:"is_available"`
	LastDonationMonth *string    `json:"last_donation_month"`
	LastDonationYear  *string    `json:"last_donation_year"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type Recipient struct {
	ID         int64      `json:"id"`
	AccountID  int64      `json:"account_id"`
	FullName   string     `json:"full_name"`
	Phone      string     `json:"phone"`
	Email      string     `json:"email"`
	BloodGroup BloodGroup `json:"blood_group"`
	Thana      string     `json:"thana"`
	District   string     `json:"district"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DonorCriteria selects donors for a recipient search. Empty locality fields
// are not constrained.
type DonorCriteria struct {
	BloodGroup BloodGroup
	Thana      string
	PostOffice string
	District   string
}
