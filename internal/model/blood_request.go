package model

import "time"

// Urgency is ordered low < medium < high < critical.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank returns the sort weight of u, or 0 for an unknown value.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyCritical:
		return 4
	}
	return 0
}

func (u Urgency) Valid() bool { return u.Rank() > 0 }

type RequestStatus string

const (
	RequestActive    RequestStatus = "active"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestExpired || s == RequestCancelled
}

type BloodRequest struct {
	ID               int64         `json:"id"`
	RecipientID      int64         `json:"recipient_id"`
	PatientName      string        `json:"patient_name"`
	BloodGroupNeeded BloodGroup    `json:"blood_group_needed"`
	UnitsNeeded      int           `json:"units_needed"`
	HospitalName     string        `json:"hospital_name"`
	Thana            string        `json:"thana"`
	District         string        `json:"district"`
	ContactPhone     string        `json:"contact_phone"`
	Urgency          Urgency       `json:"urgency"`
	Status           RequestStatus `json:"status"`
	Notes            string        `json:"notes"`
	NeededByDate     time.Time     `json:"needed_by_date"`
	ExpiresAt        time.Time     `json:"expires_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Overdue reports whether an active request has passed its expiry at now.
func (r *BloodRequest) Overdue(now time.Time) bool {
	return r.Status == RequestActive && !now.Before(r.ExpiresAt)
}

// RequestSummary is a request with its response tallies, for recipient tracking.
type RequestSummary struct {
	BloodRequest
	Accepted int `json:"accepted"`
	Refused  int `json:"refused"`
}
