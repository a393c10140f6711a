package model

import "time"

type Account struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AccountRole is the set of profiles an account carries.
type AccountRole string

const (
	RoleNone      AccountRole = "none"
	RoleDonor     AccountRole = "donor"
	RoleRecipient AccountRole = "recipient"
	RoleBoth      AccountRole = "both"
)

// RoleFor combines profile presence into a role.
func RoleFor(hasDonor, hasRecipient bool) AccountRole {
	switch {
	case hasDonor && hasRecipient:
		return RoleBoth
	case hasDonor:
		return RoleDonor
	case hasRecipient:
		return RoleRecipient
	default:
		return RoleNone
	}
}

func (r AccountRole) CanDonate() bool {
	return r == RoleDonor || r == RoleBoth
}

func (r AccountRole) CanRequest() bool {
	return r == RoleRecipient || r == RoleBoth
}

// AccountProfile is an account with its role resolved against the donor and
// recipient tables.
type AccountProfile struct {
	Account     Account     `json:"account"`
	Role        AccountRole `json:"role"`
	DonorID     *int64      `json:"donor_id,omitempty"`
	RecipientID *int64      `json:"recipient_id,omitempty"`
}
