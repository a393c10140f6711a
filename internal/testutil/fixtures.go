// Package testutil builds database fixtures for service-level tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roktodanbd/roktodan/internal/database"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/store"
)

// Now is the fixed instant fixtures are created at.
var Now = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

// Clock returns a func that always reports t.
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Fixtures owns an in-memory database for one test.
type Fixtures struct {
	t   testing.TB
	DB  *sql.DB
	seq int
}

func New(t testing.TB) *Fixtures {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Fixtures{t: t, DB: db}
}

func (f *Fixtures) Account() *model.Account {
	f.t.Helper()
	f.seq++
	a, err := store.NewAccountStore(f.DB).Create(context.Background(),
		fmt.Sprintf("user%d@example.com", f.seq), fmt.Sprintf("0181100%04d", f.seq), "hash", Now)
	require.NoError(f.t, err)
	return a
}

// Donor registers an available donor in the given thana.
func (f *Fixtures) Donor(group model.BloodGroup, thana string) *model.Donor {
	f.t.Helper()
	a := f.Account()
	d, err := store.NewDonorStore(f.DB).Create(context.Background(), a.ID, store.DonorFields{
		FullName:    "Donor " + a.Phone,
		Phone:       a.Phone,
		Email:       a.Email,
		Age:         28,
		BloodGroup:  group,
		Thana:       thana,
		PostOffice:  "Mirpur-1216",
		District:    "Dhaka",
		IsAvailable: true,
	}, Now)
	require.NoError(f.t, err)
	return d
}

func (f *Fixtures) Recipient() *model.Recipient {
	f.t.Helper()
	a := f.Account()
	r, err := store.NewRecipientStore(f.DB).Create(context.Background(), model.Recipient{
		AccountID:  a.ID,
		FullName:   "Recipient " + a.Phone,
		Phone:      a.Phone,
		Email:      a.Email,
		BloodGroup: model.BloodOPos,
		Thana:      "Mirpur",
		District:   "Dhaka",
	}, Now)
	require.NoError(f.t, err)
	return r
}

// Request opens a one-unit request created at created. It expires two days
// later and is needed within three.
func (f *Fixtures) Request(recipientID int64, group model.BloodGroup, thana string, urgency model.Urgency, created time.Time) *model.BloodRequest {
	f.t.Helper()
	return f.RequestUnits(recipientID, group, thana, urgency, created, 1)
}

func (f *Fixtures) RequestUnits(recipientID int64, group model.BloodGroup, thana string, urgency model.Urgency, created time.Time, units int) *model.BloodRequest {
	f.t.Helper()
	r, err := store.NewBloodRequestStore(f.DB).Create(context.Background(), model.BloodRequest{
		RecipientID:      recipientID,
		PatientName:      "Patient",
		BloodGroupNeeded: group,
		UnitsNeeded:      units,
		HospitalName:     "Dhaka Medical College Hospital",
		Thana:            thana,
		District:         "Dhaka",
		ContactPhone:     "01700000000",
		Urgency:          urgency,
		NeededByDate:     created.Add(72 * time.Hour),
		ExpiresAt:        created.Add(48 * time.Hour),
	}, created)
	require.NoError(f.t, err)
	return r
}

// PendingDonation logs a donation that has not been completed yet.
func (f *Fixtures) PendingDonation(d *model.Donor, date time.Time) *model.DonationHistory {
	f.t.Helper()
	h, err := store.NewDonationStore(f.DB).Create(context.Background(), model.DonationHistory{
		DonorID:      d.ID,
		DonationDate: date,
		BloodGroup:   d.BloodGroup,
		Hospital:     "Dhaka Medical College Hospital",
	}, Now)
	require.NoError(f.t, err)
	return h
}

// CompletedDonation logs a donation and marks it completed without granting
// any reward.
func (f *Fixtures) CompletedDonation(d *model.Donor, date time.Time) *model.DonationHistory {
	f.t.Helper()
	h := f.PendingDonation(d, date)
	ok, err := store.NewDonationStore(f.DB).Transition(context.Background(), h.ID, model.DonationPending, model.DonationCompleted, Now)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	h.Status = model.DonationCompleted
	return h
}
