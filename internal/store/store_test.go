package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/roktodanbd/roktodan/internal/database"
	"github.com/roktodanbd/roktodan/internal/model"
)

var testNow = time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var fixtureSeq int

func createTestAccount(t *testing.T, db *sql.DB) *model.Account {
	t.Helper()
	fixtureSeq++
	a, err := NewAccountStore(db).Create(context.Background(),
		fmt.Sprintf("user%d@example.com", fixtureSeq), fmt.Sprintf("0171100%04d", fixtureSeq), "hash", testNow)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func createTestDonor(t *testing.T, db *sql.DB, group model.BloodGroup, thana string) *model.Donor {
	t.Helper()
	a := createTestAccount(t, db)
	d, err := NewDonorStore(db).Create(context.Background(), a.ID, DonorFields{
		FullName:    "Donor " + a.Phone,
		Phone:       a.Phone,
		Email:       a.Email,
		Age:         30,
		BloodGroup:  group,
		Thana:       thana,
		PostOffice:  "Mirpur-1216",
		District:    "Dhaka",
		IsAvailable: true,
	}, testNow)
	if err != nil {
		t.Fatalf("create donor: %v", err)
	}
	return d
}

func createTestRecipient(t *testing.T, db *sql.DB) *model.Recipient {
	t.Helper()
	a := createTestAccount(t, db)
	r, err := NewRecipientStore(db).Create(context.Background(), model.Recipient{
		AccountID:  a.ID,
		FullName:   "Recipient " + a.Phone,
		Phone:      a.Phone,
		Email:      a.Email,
		BloodGroup: model.BloodOPos,
		Thana:      "Mirpur",
		District:   "Dhaka",
	}, testNow)
	if err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	return r
}

func createTestRequest(t *testing.T, db *sql.DB, recipientID int64, group model.BloodGroup, thana string, urgency model.Urgency, created time.Time) *model.BloodRequest {
	t.Helper()
	r, err := NewBloodRequestStore(db).Create(context.Background(), model.BloodRequest{
		RecipientID:      recipientID,
		PatientName:      "Patient",
		BloodGroupNeeded: group,
		UnitsNeeded:      1,
		Thana:            thana,
		District:         "Dhaka",
		Urgency:          urgency,
		NeededByDate:     created.Add(72 * time.Hour),
		ExpiresAt:        created.Add(48 * time.Hour),
	}, created)
	if err != nil {
		t.Fatalf("create blood request: %v", err)
	}
	return r
}
