package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roktodanbd/roktodan/internal/model"
)

func TestAccountCreateAndLogin(t *testing.T) {
	db := setupTestDB(t)
	as := NewAccountStore(db)
	ctx := context.Background()

	a, err := as.Create(ctx, "Rahim@Example.com", "01711000001", "hash", testNow)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if a.Email != "rahim@example.com" {
		t.Errorf("email = %q, want lowercased", a.Email)
	}

	byEmail, err := as.GetByLogin(ctx, "RAHIM@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if byEmail == nil || byEmail.ID != a.ID {
		t.Fatalf("get by email = %+v, want id %d", byEmail, a.ID)
	}

	byPhone, err := as.GetByLogin(ctx, " 01711000001 ")
	if err != nil {
		t.Fatalf("get by phone: %v", err)
	}
	if byPhone == nil || byPhone.ID != a.ID {
		t.Fatalf("get by phone = %+v, want id %d", byPhone, a.ID)
	}

	missing, err := as.GetByLogin(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown login, got %+v", missing)
	}
}

func TestAccountCreateDuplicate(t *testing.T) {
	db := setupTestDB(t)
	as := NewAccountStore(db)
	ctx := context.Background()

	if _, err := as.Create(ctx, "a@example.com", "01711000001", "hash", testNow); err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, err := as.Create(ctx, "A@example.com", "01711000002", "hash", testNow)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email error = %v, want ErrConflict", err)
	}
	_, err = as.Create(ctx, "b@example.com", "01711000001", "hash", testNow)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate phone error = %v, want ErrConflict", err)
	}
}

func TestResolveProfile(t *testing.T) {
	db := setupTestDB(t)
	as := NewAccountStore(db)
	ctx := context.Background()

	plain := createTestAccount(t, db)
	p, err := as.ResolveProfile(ctx, plain.ID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.Role != model.RoleNone {
		t.Errorf("role = %q, want none", p.Role)
	}

	donor := createTestDonor(t, db, model.BloodOPos, "Mirpur")
	p, err = as.ResolveProfile(ctx, donor.AccountID)
	if err != nil {
		t.Fatalf("resolve donor: %v", err)
	}
	if p.Role != model.RoleDonor || p.DonorID == nil || *p.DonorID != donor.ID {
		t.Errorf("donor profile = %+v", p)
	}

	// Same account takes a recipient profile too.
	_, err = NewRecipientStore(db).Create(ctx, model.Recipient{
		AccountID: donor.AccountID, FullName: "Both", Phone: donor.Phone, Email: donor.Email,
		BloodGroup: model.BloodOPos, Thana: "Mirpur", District: "Dhaka",
	}, testNow)
	if err != nil {
		t.Fatalf("create recipient: %v", err)
	}
	p, err = as.ResolveProfile(ctx, donor.AccountID)
	if err != nil {
		t.Fatalf("resolve both: %v", err)
	}
	if p.Role != model.RoleBoth || p.RecipientID == nil {
		t.Errorf("both profile = %+v", p)
	}

	missing, err := as.ResolveProfile(ctx, 9999)
	if err != nil {
		t.Fatalf("resolve missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil profile, got %+v", missing)
	}
}
