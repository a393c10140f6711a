package auth

import (
	"context"
	"testing"

	"github.com/roktodanbd/roktodan/internal/model"
)

func donorRecipientProfile() model.AccountProfile {
	donorID, recipientID := int64(4), int64(9)
	return model.AccountProfile{
		Account:     model.Account{ID: 1, IsAdmin: true},
		Role:        model.RoleBoth,
		DonorID:     &donorID,
		RecipientID: &recipientID,
	}
}

func TestWithAuthAndFromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Profile: donorRecipientProfile(), SessionID: 3})
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.Profile.Account.ID != 1 {
		t.Errorf("AccountID = %d, want 1", got.Profile.Account.ID)
	}
	if got.Profile.Role != model.RoleBoth {
		t.Errorf("Role = %q, want %q", got.Profile.Role, model.RoleBoth)
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected false for missing AuthContext")
	}
}

func TestProfileIDs(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Profile: donorRecipientProfile()})

	if AccountID(ctx) != 1 {
		t.Errorf("AccountID = %d, want 1", AccountID(ctx))
	}
	if id, ok := DonorID(ctx); !ok || id != 4 {
		t.Errorf("DonorID = %d, %v; want 4, true", id, ok)
	}
	if id, ok := RecipientID(ctx); !ok || id != 9 {
		t.Errorf("RecipientID = %d, %v; want 9, true", id, ok)
	}
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin = true")
	}
}

func TestProfileIDsMissingProfile(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Profile: model.AccountProfile{
		Account: model.Account{ID: 2},
		Role:    model.RoleRecipient,
	}})

	if _, ok := DonorID(ctx); ok {
		t.Error("expected no donor id for a recipient-only account")
	}
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false")
	}
}

func TestMissingContext(t *testing.T) {
	ctx := context.Background()
	if AccountID(ctx) != 0 {
		t.Error("expected 0 for missing context")
	}
	if _, ok := RecipientID(ctx); ok {
		t.Error("expected no recipient id for missing context")
	}
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin = false for missing context")
	}
}
