package auth

import (
	"context"

	"github.com/roktodanbd/roktodan/internal/model"
)

type contextKey struct{}

// AuthContext is the authenticated caller of a request. The profile is
// resolved once per request so handlers branch on Role without further
// queries.
type AuthContext struct {
	Profile   model.AccountProfile
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func AccountID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.Profile.Account.ID
}

// DonorID returns the caller's donor profile id, if the account has one.
func DonorID(ctx context.Context) (int64, bool) {
	ac, ok := FromContext(ctx)
	if !ok || !ac.Profile.Role.CanDonate() || ac.Profile.DonorID == nil {
		return 0, false
	}
	return *ac.Profile.DonorID, true
}

// RecipientID returns the caller's recipient profile id, if the account has one.
func RecipientID(ctx context.Context) (int64, bool) {
	ac, ok := FromContext(ctx)
	if !ok || !ac.Profile.Role.CanRequest() || ac.Profile.RecipientID == nil {
		return 0, false
	}
	return *ac.Profile.RecipientID, true
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Profile.Account.IsAdmin
}
