package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/database"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
)

var quiet = slog.New(slog.DiscardHandler)

func setupAuthService(t *testing.T) (*auth.Service, *store.SessionStore, *store.AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sessions := store.NewSessionStore(db)
	accounts := store.NewAccountStore(db)
	svc := auth.NewService(store.NewTransactor(db), accounts, sessions,
		store.NewDonorStore(db), store.NewRecipientStore(db), notify.Discard{},
		auth.WithLogger(quiet))
	return svc, sessions, accounts
}

func unreachable(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	})
}

func TestRequireAuthNoToken(t *testing.T) {
	svc, _, _ := setupAuthService(t)

	rec := httptest.NewRecorder()
	RequireAuth(svc, quiet)(unreachable(t)).ServeHTTP(rec, httptest.NewRequest("GET", "/api/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRequireAuthInvalidToken(t *testing.T) {
	svc, _, _ := setupAuthService(t)

	req := httptest.NewRequest("GET", "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "invalid-token"})
	rec := httptest.NewRecorder()
	RequireAuth(svc, quiet)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRequireAuthValidSession(t *testing.T) {
	svc, sessions, accounts := setupAuthService(t)
	ctx := context.Background()

	a, err := accounts.Create(ctx, "alice@example.com", "01700000001", "hash", time.Now())
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	sess, err := sessions.Create(ctx, a.ID, time.Now())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	for _, viaCookie := range []bool{true, false} {
		var got auth.AuthContext
		handler := RequireAuth(svc, quiet)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				t.Fatal("expected AuthContext in request context")
			}
			got = ac
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/api/me", nil)
		if viaCookie {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
		} else {
			req.Header.Set("Authorization", "Bearer "+sess.Token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("cookie=%v: status = %d, want %d", viaCookie, rec.Code, http.StatusOK)
		}
		if got.Profile.Account.ID != a.ID {
			t.Errorf("AccountID = %d, want %d", got.Profile.Account.ID, a.ID)
		}
		if got.Profile.Role != model.RoleNone {
			t.Errorf("Role = %q, want %q", got.Profile.Role, model.RoleNone)
		}
		if got.SessionID != sess.ID {
			t.Errorf("SessionID = %d, want %d", got.SessionID, sess.ID)
		}
	}
}

type failingAuthenticator struct{}

func (failingAuthenticator) Authenticate(context.Context, string) (*auth.AuthContext, error) {
	return nil, errors.New("database is locked")
}

func TestRequireAuthStoreError(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	RequireAuth(failingAuthenticator{}, quiet)(unreachable(t)).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func withProfile(p model.AccountProfile) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	return req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{Profile: p}))
}

func TestRoleGuards(t *testing.T) {
	donorID := int64(3)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name    string
		guard   func(http.Handler) http.Handler
		profile model.AccountProfile
		want    int
	}{
		{"admin allowed", RequireAdmin, model.AccountProfile{Account: model.Account{IsAdmin: true}}, http.StatusOK},
		{"admin forbidden", RequireAdmin, model.AccountProfile{}, http.StatusForbidden},
		{"donor allowed", RequireDonor, model.AccountProfile{Role: model.RoleDonor, DonorID: &donorID}, http.StatusOK},
		{"donor forbidden", RequireDonor, model.AccountProfile{Role: model.RoleRecipient}, http.StatusForbidden},
		{"recipient forbidden", RequireRecipient, model.AccountProfile{Role: model.RoleDonor, DonorID: &donorID}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.guard(ok).ServeHTTP(rec, withProfile(tt.profile))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
