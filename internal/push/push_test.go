package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/roktodanbd/roktodan/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    []model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByDonor(ctx context.Context, donorID int64) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PushSubscription
	for _, s := range f.subs {
		if s.DonorID == donorID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

// browserKeys returns a valid p256dh/auth pair as a browser would send it.
func browserKeys(t *testing.T) (string, string) {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), base64.RawURLEncoding.EncodeToString(auth)
}

func TestSendToDonor(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		if r.Header.Get("Authorization") == "" {
			t.Errorf("missing VAPID authorization header")
		}
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	p256dh, auth := browserKeys(t)
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ID: 1, DonorID: 7, Endpoint: server.URL + "/live", P256dhKey: p256dh, AuthKey: auth},
		{ID: 2, DonorID: 7, Endpoint: server.URL + "/gone", P256dhKey: p256dh, AuthKey: auth},
		{ID: 3, DonorID: 8, Endpoint: server.URL + "/other", P256dhKey: p256dh, AuthKey: auth},
	}}

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	svc := NewService(pub, priv, "ops@roktodan.test", subs, WithHTTPClient(server.Client()))

	err = svc.SendToDonor(context.Background(), 7, Payload{Title: "Blood needed", Body: "O+ in Mirpur", URL: "/donor/requests"})
	if err != nil {
		t.Fatalf("send to donor: %v", err)
	}

	if hits["/live"] != 1 || hits["/gone"] != 1 {
		t.Errorf("hits = %v, want one each for /live and /gone", hits)
	}
	if hits["/other"] != 0 {
		t.Error("another donor's device was notified")
	}
	if len(subs.deleted) != 1 || subs.deleted[0] != server.URL+"/gone" {
		t.Errorf("deleted = %v, want the gone endpoint", subs.deleted)
	}
}

func TestSendNotConfigured(t *testing.T) {
	svc := NewService("", "", "ops@roktodan.test", &fakeSubs{})
	if err := svc.SendToDonor(context.Background(), 1, Payload{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}
