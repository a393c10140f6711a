package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
	"github.com/roktodanbd/roktodan/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type env struct {
	svc      *Service
	sessions *store.SessionStore
	rec      *recorder
	clock    *time.Time
}

func setup(t *testing.T) *env {
	t.Helper()
	f := testutil.New(t)
	now := testutil.Now
	e := &env{rec: &recorder{}, clock: &now, sessions: store.NewSessionStore(f.DB)}
	e.svc = NewService(
		store.NewTransactor(f.DB),
		store.NewAccountStore(f.DB),
		e.sessions,
		store.NewDonorStore(f.DB),
		store.NewRecipientStore(f.DB),
		e.rec,
		WithClock(func() time.Time { return *e.clock }),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithHashCost(bcrypt.MinCost),
	)
	return e
}

func ptr(s string) *string { return &s }

func donorInput() RegisterDonorInput {
	return RegisterDonorInput{
		DonorInput: DonorInput{
			FullName:   "Rahim Uddin",
			Phone:      "01711000001",
			Email:      "Rahim@Example.com",
			Age:        30,
			BloodGroup: model.BloodBPos,
			Thana:      "Mirpur",
			PostOffice: "Mirpur-1216",
			District:   "Dhaka",
		},
		Password: "s3cret-pass",
	}
}

func recipientInput() RegisterRecipientInput {
	return RegisterRecipientInput{
		FullName:   "Karim Ahmed",
		Phone:      "01711000002",
		Email:      "karim@example.com",
		Password:   "another-pass",
		BloodGroup: model.BloodOPos,
		Thana:      "Dhanmondi",
		District:   "Dhaka",
	}
}

func TestRegisterDonor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	donor, sess, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	assert.Equal(t, "rahim@example.com", donor.Email)
	assert.True(t, donor.IsActive)
	assert.True(t, donor.IsAvailable)
	assert.Nil(t, donor.LastDonationMonth)
	assert.Equal(t, donor.AccountID, sess.AccountID)
	assert.Equal(t, []notify.Kind{notify.KindDonorWelcome, notify.KindAdminNewRegistration}, e.rec.kinds())

	ac, err := e.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, ac)
	assert.Equal(t, model.RoleDonor, ac.Profile.Role)
	require.NotNil(t, ac.Profile.DonorID)
	assert.Equal(t, donor.ID, *ac.Profile.DonorID)
}

func TestRegisterDonorValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterDonorInput)
		field  string
	}{
		{"missing name", func(in *RegisterDonorInput) { in.FullName = " " }, "full_name"},
		{"bad email", func(in *RegisterDonorInput) { in.Email = "not-an-email" }, "email"},
		{"too young", func(in *RegisterDonorInput) { in.Age = 17 }, "age"},
		{"too old", func(in *RegisterDonorInput) { in.Age = 66 }, "age"},
		{"unknown group", func(in *RegisterDonorInput) { in.BloodGroup = "C+" }, "blood_group"},
		{"missing district", func(in *RegisterDonorInput) { in.District = "" }, "district"},
		{"month without year", func(in *RegisterDonorInput) { in.LastDonationMonth = ptr("January") }, "last_donation"},
		{"unreadable month", func(in *RegisterDonorInput) {
			in.LastDonationMonth, in.LastDonationYear = ptr("Smarch"), ptr("2023")
		}, "last_donation"},
		{"short password", func(in *RegisterDonorInput) { in.Password = "short" }, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			in := donorInput()
			tt.mutate(&in)

			_, _, err := e.svc.RegisterDonor(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, e.rec.kinds())
		})
	}
}

func TestRegisterDonorLastDonation(t *testing.T) {
	e := setup(t)
	in := donorInput()
	in.LastDonationMonth, in.LastDonationYear = ptr(" jan "), ptr("2024")
	unavailable := false
	in.IsAvailable = &unavailable

	donor, _, err := e.svc.RegisterDonor(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, donor.LastDonationMonth)
	assert.Equal(t, "jan", *donor.LastDonationMonth)
	assert.Equal(t, "2024", *donor.LastDonationYear)
	assert.False(t, donor.IsAvailable)
}

func TestRegisterBothProfilesOnOneAccount(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	donor, _, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	rin := recipientInput()
	rin.Email, rin.Phone, rin.Password = "rahim@example.com", "01711000001", "s3cret-pass"
	recipient, sess, err := e.svc.RegisterRecipient(ctx, rin)
	require.NoError(t, err)
	assert.Equal(t, donor.AccountID, recipient.AccountID)

	ac, err := e.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleBoth, ac.Profile.Role)
}

func TestRegisterTakenLogin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, _, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		rin := recipientInput()
		rin.Email, rin.Phone = "rahim@example.com", "01711000001"
		_, _, err := e.svc.RegisterRecipient(ctx, rin)
		require.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("email of one account, phone of none", func(t *testing.T) {
		rin := recipientInput()
		rin.Email = "rahim@example.com"
		_, _, err := e.svc.RegisterRecipient(ctx, rin)
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "email", ve.Field)
	})

	t.Run("phone taken", func(t *testing.T) {
		rin := recipientInput()
		rin.Phone = "01711000001"
		_, _, err := e.svc.RegisterRecipient(ctx, rin)
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "phone", ve.Field)
	})

	t.Run("second donor profile", func(t *testing.T) {
		_, _, err := e.svc.RegisterDonor(ctx, donorInput())
		var ve *apperr.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "account", ve.Field)
	})
}

func TestRegisterNotificationFailureIsNotFatal(t *testing.T) {
	e := setup(t)
	e.rec.err = errors.New("smtp down")

	recipient, sess, err := e.svc.RegisterRecipient(context.Background(), recipientInput())
	require.NoError(t, err)
	assert.NotZero(t, recipient.ID)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, []notify.Kind{notify.KindRecipientWelcome, notify.KindAdminNewRegistration}, e.rec.kinds())
}

func TestLogin(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	donor, _, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	for _, login := range []string{"RAHIM@example.com", "01711000001", " 01711000001 "} {
		sess, err := e.svc.Login(ctx, login, "s3cret-pass")
		require.NoError(t, err, login)
		assert.Equal(t, donor.AccountID, sess.AccountID)
	}

	_, err = e.svc.Login(ctx, "01711000001", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = e.svc.Login(ctx, "nobody@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionExpiryAndLogout(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	_, sess, err := e.svc.RegisterRecipient(ctx, recipientInput())
	require.NoError(t, err)

	ac, err := e.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, ac)

	later := testutil.Now.Add(store.SessionTTL + time.Minute)
	*e.clock = later
	ac, err = e.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, ac)

	n, err := e.svc.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	*e.clock = testutil.Now
	sess, err = e.svc.Login(ctx, "karim@example.com", "another-pass")
	require.NoError(t, err)
	require.NoError(t, e.svc.Logout(ctx, sess.ID))
	ac, err = e.svc.Authenticate(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, ac)

	ac, err = e.svc.Authenticate(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, ac)
}

func TestUpdateDonor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	donor, _, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	in := donorInput().DonorInput
	in.Thana = "Uttara"
	in.LastDonationMonth, in.LastDonationYear = ptr("February"), ptr("2024")

	updated, err := e.svc.UpdateDonor(ctx, donor.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Uttara", updated.Thana)
	assert.True(t, updated.IsAvailable, "nil IsAvailable keeps the stored value")
	assert.Equal(t, "February", *updated.LastDonationMonth)

	off := false
	in.IsAvailable = &off
	updated, err = e.svc.UpdateDonor(ctx, donor.ID, in)
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable)

	_, err = e.svc.UpdateDonor(ctx, 9999, in)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetDonorActive(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	donor, _, err := e.svc.RegisterDonor(ctx, donorInput())
	require.NoError(t, err)

	d, err := e.svc.SetDonorActive(ctx, donor.ID, false)
	require.NoError(t, err)
	assert.False(t, d.IsActive)

	_, err = e.svc.SetDonorActive(ctx, 9999, false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
