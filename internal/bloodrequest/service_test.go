package bloodrequest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/store"
	"github.com/roktodanbd/roktodan/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ofKind(k notify.Kind) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

type env struct {
	fx    *testutil.Fixtures
	svc   *Service
	notes *recorder
}

func newEnv(t *testing.T, now time.Time) *env {
	fx := testutil.New(t)
	clock := testutil.Clock(now)
	requests := store.NewBloodRequestStore(fx.DB)
	rec := &recorder{}
	svc := NewService(
		store.NewTransactor(fx.DB),
		requests,
		store.NewResponseStore(fx.DB),
		matching.NewFinder(requests, store.NewDonorStore(fx.DB), matching.WithClock(clock)),
		rec,
		WithClock(clock),
	)
	return &env{fx: fx, svc: svc, notes: rec}
}

func validInput() CreateInput {
	return CreateInput{
		PatientName:  "Abdul Karim",
		BloodGroup:   model.BloodOPos,
		HospitalName: "Dhaka Medical College Hospital",
		Thana:        "Mirpur",
		ContactPhone: "01710000000",
		Urgency:      model.UrgencyCritical,
		NeededBy:     testutil.Now.Add(24 * time.Hour),
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t, testutil.Now)
	ctx := context.Background()
	rc := e.fx.Recipient()
	match := e.fx.Donor(model.BloodOPos, "Mirpur")
	e.fx.Donor(model.BloodOPos, "Gulshan")
	e.fx.Donor(model.BloodAPos, "Mirpur")

	r, err := e.svc.Create(ctx, rc, validInput())
	require.NoError(t, err)
	assert.Equal(t, model.RequestActive, r.Status)
	assert.Equal(t, 1, r.UnitsNeeded)
	assert.Equal(t, "Dhaka", r.District)
	assert.True(t, r.ExpiresAt.Equal(r.NeededByDate))

	opened := e.notes.ofKind(notify.KindRequestOpened)
	require.Len(t, opened, 1)
	assert.Equal(t, r.ID, opened[0].Request.ID)

	alerts := e.notes.ofKind(notify.KindBloodRequestToDonor)
	require.Len(t, alerts, 1)
	assert.Equal(t, match.ID, alerts[0].Donor.ID)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t, testutil.Now)
	rc := e.fx.Recipient()

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"patient", func(in *CreateInput) { in.PatientName = "  " }, "patient_name"},
		{"blood group", func(in *CreateInput) { in.BloodGroup = "Z" }, "blood_group_needed"},
		{"urgency", func(in *CreateInput) { in.Urgency = "whenever" }, "urgency"},
		{"units", func(in *CreateInput) { in.UnitsNeeded = 11 }, "units_needed"},
		{"needed by past", func(in *CreateInput) { in.NeededBy = testutil.Now.Add(-time.Hour) }, "needed_by_date"},
		{"expires after needed by", func(in *CreateInput) { in.ExpiresAt = in.NeededBy.Add(time.Minute) }, "expires_at"},
		{"expires past", func(in *CreateInput) { in.ExpiresAt = testutil.Now }, "expires_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := e.svc.Create(context.Background(), rc, in)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCancel(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	owner := e.fx.Recipient()
	other := e.fx.Recipient()
	r := e.fx.Request(owner.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now)

	_, err := e.svc.Cancel(ctx, other.ID, r.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := e.svc.Cancel(ctx, owner.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestCancelled, got.Status)
	require.Len(t, e.notes.ofKind(notify.KindRequestClosed), 1)

	_, err = e.svc.Cancel(ctx, owner.ID, r.ID)
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "request is cancelled", nf.Reason)
}

func TestCancelOverdueExpires(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(50*time.Hour))
	ctx := context.Background()
	rc := e.fx.Recipient()
	r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now)

	_, err := e.svc.Cancel(ctx, rc.ID, r.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := e.svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestExpired, got.Status)
	closed := e.notes.ofKind(notify.KindRequestClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, model.RequestExpired, closed[0].Request.Status)
}

func TestListings(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	rc := e.fx.Recipient()
	low := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now)
	high := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)
	crit := e.fx.Request(rc.ID, model.BloodAPos, "Banani", model.UrgencyCritical, testutil.Now)

	all, err := e.svc.ListActive(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, crit.ID, all[0].ID)
	assert.Equal(t, low.ID, all[2].ID)

	filtered, err := e.svc.ListActive(ctx, Filter{BloodGroup: model.BloodOPos, Thana: "Mirpur"})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	emergency, err := e.svc.Emergency(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, emergency, 2)
	assert.Equal(t, crit.ID, emergency[0].ID)
	assert.Equal(t, high.ID, emergency[1].ID)

	_, err = e.svc.ListActive(ctx, Filter{BloodGroup: "XY"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTrackAndResponses(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(49*time.Hour))
	ctx := context.Background()
	rc := e.fx.Recipient()
	old := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now)
	fresh := e.fx.RequestUnits(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now.Add(48*time.Hour), 3)

	responses := store.NewResponseStore(e.fx.DB)
	for _, v := range []model.ResponseValue{model.ResponseAccept, model.ResponseAccept, model.ResponseRefuse} {
		d := e.fx.Donor(model.BloodOPos, "Mirpur")
		_, err := responses.Create(ctx, model.DonorResponse{DonorID: d.ID, BloodRequestID: fresh.ID, Response: v}, testutil.Now.Add(48*time.Hour))
		require.NoError(t, err)
	}

	list, err := e.svc.Track(ctx, rc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	byID := map[int64]model.RequestSummary{}
	for _, s := range list {
		byID[s.ID] = s
	}
	assert.Equal(t, model.RequestExpired, byID[old.ID].Status)
	assert.Equal(t, model.RequestActive, byID[fresh.ID].Status)
	assert.Equal(t, 2, byID[fresh.ID].Accepted)
	assert.Equal(t, 1, byID[fresh.ID].Refused)

	got, err := e.svc.Responses(ctx, rc.ID, fresh.ID)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	stranger := e.fx.Recipient()
	_, err = e.svc.Responses(ctx, stranger.ID, fresh.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExpireDue(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(49*time.Hour))
	ctx := context.Background()
	rc := e.fx.Recipient()
	e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now)
	e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now.Add(-time.Hour))
	e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyLow, testutil.Now.Add(10*time.Hour))

	n, err := e.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = e.svc.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
