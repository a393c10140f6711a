package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/store"
	"github.com/roktodanbd/roktodan/internal/testutil"
)

func newFinder(fx *testutil.Fixtures, now time.Time) *Finder {
	return NewFinder(store.NewBloodRequestStore(fx.DB), store.NewDonorStore(fx.DB), WithClock(testutil.Clock(now)))
}

func ids(reqs []model.BloodRequest) []int64 {
	out := make([]int64, len(reqs))
	for i, r := range reqs {
		out[i] = r.ID
	}
	return out
}

func TestFindCompatibleRequests(t *testing.T) {
	fx := testutil.New(t)
	ctx := context.Background()
	now := testutil.Now.Add(time.Hour)

	d := fx.Donor(model.BloodOPos, "Mirpur")
	rc := fx.Recipient()
	match := fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyMedium, testutil.Now)
	fx.Request(rc.ID, model.BloodAPos, "Mirpur", model.UrgencyMedium, testutil.Now)
	fx.Request(rc.ID, model.BloodOPos, "Dhanmondi", model.UrgencyMedium, testutil.Now)

	got, err := newFinder(fx, now).FindCompatibleRequests(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []int64{match.ID}, ids(got))
}

func TestFindCompatibleRequestsOrdering(t *testing.T) {
	fx := testutil.New(t)
	ctx := context.Background()

	d := fx.Donor(model.BloodBNeg, "Uttara")
	rc := fx.Recipient()
	base := testutil.Now
	oldCritical := fx.Request(rc.ID, model.BloodBNeg, "Uttara", model.UrgencyCritical, base)
	low := fx.Request(rc.ID, model.BloodBNeg, "Uttara", model.UrgencyLow, base.Add(3*time.Hour))
	newCritical := fx.Request(rc.ID, model.BloodBNeg, "Uttara", model.UrgencyCritical, base.Add(2*time.Hour))
	high := fx.Request(rc.ID, model.BloodBNeg, "Uttara", model.UrgencyHigh, base.Add(time.Hour))

	got, err := newFinder(fx, base.Add(4*time.Hour)).FindCompatibleRequests(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []int64{newCritical.ID, oldCritical.ID, high.ID, low.ID}, ids(got))
}

func TestFindCompatibleRequestsExcludesAnswered(t *testing.T) {
	fx := testutil.New(t)
	ctx := context.Background()
	now := testutil.Now.Add(time.Hour)

	d := fx.Donor(model.BloodOPos, "Mirpur")
	rc := fx.Recipient()
	accepted := fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)
	refused := fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)
	open := fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

	responses := store.NewResponseStore(fx.DB)
	_, err := responses.Create(ctx, model.DonorResponse{DonorID: d.ID, BloodRequestID: accepted.ID, Response: model.ResponseAccept}, now)
	require.NoError(t, err)
	_, err = responses.Create(ctx, model.DonorResponse{DonorID: d.ID, BloodRequestID: refused.ID, Response: model.ResponseRefuse}, now)
	require.NoError(t, err)

	got, err := newFinder(fx, now).FindCompatibleRequests(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, []int64{open.ID}, ids(got))
}

func TestFindCompatibleRequestsSkipsClosedAndOverdue(t *testing.T) {
	fx := testutil.New(t)
	ctx := context.Background()

	d := fx.Donor(model.BloodOPos, "Mirpur")
	rc := fx.Recipient()
	cancelled := fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)
	fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now.Add(-72*time.Hour))

	ok, err := store.NewBloodRequestStore(fx.DB).Transition(ctx, cancelled.ID, model.RequestActive, model.RequestCancelled, testutil.Now)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := newFinder(fx, testutil.Now.Add(time.Minute)).FindCompatibleRequests(ctx, d)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindCompatibleDonors(t *testing.T) {
	fx := testutil.New(t)
	ctx := context.Background()
	donors := store.NewDonorStore(fx.DB)

	first := fx.Donor(model.BloodABNeg, "Mirpur")
	second := fx.Donor(model.BloodABNeg, "Mirpur")
	fx.Donor(model.BloodABNeg, "Gulshan")
	fx.Donor(model.BloodABPos, "Mirpur")
	inactive := fx.Donor(model.BloodABNeg, "Mirpur")
	require.NoError(t, donors.SetActive(ctx, inactive.ID, false, testutil.Now))

	f := newFinder(fx, testutil.Now)

	t.Run("thana", func(t *testing.T) {
		got, err := f.FindCompatibleDonors(ctx, model.DonorCriteria{BloodGroup: model.BloodABNeg, Thana: " Mirpur "})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, second.ID, got[0].ID)
		assert.Equal(t, first.ID, got[1].ID)
	})

	t.Run("district only", func(t *testing.T) {
		got, err := f.FindCompatibleDonors(ctx, model.DonorCriteria{BloodGroup: model.BloodABNeg, District: "Dhaka"})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := f.FindCompatibleDonors(ctx, model.DonorCriteria{BloodGroup: model.BloodONeg, Thana: "Mirpur"})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("invalid group", func(t *testing.T) {
		_, err := f.FindCompatibleDonors(ctx, model.DonorCriteria{BloodGroup: "C+"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
