package response

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/metrics"
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
	out := make([]notify.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type env struct {
	fx      *testutil.Fixtures
	ledger  *Ledger
	notes   *recorder
	metrics *metrics.Metrics
	now     time.Time
}

func newEnv(t *testing.T, now time.Time) *env {
	fx := testutil.New(t)
	rec := &recorder{}
	m := metrics.New()
	l := NewLedger(
		store.NewTransactor(fx.DB),
		store.NewBloodRequestStore(fx.DB),
		store.NewResponseStore(fx.DB),
		store.NewRecipientStore(fx.DB),
		rec,
		WithClock(testutil.Clock(now)),
		WithMetrics(m),
	)
	return &env{fx: fx, ledger: l, notes: rec, metrics: m, now: now}
}

func TestRecordResponseAcceptFulfils(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	d := e.fx.Donor(model.BloodOPos, "Mirpur")
	rc := e.fx.Recipient()
	r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

	resp, err := e.ledger.RecordResponse(ctx, d, r.ID, Input{Response: model.ResponseAccept, Notes: "  on my way  "})
	require.NoError(t, err)
	assert.Equal(t, model.ResponseAccept, resp.Response)
	assert.Equal(t, "on my way", resp.Notes)

	stored, err := store.NewBloodRequestStore(e.fx.DB).GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestFulfilled, stored.Status)

	assert.Equal(t, []notify.Kind{notify.KindDonorResponse, notify.KindRequestClosed}, e.notes.kinds())
	first := e.notes.events[0]
	require.NotNil(t, first.Recipient)
	assert.Equal(t, rc.ID, first.Recipient.ID)
	assert.Equal(t, resp.ID, first.Response.ID)

	assert.Equal(t, 1.0, promtest.ToFloat64(e.metrics.ResponsesRecorded.WithLabelValues("accept")))
}

func TestRecordResponseRefuseKeepsRequestOpen(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	d := e.fx.Donor(model.BloodOPos, "Mirpur")
	rc := e.fx.Recipient()
	r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

	_, err := e.ledger.RecordResponse(ctx, d, r.ID, Input{Response: model.ResponseRefuse})
	require.NoError(t, err)

	stored, _ := store.NewBloodRequestStore(e.fx.DB).GetByID(ctx, r.ID)
	assert.Equal(t, model.RequestActive, stored.Status)
	assert.Equal(t, []notify.Kind{notify.KindDonorResponse}, e.notes.kinds())
}

func TestRecordResponseMultiUnit(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	rc := e.fx.Recipient()
	r := e.fx.RequestUnits(rc.ID, model.BloodAPos, "Mirpur", model.UrgencyCritical, testutil.Now, 2)
	requests := store.NewBloodRequestStore(e.fx.DB)

	_, err := e.ledger.RecordResponse(ctx, e.fx.Donor(model.BloodAPos, "Mirpur"), r.ID, Input{Response: model.ResponseAccept})
	require.NoError(t, err)
	stored, _ := requests.GetByID(ctx, r.ID)
	assert.Equal(t, model.RequestActive, stored.Status)

	_, err = e.ledger.RecordResponse(ctx, e.fx.Donor(model.BloodAPos, "Mirpur"), r.ID, Input{Response: model.ResponseAccept})
	require.NoError(t, err)
	stored, _ = requests.GetByID(ctx, r.ID)
	assert.Equal(t, model.RequestFulfilled, stored.Status)
}

func TestRecordResponseDuplicate(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	d := e.fx.Donor(model.BloodOPos, "Mirpur")
	rc := e.fx.Recipient()
	r := e.fx.RequestUnits(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now, 3)

	first, err := e.ledger.RecordResponse(ctx, d, r.ID, Input{Response: model.ResponseAccept})
	require.NoError(t, err)

	_, err = e.ledger.RecordResponse(ctx, d, r.ID, Input{Response: model.ResponseRefuse})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDuplicateResponse)
	var dup *apperr.DuplicateResponseError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, d.ID, dup.DonorID)
	assert.Equal(t, r.ID, dup.BloodRequestID)

	stored, err := store.NewResponseStore(e.fx.DB).Get(ctx, d.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, model.ResponseAccept, stored.Response)
	assert.Equal(t, 1.0, promtest.ToFloat64(e.metrics.DuplicateResponses))

	// The answered request no longer surfaces for this donor.
	finder := matching.NewFinder(store.NewBloodRequestStore(e.fx.DB), store.NewDonorStore(e.fx.DB), matching.WithClock(testutil.Clock(e.now)))
	reqs, err := finder.FindCompatibleRequests(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestRecordResponseConcurrentDuplicates(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	d := e.fx.Donor(model.BloodOPos, "Mirpur")
	rc := e.fx.Recipient()
	r := e.fx.RequestUnits(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now, 5)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.ledger.RecordResponse(ctx, d, r.ID, Input{Response: model.ResponseAccept})
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrDuplicateResponse)
	}
	assert.Equal(t, 1, ok)

	all, err := store.NewResponseStore(e.fx.DB).ListByRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordResponseNotActionable(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		e := newEnv(t, testutil.Now)
		_, err := e.ledger.RecordResponse(ctx, e.fx.Donor(model.BloodOPos, "Mirpur"), 404, Input{Response: model.ResponseAccept})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		e := newEnv(t, testutil.Now.Add(time.Hour))
		rc := e.fx.Recipient()
		r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)
		_, err := store.NewBloodRequestStore(e.fx.DB).Transition(ctx, r.ID, model.RequestActive, model.RequestCancelled, testutil.Now)
		require.NoError(t, err)

		_, err = e.ledger.RecordResponse(ctx, e.fx.Donor(model.BloodOPos, "Mirpur"), r.ID, Input{Response: model.ResponseAccept})
		var nf *apperr.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "request is cancelled", nf.Reason)
		assert.Empty(t, e.notes.kinds())
	})

	t.Run("overdue is expired lazily", func(t *testing.T) {
		e := newEnv(t, testutil.Now.Add(49*time.Hour))
		rc := e.fx.Recipient()
		r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

		_, err := e.ledger.RecordResponse(ctx, e.fx.Donor(model.BloodOPos, "Mirpur"), r.ID, Input{Response: model.ResponseAccept})
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		stored, _ := store.NewBloodRequestStore(e.fx.DB).GetByID(ctx, r.ID)
		assert.Equal(t, model.RequestExpired, stored.Status)
		assert.Equal(t, []notify.Kind{notify.KindRequestClosed}, e.notes.kinds())
	})
}

func TestRecordResponseValidation(t *testing.T) {
	e := newEnv(t, testutil.Now)
	d := e.fx.Donor(model.BloodOPos, "Mirpur")

	_, err := e.ledger.RecordResponse(context.Background(), d, 1, Input{Response: "maybe"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.ledger.RecordResponse(context.Background(), nil, 1, Input{Response: model.ResponseAccept})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRecordResponseUnknownDonor(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	ctx := context.Background()
	r := e.fx.Request(e.fx.Recipient().ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

	_, err := e.ledger.RecordResponse(ctx, &model.Donor{ID: 9999, BloodGroup: model.BloodOPos}, r.ID, Input{Response: model.ResponseAccept})
	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "donor", nf.Entity)
	assert.Equal(t, int64(9999), nf.ID)

	stored, err := store.NewBloodRequestStore(e.fx.DB).GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestActive, stored.Status)
	assert.Empty(t, e.notes.kinds())
}

func TestRecordResponseNotificationFailureIsNotFatal(t *testing.T) {
	e := newEnv(t, testutil.Now.Add(time.Hour))
	e.notes.err = &apperr.NotificationDeliveryError{Kind: "donor_response", Err: errors.New("postmark down")}
	d := e.fx.Donor(model.BloodOPos, "Mirpur")
	rc := e.fx.Recipient()
	r := e.fx.Request(rc.ID, model.BloodOPos, "Mirpur", model.UrgencyHigh, testutil.Now)

	resp, err := e.ledger.RecordResponse(context.Background(), d, r.ID, Input{Response: model.ResponseAccept})
	require.NoError(t, err)
	assert.NotZero(t, resp.ID)
}
