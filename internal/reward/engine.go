// Package reward turns completed donations into RD points and badges, and
// runs the withdrawal lifecycle that spends them.
package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/store"
)

const (
	// DonationPoints is paid once for every completed donation.
	DonationPoints = 100
	// MinWithdrawal is the smallest number of points a donor may cash out.
	MinWithdrawal = 100
)

type Engine struct {
	tx          *store.Transactor
	points      *store.PointsStore
	donations   *store.DonationStore
	badges      *store.BadgeStore
	withdrawals *store.WithdrawalStore
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(
	tx *store.Transactor,
	points *store.PointsStore,
	donations *store.DonationStore,
	badges *store.BadgeStore,
	withdrawals *store.WithdrawalStore,
	opts ...Option,
) *Engine {
	e := &Engine{
		tx:          tx,
		points:      points,
		donations:   donations,
		badges:      badges,
		withdrawals: withdrawals,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Settlement is what settling a donor's completed donations changed.
type Settlement struct {
	Account   *model.DonorPoints
	Completed int
	// Granted counts donations paid DonationPoints by this settlement.
	Granted   int
	Awarded   []model.BadgeTier
}

// ProcessCompletedDonation settles a donor's rewards and reports them. It
// returns the updated account and the completed count. Callers that wrap it
// in their own transaction use Settle and call Report after commit instead.
func (e *Engine) ProcessCompletedDonation(ctx context.Context, donorID int64) (*model.DonorPoints, int, error) {
	st, err := e.Settle(ctx, donorID)
	if err != nil {
		return nil, 0, err
	}
	e.Report(donorID, st)
	return st.Account, st.Completed, nil
}

// Settle pays DonationPoints for every completed donation without a grant and
// awards every badge tier the completed count has reached, with its bonus.
// Repeated calls with nothing new credit nothing. When ctx carries a
// transaction the work joins it. Settle records no metrics.
func (e *Engine) Settle(ctx context.Context, donorID int64) (*Settlement, error) {
	now := e.now()
	st := &Settlement{}

	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		acct, err := e.points.GetOrCreate(ctx, donorID, now)
		if err != nil {
			return err
		}

		ungranted, err := e.donations.ListUngranted(ctx, donorID)
		if err != nil {
			return err
		}
		for _, id := range ungranted {
			err := e.points.Credit(ctx, acct.ID, DonationPoints, model.TxEarned, fmt.Sprintf("Blood donation #%d", id), &id, now)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return err
			}
			st.Granted++
		}

		count, err := e.donations.CountCompleted(ctx, donorID)
		if err != nil {
			return err
		}
		st.Completed = count

		for _, tier := range model.BadgeTiers {
			if count < tier.Threshold {
				break
			}
			has, err := e.badges.Has(ctx, donorID, tier.Type)
			if err != nil {
				return err
			}
			if has {
				continue
			}
			_, err = e.badges.Create(ctx, donorID, tier.Type, count, now)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return err
			}
			if tier.Bonus > 0 {
				desc := fmt.Sprintf("%s badge bonus (%d donations)", tier.Title, tier.Threshold)
				if err := e.points.Credit(ctx, acct.ID, tier.Bonus, model.TxEarned, desc, nil, now); err != nil {
					return err
				}
			}
			st.Awarded = append(st.Awarded, tier)
		}

		st.Account, err = e.points.GetByID(ctx, acct.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("process completed donation: %w", donorError(err, donorID))
	}
	return st, nil
}

// Report records the metrics and badge logs of a committed settlement.
func (e *Engine) Report(donorID int64, st *Settlement) {
	e.metrics.AddPoints(string(model.TxEarned), st.Granted*DonationPoints)
	for _, tier := range st.Awarded {
		e.metrics.IncBadge(string(tier.Type))
		e.metrics.AddPoints(string(model.TxEarned), tier.Bonus)
		e.logger.Info("badge awarded", "donor_id", donorID, "badge", tier.Type, "donations", st.Completed)
	}
}

// donorError turns a missing-donor reference into a NotFound error.
func donorError(err error, donorID int64) error {
	if errors.Is(err, store.ErrForeignKey) {
		return apperr.NotFound("donor", donorID)
	}
	return err
}

// AddPoints credits n points to the donor with reason as the ledger text.
func (e *Engine) AddPoints(ctx context.Context, donorID int64, n int, reason string) (*model.DonorPoints, error) {
	if n < 0 {
		return nil, apperr.Invalid("points", "must not be negative")
	}
	now := e.now()
	var acct *model.DonorPoints
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		acct, err = e.points.GetOrCreate(ctx, donorID, now)
		if err != nil {
			return err
		}
		if err := e.points.Credit(ctx, acct.ID, n, model.TxEarned, reason, nil, now); err != nil {
			return err
		}
		acct, err = e.points.GetByID(ctx, acct.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add points: %w", donorError(err, donorID))
	}
	e.metrics.AddPoints(string(model.TxEarned), n)
	return acct, nil
}

// WithdrawPoints moves n points from available to withdrawn. It reports false,
// changing nothing, when the donor has fewer than n available.
func (e *Engine) WithdrawPoints(ctx context.Context, donorID int64, n int, method string) (bool, error) {
	if n <= 0 {
		return false, apperr.Invalid("points", "must be positive")
	}
	now := e.now()
	ok := false
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		acct, err := e.points.GetOrCreate(ctx, donorID, now)
		if err != nil {
			return err
		}
		ok, err = e.points.Debit(ctx, acct.ID, n, "Withdrawal via "+method, now)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("withdraw points: %w", donorError(err, donorID))
	}
	return ok, nil
}

// Summary is the donor-facing view of the reward state.
type Summary struct {
	Points       *model.DonorPoints       `json:"points"`
	Badges       []model.DonorBadge       `json:"badges"`
	Transactions []model.PointTransaction `json:"transactions"`
}

func (e *Engine) Summary(ctx context.Context, donorID int64) (*Summary, error) {
	acct, err := e.points.GetOrCreate(ctx, donorID, e.now())
	if err != nil {
		return nil, donorError(err, donorID)
	}
	badges, err := e.badges.ListByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	txs, err := e.points.ListTransactions(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if badges == nil {
		badges = []model.DonorBadge{}
	}
	if txs == nil {
		txs = []model.PointTransaction{}
	}
	return &Summary{Points: acct, Badges: badges, Transactions: txs}, nil
}
