package reward

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roktodanbd/roktodan/internal/apperr"
	"github.com/roktodanbd/roktodan/internal/model"
)

// methods are the payout rails a donor may choose. The first is the default.
var methods = [...]string{"bkash", "nagad", "rocket", "bank"}

func validMethod(m string) bool {
	for _, v := range methods {
		if m == v {
			return true
		}
	}
	return false
}

// SubmitWithdrawal files a pending withdrawal. Points stay available until an
// admin approves it.
func (e *Engine) SubmitWithdrawal(ctx context.Context, donorID int64, points int, method string) (*model.WithdrawalRequest, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = methods[0]
	}
	if !validMethod(method) {
		return nil, apperr.Invalid("method", "must be one of "+strings.Join(methods[:], ", "))
	}
	if points < MinWithdrawal {
		return nil, apperr.Invalid("points", fmt.Sprintf("minimum withdrawal is %d points", MinWithdrawal))
	}

	now := e.now()
	var w *model.WithdrawalRequest
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		acct, err := e.points.GetOrCreate(ctx, donorID, now)
		if err != nil {
			return err
		}
		if points > acct.Available {
			return apperr.Invalid("points", fmt.Sprintf("insufficient points: %d available", acct.Available))
		}
		w, err = e.withdrawals.Create(ctx, acct.ID, newReference(), points, method, now)
		return err
	})
	if err != nil {
		return nil, donorError(err, donorID)
	}
	e.metrics.IncWithdrawal(string(model.WithdrawalPending))
	e.logger.Info("withdrawal submitted", "donor_id", donorID, "reference", w.Reference, "points", points)
	return w, nil
}

func newReference() string {
	return "WD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// ListWithdrawals returns the donor's withdrawals, newest first.
func (e *Engine) ListWithdrawals(ctx context.Context, donorID int64) ([]model.WithdrawalRequest, error) {
	acct, err := e.points.GetByDonor(ctx, donorID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return []model.WithdrawalRequest{}, nil
	}
	ws, err := e.withdrawals.ListByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		ws = []model.WithdrawalRequest{}
	}
	return ws, nil
}

// PendingWithdrawals lists withdrawals awaiting approval, oldest first.
func (e *Engine) PendingWithdrawals(ctx context.Context) ([]model.WithdrawalRequest, error) {
	return e.withdrawals.ListByStatus(ctx, model.WithdrawalPending)
}

// ApproveWithdrawal moves a pending withdrawal to processing and deducts its
// points. It fails with a validation error when the balance no longer covers it.
func (e *Engine) ApproveWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return e.transition(ctx, id, model.WithdrawalProcessing, func(ctx context.Context, w *model.WithdrawalRequest) error {
		if w.Status != model.WithdrawalPending {
			return invalidState(w, model.WithdrawalProcessing)
		}
		ok, err := e.points.Debit(ctx, w.DonorPointsID, w.PointsRequested, fmt.Sprintf("Withdrawal %s via %s", w.Reference, w.Method), e.now())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Invalid("points", "insufficient points to approve withdrawal")
		}
		return nil
	})
}

// CompleteWithdrawal confirms that a processing withdrawal was paid out.
func (e *Engine) CompleteWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return e.transition(ctx, id, model.WithdrawalCompleted, func(_ context.Context, w *model.WithdrawalRequest) error {
		if w.Status != model.WithdrawalProcessing {
			return invalidState(w, model.WithdrawalCompleted)
		}
		return nil
	})
}

// FailWithdrawal marks a processing withdrawal failed and returns its points.
func (e *Engine) FailWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return e.transition(ctx, id, model.WithdrawalFailed, func(ctx context.Context, w *model.WithdrawalRequest) error {
		if w.Status != model.WithdrawalProcessing {
			return invalidState(w, model.WithdrawalFailed)
		}
		return e.refund(ctx, w, "failed")
	})
}

// CancelWithdrawal cancels a pending or processing withdrawal. Points already
// deducted are returned.
func (e *Engine) CancelWithdrawal(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return e.transition(ctx, id, model.WithdrawalCancelled, func(ctx context.Context, w *model.WithdrawalRequest) error {
		switch w.Status {
		case model.WithdrawalPending:
			return nil
		case model.WithdrawalProcessing:
			return e.refund(ctx, w, "cancelled")
		}
		return invalidState(w, model.WithdrawalCancelled)
	})
}

func (e *Engine) refund(ctx context.Context, w *model.WithdrawalRequest, why string) error {
	return e.points.Refund(ctx, w.DonorPointsID, w.PointsRequested, fmt.Sprintf("Reversal of withdrawal %s (%s)", w.Reference, why), e.now())
}

func (e *Engine) transition(ctx context.Context, id int64, to model.WithdrawalStatus, check func(context.Context, *model.WithdrawalRequest) error) (*model.WithdrawalRequest, error) {
	var w *model.WithdrawalRequest
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = e.withdrawals.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if w == nil {
			return apperr.NotFound("withdrawal", id)
		}
		from := w.Status
		if err := check(ctx, w); err != nil {
			return err
		}
		ok, err := e.withdrawals.Transition(ctx, id, from, to, e.now())
		if err != nil {
			return err
		}
		if !ok {
			return invalidState(w, to)
		}
		w, err = e.withdrawals.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.IncWithdrawal(string(to))
	e.logger.Info("withdrawal updated", "withdrawal_id", id, "reference", w.Reference, "status", to)
	return w, nil
}

func invalidState(w *model.WithdrawalRequest, to model.WithdrawalStatus) error {
	return fmt.Errorf("withdrawal %s is %s, cannot move to %s: %w", w.Reference, w.Status, to, apperr.ErrInvalidState)
}
