package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/backup"
	"github.com/roktodanbd/roktodan/internal/donation"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/reward"
)

// AdminHandler serves /api/admin/... for accounts with the admin flag.
type AdminHandler struct {
	rewards   *reward.Engine
	donations *donation.Service
	accounts  *auth.Service
	backups   *backup.Manager
	logger    *slog.Logger
}

func NewAdminHandler(rewards *reward.Engine, donations *donation.Service, accounts *auth.Service, backups *backup.Manager, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{rewards: rewards, donations: donations, accounts: accounts, backups: backups, logger: logger}
}

// PendingWithdrawals handles GET /api/admin/withdrawals
func (h *AdminHandler) PendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	list, err := h.rewards.PendingWithdrawals(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list pending withdrawals", err)
		return
	}
	if list == nil {
		list = []model.WithdrawalRequest{}
	}
	writeJSON(w, http.StatusOK, list)
}

type withdrawalTransition func(ctx context.Context, id int64) (*model.WithdrawalRequest, error)

func (h *AdminHandler) transitionWithdrawal(op string, fn withdrawalTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		wr, err := fn(r.Context(), id)
		if err != nil {
			writeServiceError(w, h.logger, op, err)
			return
		}
		h.logger.Info(op, "withdrawal_id", id, "status", wr.Status, "admin_account_id", auth.AccountID(r.Context()))
		writeJSON(w, http.StatusOK, wr)
	}
}

// ApproveWithdrawal handles POST /api/admin/withdrawals/{id}/approve
func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal("approve withdrawal", h.rewards.ApproveWithdrawal)(w, r)
}

// CompleteWithdrawal handles POST /api/admin/withdrawals/{id}/complete
func (h *AdminHandler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal("complete withdrawal", h.rewards.CompleteWithdrawal)(w, r)
}

// FailWithdrawal handles POST /api/admin/withdrawals/{id}/fail
func (h *AdminHandler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal("fail withdrawal", h.rewards.FailWithdrawal)(w, r)
}

// CancelWithdrawal handles POST /api/admin/withdrawals/{id}/cancel
func (h *AdminHandler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transitionWithdrawal("cancel withdrawal", h.rewards.CancelWithdrawal)(w, r)
}

// CompleteDonation handles POST /api/admin/donations/{id}/complete. It
// settles the donor's rewards in the same transaction.
func (h *AdminHandler) CompleteDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.donations.Complete(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "complete donation", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type activeRequest struct {
	Active bool `json:"active"`
}

// SetDonorActive handles PUT /api/admin/donors/{id}/active
func (h *AdminHandler) SetDonorActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req activeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, err := h.accounts.SetDonorActive(r.Context(), id, req.Active)
	if err != nil {
		writeServiceError(w, h.logger, "set donor active", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type backupsResponse struct {
	Status  backup.Status  `json:"status"`
	Backups []model.Backup `json:"backups"`
}

// Backups handles GET /api/admin/backups
func (h *AdminHandler) Backups(w http.ResponseWriter, r *http.Request) {
	list, err := h.backups.List(r.Context(), 50)
	if err != nil {
		writeServiceError(w, h.logger, "list backups", err)
		return
	}
	if list == nil {
		list = []model.Backup{}
	}
	writeJSON(w, http.StatusOK, backupsResponse{Status: h.backups.Status(), Backups: list})
}

// RunBackup handles POST /api/admin/backups
func (h *AdminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	b, err := h.backups.RunNow(r.Context())
	if errors.Is(err, backup.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, "run backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// DownloadBackup handles GET /api/admin/backups/{id}/download. The body is
// the encrypted snapshot as stored.
func (h *AdminHandler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, size, err := h.backups.Download(r.Context(), id)
	if errors.Is(err, backup.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, h.logger, "download backup", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="roktodan-backup-%d.db.enc"`, id))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream backup", "backup_id", id, "error", err)
	}
}
