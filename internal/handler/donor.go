package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/donation"
	"github.com/roktodanbd/roktodan/internal/eligibility"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/response"
	"github.com/roktodanbd/roktodan/internal/reward"
)

// DonorHandler serves /api/donor/... for accounts with a donor profile.
type DonorHandler struct {
	accounts  *auth.Service
	finder    *matching.Finder
	ledger    *response.Ledger
	donations *donation.Service
	rewards   *reward.Engine
	now       func() time.Time
	logger    *slog.Logger
}

func NewDonorHandler(
	accounts *auth.Service,
	finder *matching.Finder,
	ledger *response.Ledger,
	donations *donation.Service,
	rewards *reward.Engine,
	logger *slog.Logger,
) *DonorHandler {
	return &DonorHandler{
		accounts:  accounts,
		finder:    finder,
		ledger:    ledger,
		donations: donations,
		rewards:   rewards,
		now:       time.Now,
		logger:    logger,
	}
}

// donor loads the caller's donor profile, writing an error response when
// it cannot.
func (h *DonorHandler) donor(w http.ResponseWriter, r *http.Request) (*model.Donor, bool) {
	id, _ := auth.DonorID(r.Context())
	d, err := h.accounts.Donor(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "load donor", err)
		return nil, false
	}
	return d, true
}

type dashboard struct {
	Donor       *model.Donor         `json:"donor"`
	Eligibility eligibility.Status   `json:"eligibility"`
	Rewards     *reward.Summary      `json:"rewards"`
	Requests    []model.BloodRequest `json:"compatible_requests"`
}

// Dashboard handles GET /api/donor/dashboard
func (h *DonorHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, ok := h.donor(w, r)
	if !ok {
		return
	}
	summary, err := h.rewards.Summary(r.Context(), d.ID)
	if err != nil {
		writeServiceError(w, h.logger, "reward summary", err)
		return
	}
	reqs, err := h.finder.FindCompatibleRequests(r.Context(), d)
	if err != nil {
		writeServiceError(w, h.logger, "find compatible requests", err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard{
		Donor:       d,
		Eligibility: eligibility.ForDonor(d, h.now()),
		Rewards:     summary,
		Requests:    reqs,
	})
}

// Profile handles GET /api/donor/profile
func (h *DonorHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.donor(w, r); ok {
		writeJSON(w, http.StatusOK, d)
	}
}

// UpdateProfile handles PUT /api/donor/profile
func (h *DonorHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req donorRegistration
	if !decodeJSON(w, r, &req) {
		return
	}
	id, _ := auth.DonorID(r.Context())
	d, err := h.accounts.UpdateDonor(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, h.logger, "update donor", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Eligibility handles GET /api/donor/eligibility
func (h *DonorHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.donor(w, r); ok {
		writeJSON(w, http.StatusOK, eligibility.ForDonor(d, h.now()))
	}
}

// Requests handles GET /api/donor/requests
func (h *DonorHandler) Requests(w http.ResponseWriter, r *http.Request) {
	d, ok := h.donor(w, r)
	if !ok {
		return
	}
	reqs, err := h.finder.FindCompatibleRequests(r.Context(), d)
	if err != nil {
		writeServiceError(w, h.logger, "find compatible requests", err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

type respondRequest struct {
	Response     model.ResponseValue `json:"response"`
	ScheduledFor *time.Time          `json:"scheduled_for"`
	Notes        string              `json:"notes"`
}

// Respond handles POST /api/donor/requests/{id}/respond
func (h *DonorHandler) Respond(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, ok := h.donor(w, r)
	if !ok {
		return
	}
	resp, err := h.ledger.RecordResponse(r.Context(), d, requestID, response.Input{
		Response:     req.Response,
		ScheduledFor: req.ScheduledFor,
		Notes:        req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.logger, "record response", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Donations handles GET /api/donor/donations
func (h *DonorHandler) Donations(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.DonorID(r.Context())
	list, err := h.donations.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "donation history", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type logDonationRequest struct {
	BloodRequestID *int64    `json:"blood_request_id"`
	DonationDate   time.Time `json:"donation_date"`
	VolumeML       int       `json:"volume_ml"`
	Hospital       string    `json:"hospital"`
}

// LogDonation handles POST /api/donor/donations. The donation stays pending
// until an admin completes it.
func (h *DonorHandler) LogDonation(w http.ResponseWriter, r *http.Request) {
	var req logDonationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	d, ok := h.donor(w, r)
	if !ok {
		return
	}
	dh, err := h.donations.Log(r.Context(), d, donation.LogInput{
		BloodRequestID: req.BloodRequestID,
		DonationDate:   req.DonationDate,
		VolumeML:       req.VolumeML,
		Hospital:       req.Hospital,
	})
	if err != nil {
		writeServiceError(w, h.logger, "log donation", err)
		return
	}
	writeJSON(w, http.StatusCreated, dh)
}

// CancelDonation handles POST /api/donor/donations/{id}/cancel
func (h *DonorHandler) CancelDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	donorID, _ := auth.DonorID(r.Context())
	dh, err := h.donations.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get donation", err)
		return
	}
	if dh.DonorID != donorID {
		writeError(w, http.StatusNotFound, "donation not found")
		return
	}
	dh, err = h.donations.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "cancel donation", err)
		return
	}
	writeJSON(w, http.StatusOK, dh)
}

// Points handles GET /api/donor/points
func (h *DonorHandler) Points(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.DonorID(r.Context())
	summary, err := h.rewards.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "reward summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Badges handles GET /api/donor/badges
func (h *DonorHandler) Badges(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.DonorID(r.Context())
	summary, err := h.rewards.Summary(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "reward summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary.Badges)
}

// Withdrawals handles GET /api/donor/withdrawals
func (h *DonorHandler) Withdrawals(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.DonorID(r.Context())
	list, err := h.rewards.ListWithdrawals(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "list withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type withdrawalRequest struct {
	Points int    `json:"points"`
	Method string `json:"method"`
}

// SubmitWithdrawal handles POST /api/donor/withdrawals
func (h *DonorHandler) SubmitWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, _ := auth.DonorID(r.Context())
	wr, err := h.rewards.SubmitWithdrawal(r.Context(), id, req.Points, req.Method)
	if err != nil {
		writeServiceError(w, h.logger, "submit withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, wr)
}
