package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/bloodrequest"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/model"
)

// RequestHandler serves public request listings, donor search and the
// recipient's own requests.
type RequestHandler struct {
	requests *bloodrequest.Service
	accounts *auth.Service
	finder   *matching.Finder
	logger   *slog.Logger
}

func NewRequestHandler(requests *bloodrequest.Service, accounts *auth.Service, finder *matching.Finder, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{requests: requests, accounts: accounts, finder: finder, logger: logger}
}

// groupParam reads a blood group from the query string. An unescaped '+'
// arrives as a space, so "A " is read back as "A+".
func groupParam(w http.ResponseWriter, r *http.Request) (model.BloodGroup, bool) {
	raw := r.URL.Query().Get("blood_group")
	if raw == "" {
		return "", true
	}
	g, err := model.ParseBloodGroup(strings.ReplaceAll(raw, " ", "+"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "unknown blood group", Field: "blood_group"})
		return "", false
	}
	return g, true
}

func (h *RequestHandler) filter(w http.ResponseWriter, r *http.Request) (bloodrequest.Filter, bool) {
	g, ok := groupParam(w, r)
	return bloodrequest.Filter{BloodGroup: g, Thana: r.URL.Query().Get("thana")}, ok
}

// List handles GET /api/blood-requests
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	list, err := h.requests.ListActive(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.logger, "list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Emergency handles GET /api/blood-requests/emergency
func (h *RequestHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}
	list, err := h.requests.Emergency(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.logger, "list emergency requests", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/blood-requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "get request", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// donorListing is the public face of a donor in search results.
type donorListing struct {
	ID          int64            `json:"id"`
	FullName    string           `json:"full_name"`
	Phone       string           `json:"phone"`
	BloodGroup  model.BloodGroup `json:"blood_group"`
	Thana       string           `json:"thana"`
	PostOffice  string           `json:"post_office"`
	District    string           `json:"district"`
	IsAvailable bool             `json:"is_available"`
}

// SearchDonors handles GET /api/donors/search?blood_group=&thana=&post_office=&district=
func (h *RequestHandler) SearchDonors(w http.ResponseWriter, r *http.Request) {
	g, ok := groupParam(w, r)
	if !ok {
		return
	}
	if g == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "required", Field: "blood_group"})
		return
	}
	q := r.URL.Query()
	donors, err := h.finder.FindCompatibleDonors(r.Context(), model.DonorCriteria{
		BloodGroup: g,
		Thana:      q.Get("thana"),
		PostOffice: q.Get("post_office"),
		District:   q.Get("district"),
	})
	if err != nil {
		writeServiceError(w, h.logger, "search donors", err)
		return
	}
	out := make([]donorListing, 0, len(donors))
	for _, d := range donors {
		out = append(out, donorListing{
			ID:          d.ID,
			FullName:    d.FullName,
			Phone:       d.Phone,
			BloodGroup:  d.BloodGroup,
			Thana:       d.Thana,
			PostOffice:  d.PostOffice,
			District:    d.District,
			IsAvailable: d.IsAvailable,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createRequest struct {
	PatientName  string    `json:"patient_name"`
	BloodGroup   string    `json:"blood_group_needed"`
	UnitsNeeded  int       `json:"units_needed"`
	HospitalName string    `json:"hospital_name"`
	Thana        string    `json:"thana"`
	District     string    `json:"district"`
	ContactPhone string    `json:"contact_phone"`
	Urgency      string    `json:"urgency"`
	Notes        string    `json:"notes"`
	NeededBy     time.Time `json:"needed_by_date"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Create handles POST /api/recipient/requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := model.ParseBloodGroup(req.BloodGroup)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "unknown blood group", Field: "blood_group_needed"})
		return
	}
	id, _ := auth.RecipientID(r.Context())
	recipient, err := h.accounts.Recipient(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "load recipient", err)
		return
	}
	created, err := h.requests.Create(r.Context(), recipient, bloodrequest.CreateInput{
		PatientName:  req.PatientName,
		BloodGroup:   group,
		UnitsNeeded:  req.UnitsNeeded,
		HospitalName: req.HospitalName,
		Thana:        req.Thana,
		District:     req.District,
		ContactPhone: req.ContactPhone,
		Urgency:      model.Urgency(strings.ToLower(strings.TrimSpace(req.Urgency))),
		Notes:        req.Notes,
		NeededBy:     req.NeededBy,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		writeServiceError(w, h.logger, "create request", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Track handles GET /api/recipient/requests
func (h *RequestHandler) Track(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.RecipientID(r.Context())
	list, err := h.requests.Track(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, "track requests", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Responses handles GET /api/recipient/requests/{id}/responses
func (h *RequestHandler) Responses(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	id, _ := auth.RecipientID(r.Context())
	list, err := h.requests.Responses(r.Context(), id, requestID)
	if err != nil {
		writeServiceError(w, h.logger, "list responses", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Cancel handles POST /api/recipient/requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	id, _ := auth.RecipientID(r.Context())
	req, err := h.requests.Cancel(r.Context(), id, requestID)
	if err != nil {
		writeServiceError(w, h.logger, "cancel request", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
