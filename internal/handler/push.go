package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/model"
	"github.com/roktodanbd/roktodan/internal/push"
	"github.com/roktodanbd/roktodan/internal/store"
)

// PushHandler manages a donor's Web Push subscriptions.
type PushHandler struct {
	subs    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushHandler(subs *store.PushStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, service: svc, logger: logger}
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.service.Configured() {
		writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/donor/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh and auth are required")
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "must be an https URL", Field: "endpoint"})
		return
	}

	donorID, _ := auth.DonorID(r.Context())
	sub, err := h.subs.CreateSubscription(r.Context(), donorID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName, time.Now())
	if err != nil {
		writeServiceError(w, h.logger, "create push subscription", err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/donor/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	donorID, _ := auth.DonorID(r.Context())
	if err := h.subs.DeleteSubscription(r.Context(), id, donorID); err != nil {
		writeServiceError(w, h.logger, "delete push subscription", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/donor/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	donorID, _ := auth.DonorID(r.Context())
	subs, err := h.subs.ListByDonor(r.Context(), donorID)
	if err != nil {
		writeServiceError(w, h.logger, "list push subscriptions", err)
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}
