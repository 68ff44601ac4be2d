// Package api exposes the orchestrator's control operations over HTTP.
// Every request carries the acting operator's id; the control layer decides
// whether that operator is allowed to touch the profile.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blockedby/herald/internal/broadcast"
	"github.com/blockedby/herald/internal/control"
	"github.com/blockedby/herald/internal/onboarding"
	"github.com/blockedby/herald/internal/profile"
	"github.com/blockedby/herald/internal/session"
)

// Handler handles HTTP requests for the orchestrator control surface
type Handler struct {
	svc *control.Service
}

// NewHandler creates a new handler over the control service
func NewHandler(svc *control.Service) *Handler {
	return &Handler{svc: svc}
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// operatorID reads the acting operator from the X-Operator-ID header or the
// operator_id query param.
func operatorID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-Operator-ID")
	if raw == "" {
		raw = r.URL.Query().Get("operator_id")
	}
	if raw == "" {
		return 0, errors.New("operator id is required")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func pathIndex(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "index"))
}

// --- onboarding ---

// BeginOnboarding handles POST /api/v1/accounts/onboarding
func (h *Handler) BeginOnboarding(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.svc.BeginAddAccount(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"state": state.String()})
}

// OnboardingInput is the body for a single onboarding step.
type OnboardingInput struct {
	Input string `json:"input"`
}

// SubmitOnboarding handles POST /api/v1/accounts/onboarding/input
func (h *Handler) SubmitOnboarding(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req OnboardingInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	out, err := h.svc.SubmitOnboarding(r.Context(), op, req.Input)
	if err != nil {
		respondJSON(w, statusFor(err), map[string]string{
			"state": out.State.String(),
			"error": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"state": out.State.String(),
		"done":  out.Done,
	})
}

// OnboardingState handles GET /api/v1/accounts/onboarding
func (h *Handler) OnboardingState(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"state": h.svc.OnboardingState(op).String(),
	})
}

// --- accounts ---

// ListAccounts handles GET /api/v1/accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accounts, err := h.svc.ListAccounts(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, accounts)
}

// RemoveAccount handles DELETE /api/v1/accounts/{index}
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	idx, err := pathIndex(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "index must be a number")
		return
	}

	phone, err := h.svc.RemoveAccount(r.Context(), op, idx)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"removed": phone})
}

// --- source channels ---

// ChannelRequest is the body for adding a source channel.
type ChannelRequest struct {
	Channel string `json:"channel"`
}

// AddSourceChannel handles POST /api/v1/channels
func (h *Handler) AddSourceChannel(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Channel == "" {
		respondError(w, http.StatusBadRequest, "channel is required")
		return
	}

	if err := h.svc.AddSourceChannel(r.Context(), op, req.Channel); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"channel": req.Channel})
}

// ListSourceChannels handles GET /api/v1/channels
func (h *Handler) ListSourceChannels(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs, err := h.svc.ListSourceChannels(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, refs)
}

// RemoveSourceChannel handles DELETE /api/v1/channels/{index}
func (h *Handler) RemoveSourceChannel(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	idx, err := pathIndex(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "index must be a number")
		return
	}

	ref, err := h.svc.RemoveSourceChannel(r.Context(), op, idx)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"removed": ref})
}

// --- messages ---

// MessageRequest is the body for adding a broadcast message.
type MessageRequest struct {
	Text string `json:"text"`
}

// AddMessage handles POST /api/v1/messages
func (h *Handler) AddMessage(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := h.svc.AddMessage(op, req.Text); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"text": req.Text})
}

// ListMessages handles GET /api/v1/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.svc.ListMessages(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, msgs)
}

// RemoveMessage handles DELETE /api/v1/messages/{index}
func (h *Handler) RemoveMessage(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	idx, err := pathIndex(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "index must be a number")
		return
	}

	text, err := h.svc.RemoveMessage(op, idx)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"removed": text})
}

// --- timer ---

// TimerRequest is the body for updating the timer policy.
type TimerRequest struct {
	Mode            string `json:"mode,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

// UpdateTimer handles PUT /api/v1/timer
func (h *Handler) UpdateTimer(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req TimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Mode != "" {
		if err := h.svc.SetTimerMode(op, req.Mode); err != nil {
			respondServiceError(w, err)
			return
		}
	}
	if req.IntervalMinutes != 0 {
		if err := h.svc.SetTimerInterval(op, req.IntervalMinutes); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	state, err := h.svc.Timer(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// Timer handles GET /api/v1/timer
func (h *Handler) Timer(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.svc.Timer(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// --- broadcasting ---

// StartBroadcast handles POST /api/v1/broadcast
func (h *Handler) StartBroadcast(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.StartBroadcast(op); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// StopBroadcast handles DELETE /api/v1/broadcast
func (h *Handler) StopBroadcast(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.StopBroadcast(op); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// BroadcastStatus handles GET /api/v1/broadcast
func (h *Handler) BroadcastStatus(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.svc.Broadcast(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ListTargets handles GET /api/v1/targets
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	targets, err := h.svc.ListTargets(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, targets)
}

// --- operators ---

// OperatorRequest is the body for granting access.
type OperatorRequest struct {
	OperatorID int64 `json:"operator_id"`
}

// AddOperator handles POST /api/v1/operators
func (h *Handler) AddOperator(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OperatorID == 0 {
		respondError(w, http.StatusBadRequest, "operator_id is required")
		return
	}

	if err := h.svc.AddOperator(op, req.OperatorID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]int64{"operator_id": req.OperatorID})
}

// ListOperators handles GET /api/v1/operators
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := h.svc.ListOperators(op)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

// RemoveOperator handles DELETE /api/v1/operators/{id}
func (h *Handler) RemoveOperator(w http.ResponseWriter, r *http.Request) {
	op, err := operatorID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be a number")
		return
	}

	if err := h.svc.RemoveOperator(r.Context(), op, target); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"removed": target})
}

// helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// statusFor maps control and domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, control.ErrNotAllowed), errors.Is(err, control.ErrOwnerOnly):
		return http.StatusForbidden
	case errors.Is(err, broadcast.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, broadcast.ErrNotActive),
		errors.Is(err, broadcast.ErrNoSessions),
		errors.Is(err, broadcast.ErrNoMessages),
		errors.Is(err, broadcast.ErrNoTargets),
		errors.Is(err, profile.ErrIndexOutOfRange),
		errors.Is(err, profile.ErrPhoneExists),
		errors.Is(err, profile.ErrNotPrivileged),
		errors.Is(err, control.ErrInvalidInterval),
		errors.Is(err, control.ErrUnknownMode),
		errors.Is(err, onboarding.ErrNotOnboarding),
		errors.Is(err, onboarding.ErrInvalidAPIID),
		errors.Is(err, session.ErrInvalidCode),
		errors.Is(err, session.ErrInvalidPassword):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
