package assistant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/benestar-app/benestar/internal/api"
	"github.com/benestar-app/benestar/internal/auth"
	"github.com/benestar-app/benestar/internal/quota"
)

// maxBodyBytes bounds request bodies; chat histories are the largest.
const maxBodyBytes = 1 << 20

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.svc.Chat(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err, userID)
		return
	}

	api.JSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (h *Handler) RoleplayStep(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req RoleplayRequest
	if !h.decode(w, r, &req) {
		return
	}

	step, err := h.svc.RoleplayStep(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err, userID)
		return
	}

	api.JSON(w, http.StatusOK, step)
}

func (h *Handler) AnalyzeJournal(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req JournalRequest
	if !h.decode(w, r, &req) {
		return
	}

	feedback, err := h.svc.AnalyzeJournal(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, err, userID)
		return
	}

	api.JSON(w, http.StatusOK, feedback)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func handleServiceError(w http.ResponseWriter, err error, userID string) {
	var exceeded *QuotaExceededError
	switch {
	case errors.As(err, &exceeded):
		api.HandleError(w, api.NewTooManyRequestsError(exceeded.Decision.Reason, exceeded.Decision.RetryAfter))
	case errors.Is(err, quota.ErrTransient):
		slog.Warn("quota check failed closed", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrServiceBusy)
	case errors.Is(err, quota.ErrInvalidInput):
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, ErrCompletion):
		api.HandleError(w, api.ErrUpstream)
	default:
		slog.Error("assistant request failed", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
	}
}
