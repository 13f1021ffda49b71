package governance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/benestar-app/benestar/internal/api"
	"github.com/benestar-app/benestar/internal/auth"
	"github.com/benestar-app/benestar/internal/governance/audit"
	"github.com/benestar-app/benestar/internal/quota"
)

// QuotaPeeker reports a user's remaining budget without consuming it.
type QuotaPeeker interface {
	Peek(ctx context.Context, userID string, kind quota.Kind, limits *quota.Limits) (quota.Decision, error)
	Limits(kind quota.Kind) (quota.Limits, bool)
}

// EventLister lists a user's persisted quota denials.
type EventLister interface {
	ListByUser(ctx context.Context, userID string, params audit.ListParams) ([]audit.QuotaEventLog, int64, error)
}

// QuotaStatus is the response body of GetQuota.
type QuotaStatus struct {
	Kind              quota.Kind `json:"kind"`
	Allowed           bool       `json:"allowed"`
	Reason            string     `json:"reason,omitempty"`
	RemainingMinute   int        `json:"remaining_minute"`
	RemainingDay      int        `json:"remaining_day"`
	LimitPerMinute    int        `json:"limit_per_minute"`
	LimitPerDay       int        `json:"limit_per_day"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

// Handler provides HTTP handlers for governance endpoints.
type Handler struct {
	gate   QuotaPeeker
	events EventLister
}

// NewHandler creates a new governance Handler. events may be nil when no
// database is configured.
func NewHandler(gate QuotaPeeker, events EventLister) *Handler {
	return &Handler{
		gate:   gate,
		events: events,
	}
}

// GetQuota returns the authenticated user's current budget for one feature.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	kind, err := quota.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError(unknownKindMessage()))
		return
	}

	dec, err := h.gate.Peek(r.Context(), userID, kind, nil)
	if err != nil {
		if errors.Is(err, quota.ErrTransient) {
			slog.Warn("peeking quota", "error", err, "user_id", userID, "kind", kind)
			api.HandleError(w, api.ErrServiceBusy)
			return
		}
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	limits, _ := h.gate.Limits(kind)
	api.JSON(w, http.StatusOK, QuotaStatus{
		Kind:              kind,
		Allowed:           dec.Allowed,
		Reason:            dec.Reason,
		RemainingMinute:   dec.RemainingMinute,
		RemainingDay:      dec.RemainingDay,
		LimitPerMinute:    limits.PerMinute,
		LimitPerDay:       limits.PerDay,
		RetryAfterSeconds: int(math.Ceil(dec.RetryAfter.Seconds())),
	})
}

// ListQuotaEvents returns the authenticated user's recent quota denials.
func (h *Handler) ListQuotaEvents(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if h.events == nil {
		api.HandleError(w, api.NewNotFoundError("quota events are not recorded"))
		return
	}

	params := parseEventParams(r)

	logs, total, err := h.events.ListByUser(r.Context(), userID, params)
	if err != nil {
		slog.Error("listing quota events", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, logs, total, params.Page, params.PageSize)
}

func unknownKindMessage() string {
	names := make([]string, len(quota.Kinds))
	for i, k := range quota.Kinds {
		names[i] = string(k)
	}
	return "unknown feature kind, expected one of: " + strings.Join(names, ", ")
}

func parseEventParams(r *http.Request) audit.ListParams {
	params := audit.DefaultListParams()

	if k := r.URL.Query().Get("kind"); k != "" {
		if kind, err := quota.ParseKind(k); err == nil {
			params.Kind = string(kind)
		}
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
