package api

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/portal/internal/audit"
	"github.com/onnwee/portal/internal/middleware"
)

// ActionArchiveTest is the audit action emitted by POST /admin/archive/test.
const ActionArchiveTest = "archive.test"

// ArchiveHandlers serves the archive administration endpoints.
type ArchiveHandlers struct {
	archive  ArchiveState
	settings map[string]string
	logger   *audit.Logger
}

// ArchiveHandlersConfig configures the archive administration endpoints.
type ArchiveHandlersConfig struct {
	Archive ArchiveState
	// Settings is shown verbatim by the status endpoint; secrets must
	// already be masked.
	Settings map[string]string
	Logger   *audit.Logger
}

// NewArchiveHandlers creates the archive administration handlers.
func NewArchiveHandlers(config ArchiveHandlersConfig) *ArchiveHandlers {
	return &ArchiveHandlers{
		archive:  config.Archive,
		settings: config.Settings,
		logger:   config.Logger,
	}
}

// ArchiveStatusResponse is returned by GET /admin/archive/status.
type ArchiveStatusResponse struct {
	Mode     string            `json:"mode"`
	Settings map[string]string `json:"settings"`
}

// ArchiveTestResponse is returned by POST /admin/archive/test.
type ArchiveTestResponse struct {
	Status string `json:"status"`
	Mode   string `json:"mode"`
	Action string `json:"action"`
}

// Status handles GET /admin/archive/status.
func (h *ArchiveHandlers) Status(w http.ResponseWriter, r *http.Request) {
	settings := h.settings
	if settings == nil {
		settings = map[string]string{}
	}
	writeJSON(r.Context(), w, http.StatusOK, ArchiveStatusResponse{
		Mode:     h.archive.Mode(),
		Settings: settings,
	})
}

// Test handles POST /admin/archive/test by emitting one audit record through
// the normal path. The record is dispatched, not awaited; check the store (or
// the fallback output) to confirm it landed.
func (h *ArchiveHandlers) Test(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := middleware.GetActor(ctx)
	if actor.ID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeForbidden)
		WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "actor identity required")
		return
	}

	mode := h.archive.Mode()
	md := audit.Metadata{"mode": mode}
	if id := middleware.GetRequestID(ctx); id != "" {
		md["requestId"] = id
	}

	err := h.logger.LogAudit(ctx, audit.AuditInput{
		Action:      ActionArchiveTest,
		ActorID:     actor.ID,
		ActorRole:   actor.Role,
		Description: "archive connectivity test",
		Metadata:    md,
	})
	if err != nil {
		slog.ErrorContext(ctx, "archive test record rejected", "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "audit logger unavailable")
		return
	}

	writeJSON(ctx, w, http.StatusAccepted, ArchiveTestResponse{
		Status: "dispatched",
		Mode:   mode,
		Action: ActionArchiveTest,
	})
}
