package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// ProfileHandler handles the customer profile endpoints.
type ProfileHandler struct {
	workspaces *Workspaces
	loc        *time.Location
	logger     *logger.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(ws *Workspaces, loc *time.Location, log *logger.Logger) *ProfileHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ProfileHandler{workspaces: ws, loc: loc, logger: log}
}

// Routes mounts the profile endpoints under r.
func (h *ProfileHandler) Routes(r chi.Router) {
	r.Get("/notifications", h.Notifications)
	r.Patch("/notifications/{id}/read", h.MarkRead)
	r.Patch("/reminders/{id}/dismiss", h.Dismiss)
	r.Get("/{customerId}", h.Get)
}

// Get handles GET /api/v1/profile/{customerId}
// Customers may only read their own profile.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID, ok := pathID(w, r, "customerId")
	if !ok {
		return
	}
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	if u := ws.User(); u.Role != service.RoleStaff && u.CustomerID != strconv.FormatInt(customerID, 10) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	p, err := ws.Profile(r.Context(), customerID, r.URL.Query().Get("refresh") == "true")
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Notifications handles GET /api/v1/profile/notifications
// It derives the notifications screen of the last loaded profile.
func (h *ProfileHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	screen := ws.Notifications
	params, err := applyQuery(screen.Params(), r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listResponse(screen, screen.SetParams(params)))
}

// MarkRead handles PATCH /api/v1/profile/notifications/{id}/read
func (h *ProfileHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	if err := ws.MarkNotificationRead(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	rec, found := ws.Notifications.Get(id)
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Dismiss handles PATCH /api/v1/profile/reminders/{id}/dismiss
func (h *ProfileHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return
	}
	if err := ws.DismissReminder(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
