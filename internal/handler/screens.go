package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/dispatch"
	"github.com/capitalize-ai/ev-service-portal/internal/listview"
	"github.com/capitalize-ai/ev-service-portal/internal/model"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// ScreenHandler serves one list screen: its derived view, selection and the
// create, update, status and delete actions.
type ScreenHandler[T listview.Keyed] struct {
	workspaces *Workspaces
	pick       func(*service.Workspace) *dispatch.Dispatcher[T]
	withID     func(T, int64) T
	loc        *time.Location
	logger     *logger.Logger
}

// NewScreenHandler creates a screen handler. pick selects the screen's
// dispatcher in a workspace; withID stamps the path ID onto an update body.
func NewScreenHandler[T listview.Keyed](
	ws *Workspaces,
	pick func(*service.Workspace) *dispatch.Dispatcher[T],
	withID func(T, int64) T,
	loc *time.Location,
	log *logger.Logger,
) *ScreenHandler[T] {
	if loc == nil {
		loc = time.Local
	}
	return &ScreenHandler[T]{workspaces: ws, pick: pick, withID: withID, loc: loc, logger: log}
}

// NewOrderHandler serves the orders screen.
func NewOrderHandler(ws *Workspaces, loc *time.Location, log *logger.Logger) *ScreenHandler[model.Order] {
	return NewScreenHandler(ws,
		func(w *service.Workspace) *dispatch.Dispatcher[model.Order] { return w.Orders },
		func(o model.Order, id int64) model.Order { o.ID = id; return o },
		loc, log)
}

// NewServiceHandler serves the service catalogue screen.
func NewServiceHandler(ws *Workspaces, loc *time.Location, log *logger.Logger) *ScreenHandler[model.Service] {
	return NewScreenHandler(ws,
		func(w *service.Workspace) *dispatch.Dispatcher[model.Service] { return w.Services },
		func(s model.Service, id int64) model.Service { s.ID = id; return s },
		loc, log)
}

// NewPackageHandler serves the service package screen.
func NewPackageHandler(ws *Workspaces, loc *time.Location, log *logger.Logger) *ScreenHandler[model.ServicePackage] {
	return NewScreenHandler(ws,
		func(w *service.Workspace) *dispatch.Dispatcher[model.ServicePackage] { return w.Packages },
		func(p model.ServicePackage, id int64) model.ServicePackage { p.ID = id; return p },
		loc, log)
}

// Routes mounts the screen under r.
func (h *ScreenHandler[T]) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/refresh", h.Refresh)
	r.Post("/selection", h.Select)
	r.Route("/{id}", func(r chi.Router) {
		r.Put("/", h.Update)
		r.Patch("/status", h.SetStatus)
		r.Delete("/", h.Delete)
	})
}

func (h *ScreenHandler[T]) dispatcher(w http.ResponseWriter, r *http.Request) *dispatch.Dispatcher[T] {
	ws := h.workspaces.For(w, r)
	if ws == nil {
		return nil
	}
	return h.pick(ws)
}

// List handles GET /api/v1/{screen}
func (h *ScreenHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	screen := d.Screen()

	params, err := applyQuery(screen.Params(), r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !screen.Loaded() || r.URL.Query().Get("refresh") == "true" {
		if err := d.Refresh(r.Context()); err != nil && !errors.Is(err, listview.ErrStale) {
			writeFailure(w, err)
			return
		}
	}

	view := screen.SetParams(params)
	writeJSON(w, http.StatusOK, listResponse(screen, view))
}

// Refresh handles POST /api/v1/{screen}/refresh
func (h *ScreenHandler[T]) Refresh(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	if err := d.Refresh(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	screen := d.Screen()
	writeJSON(w, http.StatusOK, listResponse(screen, screen.View()))
}

// Create handles POST /api/v1/{screen}
func (h *ScreenHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	var draft T
	if !decodeJSON(w, r, &draft) {
		return
	}
	rec, err := d.Create(r.Context(), draft)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Update handles PUT /api/v1/{screen}/{id}
func (h *ScreenHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	var draft T
	if !decodeJSON(w, r, &draft) {
		return
	}
	rec, err := d.Update(r.Context(), h.withID(draft, id))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PATCH /api/v1/{screen}/{id}/status
func (h *ScreenHandler[T]) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	if err := d.SetStatus(r.Context(), id, req.Status); err != nil {
		writeFailure(w, err)
		return
	}
	rec, _ := d.Screen().Get(id)
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/v1/{screen}/{id}?confirm=true
// Without confirm the record is kept and the response carries the prompt the
// client should show before retrying.
func (h *ScreenHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}

	confirmed := r.URL.Query().Get("confirm") == "true"
	var prompt string
	err := d.Delete(r.Context(), id, dispatch.ConfirmFunc(func(_ context.Context, p string) bool {
		prompt = p
		return confirmed
	}))
	switch {
	case errors.Is(err, dispatch.ErrNotConfirmed):
		writeDeclined(w, prompt)
	case err != nil:
		writeFailure(w, err)
	default:
		h.logger.Debug("record deleted", zap.String("screen", d.Screen().Name()), zap.Int64("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// SelectionRequest checks or unchecks rows. Page applies to every row on the
// current page instead of IDs.
type SelectionRequest struct {
	IDs     []int64 `json:"ids"`
	Checked bool    `json:"checked"`
	Page    bool    `json:"page"`
	Clear   bool    `json:"clear"`
}

// SelectionResponse lists the checked rows.
type SelectionResponse struct {
	Selected []int64 `json:"selected"`
	Rejected []int64 `json:"rejected,omitempty"`
}

// Select handles POST /api/v1/{screen}/selection
func (h *ScreenHandler[T]) Select(w http.ResponseWriter, r *http.Request) {
	d := h.dispatcher(w, r)
	if d == nil {
		return
	}
	var req SelectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	screen := d.Screen()
	var rejected []int64
	switch {
	case req.Clear:
		screen.ClearSelection()
	case req.Page:
		screen.SelectPage(req.Checked)
	default:
		for _, id := range req.IDs {
			if err := screen.Select(id, req.Checked); err != nil {
				rejected = append(rejected, id)
			}
		}
	}

	selected := screen.Selected()
	if selected == nil {
		selected = []int64{}
	}
	writeJSON(w, http.StatusOK, SelectionResponse{Selected: selected, Rejected: rejected})
}
