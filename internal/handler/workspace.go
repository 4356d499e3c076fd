package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ev-service-portal/internal/middleware"
	"github.com/capitalize-ai/ev-service-portal/internal/service"
	"github.com/capitalize-ai/ev-service-portal/pkg/logger"
)

// Workspaces resolves the caller's workspace from the verified token.
type Workspaces struct {
	registry *service.Registry
	logger   *logger.Logger
}

// NewWorkspaces wraps a registry.
func NewWorkspaces(registry *service.Registry, log *logger.Logger) *Workspaces {
	return &Workspaces{registry: registry, logger: log}
}

// For returns the workspace of the authenticated caller, or nil after
// answering 401.
func (ws *Workspaces) For(w http.ResponseWriter, r *http.Request) *service.Workspace {
	user, ok := caller(w, r)
	if !ok {
		return nil
	}
	return ws.registry.Get(r.Context(), user)
}

// SignOut handles POST /api/v1/session/signout.
func (ws *Workspaces) SignOut(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	if err := ws.registry.SignOut(r.Context(), user); err != nil {
		ws.logger.Error("failed to sign out", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to sign out")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func caller(w http.ResponseWriter, r *http.Request) (service.User, bool) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return service.User{}, false
	}
	return service.User{
		ID:         claims.Subject,
		Name:       claims.Name,
		Role:       claims.Role,
		CustomerID: claims.CustomerID,
		Device:     claims.DeviceID,
	}, true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
