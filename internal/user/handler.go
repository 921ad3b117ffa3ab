package user

import (
	"log/slog"
	"net/http"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/auth"
	"github.com/signagecloud/access-management/internal/membership"
	"github.com/signagecloud/access-management/internal/transport"
	"github.com/signagecloud/access-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Auth        auth.ServiceAPI
	Memberships *membership.Service
}

func NewHandler(authSvc auth.ServiceAPI, memberships *membership.Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Auth:        authSvc,
		Memberships: memberships,
	}
}

// Me returns the authenticated user's profile with every tenant seat they
// hold, so clients can render a tenant switcher from one call.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == 0 {
		h.WriteError(w, http.StatusUnauthorized, "missing authentication")
		return
	}

	user, err := h.Auth.GetUser(userID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	memberships, err := h.Memberships.ListUserMemberships(userID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":        user,
		"memberships": memberships,
	})
}
