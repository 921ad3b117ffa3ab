package resolver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/permission"
	"github.com/signagecloud/access-management/internal/transport"
	"github.com/signagecloud/access-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Resolver *Resolver
}

func NewHandler(r *Resolver) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Resolver:    r,
	}
}

// CheckAccess exposes the resolver to sibling services:
// GET /access/check?permission=asset.update&object_id=... → decision.
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	tenantID := internal.TenantIDFromContext(r.Context())
	if tenantID == 0 {
		h.WriteAppError(w, internal.ErrTenantRequired)
		return
	}

	codename, err := permission.ParseCodename(r.URL.Query().Get("permission"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var objectID *string
	if v := r.URL.Query().Get("object_id"); v != "" {
		objectID = &v
	}

	decision, err := h.Resolver.Resolve(r.Context(), userID, tenantID, codename, objectID)
	if err != nil {
		// structural failures are configuration or data corruption, not a deny
		if errors.Is(err, ErrUnknownPermission) || errors.Is(err, ErrBrokenHierarchy) {
			h.WriteAppError(w, internal.NewInternalError("permission resolution failed", err))
			return
		}
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, decision)
}
