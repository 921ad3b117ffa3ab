package delegation

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/transport"
	"github.com/signagecloud/access-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

func (h *Handler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	var dto DelegateDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if dto.TenantID == 0 {
		dto.TenantID = internal.TenantIDFromContext(r.Context())
	}

	delegatorID := internal.UserIDFromContext(r.Context())
	m, err := h.Service.Delegate(r.Context(), delegatorID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"membership_id":    m.ID,
		"delegate_user_id": m.UserID,
		"tenant_id":        m.TenantID,
		"role_id":          m.RoleID,
		"delegation_level": m.DelegationLevel,
		"expires_at":       m.ExpiresAt,
	})
}

func (h *Handler) RevokeDelegation(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	if err := h.Service.Revoke(r.Context(), actorID, id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
