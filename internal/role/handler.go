package role

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

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := internal.TenantIDFromContext(r.Context())
	if tenantID == 0 {
		h.WriteAppError(w, internal.ErrTenantRequired)
		return
	}

	roles, err := h.Service.ListRoles(tenantID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// tenant-scoped admins may only create roles inside their own tenant
	if tenantID := internal.TenantIDFromContext(r.Context()); tenantID != 0 && dto.TenantID == nil {
		dto.TenantID = &tenantID
	}

	actorID := internal.UserIDFromContext(r.Context())
	created, err := h.Service.CreateRole(r.Context(), actorID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, created.ToResponse())
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}

	role, err := h.Service.GetRole(id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role.ToResponse())
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}

	var dto UpdateRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	updated, err := h.Service.UpdateRole(r.Context(), actorID, id, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, updated.ToResponse())
}

func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	if err := h.Service.DeactivateRole(r.Context(), actorID, id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) BindPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}

	var dto BindPermissionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	binding, err := h.Service.BindPermission(r.Context(), actorID, id, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           binding.ID,
		"role_id":      binding.RoleID,
		"is_granted":   binding.IsGranted,
		"can_override": binding.CanOverride,
		"object_id":    binding.ObjectID,
		"expires_at":   binding.ExpiresAt,
	})
}

func (h *Handler) UnbindPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	bindingID, ok := h.parseID(w, r, "bindingID")
	if !ok {
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	if err := h.Service.UnbindPermission(r.Context(), actorID, roleID, bindingID); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	idStr := chi.URLParam(r, param)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
