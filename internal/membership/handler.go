package membership

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

func (h *Handler) AssignMember(w http.ResponseWriter, r *http.Request) {
	var dto AssignMemberDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.TenantID == 0 {
		dto.TenantID = internal.TenantIDFromContext(r.Context())
	}

	actorID := internal.UserIDFromContext(r.Context())
	m, err := h.Service.AssignMember(r.Context(), actorID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m.ToResponse())
}

func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var dto AcceptInvitationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if dto.TenantID == 0 {
		dto.TenantID = internal.TenantIDFromContext(r.Context())
	}

	userID := internal.UserIDFromContext(r.Context())
	m, err := h.Service.AcceptInvitation(r.Context(), userID, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m.ToResponse())
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID := internal.TenantIDFromContext(r.Context())
	if tenantID == 0 {
		h.WriteAppError(w, internal.ErrTenantRequired)
		return
	}

	members, err := h.Service.ListMembers(tenantID)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (h *Handler) GetMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	m, err := h.Service.GetMembership(id)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m.ToResponse())
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var dto ChangeRoleDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	m, err := h.Service.ChangeRole(r.Context(), actorID, id, dto)
	if err != nil {
		h.WriteAppError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m.ToResponse())
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	actorID := internal.UserIDFromContext(r.Context())
	if err := h.Service.RemoveMember(r.Context(), actorID, id); err != nil {
		h.WriteAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
