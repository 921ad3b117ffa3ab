package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	"github.com/signagecloud/access-management/internal/core/events"
	"github.com/signagecloud/access-management/internal/resolver"
)

type RepositoryAPI interface {
	Create(event *auditDatamodel.AuditEvent) error
	Query(filter Filter) ([]*auditDatamodel.AuditEvent, error)
}

// Service writes the audit trail. Writes never fail the caller: an audit
// failure is logged and swallowed so access checks and lifecycle operations
// keep working while the trail is down.
type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// RecordAccessDecision persists a denied access check with its provenance.
// Granted decisions are not recorded; the denial trail is what reviews ask for.
func (s *Service) RecordAccessDecision(ctx context.Context, userID, tenantID int64, permission string, objectID *string, decision resolver.Decision) {
	metadata := map[string]interface{}{
		"permission": permission,
		"granted":    decision.Granted,
		"source":     string(decision.Source),
	}
	if objectID != nil {
		metadata["object_id"] = *objectID
	}

	event := &auditDatamodel.AuditEvent{
		ActorID:  &userID,
		TenantID: &tenantID,
		Action:   ActionAccessDenied,
		Entity:   "permission",
		EntityID: permission,
		Metadata: marshalMetadata(metadata),
	}
	if err := s.repo.Create(event); err != nil {
		s.logger.Error("failed to record access decision",
			"error", err,
			"user_id", userID,
			"tenant_id", tenantID,
			"permission", permission)
	}
}

// SubscribeAll registers the audit writer for every lifecycle event the
// services publish.
func (s *Service) SubscribeAll(bus *events.EventBus) {
	for _, action := range []string{
		ActionRoleCreated,
		ActionRoleUpdated,
		ActionRoleDeactivated,
		ActionBindingCreated,
		ActionBindingRemoved,
		ActionPermissionCreated,
		ActionMembershipCreated,
		ActionMembershipInvited,
		ActionMembershipAccepted,
		ActionMembershipRemoved,
		ActionMembershipReroled,
		ActionTenantCreated,
		ActionTenantUpdated,
		ActionTenantDeactivated,
	} {
		bus.Subscribe(action, s.handleEvent)
	}
}

func (s *Service) handleEvent(ctx context.Context, event events.Event) error {
	data, _ := event.Payload().(map[string]interface{})

	row := &auditDatamodel.AuditEvent{
		Action:     event.EventType(),
		Entity:     entityOf(event.EventType()),
		EntityID:   entityIDOf(event.EventType(), data),
		Metadata:   marshalMetadata(data),
		OccurredAt: event.OccurredAt(),
	}
	if actor, ok := intField(data, "actor_id"); ok {
		row.ActorID = &actor
	}
	if tenantID, ok := intField(data, "tenant_id"); ok {
		row.TenantID = &tenantID
	}

	return s.repo.Create(row)
}

func (s *Service) Query(filter Filter) ([]EventResponse, error) {
	rows, err := s.repo.Query(filter)
	if err != nil {
		s.logger.Error("failed to query audit trail", "error", err)
		return nil, err
	}

	responses := make([]EventResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, toResponse(row))
	}
	return responses, nil
}

func toResponse(row *auditDatamodel.AuditEvent) EventResponse {
	resp := EventResponse{
		ID:         row.ID,
		ActorID:    row.ActorID,
		TenantID:   row.TenantID,
		Action:     row.Action,
		Entity:     row.Entity,
		EntityID:   row.EntityID,
		OccurredAt: row.OccurredAt,
	}
	if row.Metadata != "" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(row.Metadata), &decoded); err == nil {
			resp.Metadata = decoded
		}
	}
	return resp
}

// entityOf derives the audited entity from the action's prefix.
func entityOf(action string) string {
	for i := 0; i < len(action); i++ {
		if action[i] == '.' {
			return action[:i]
		}
	}
	return action
}

func entityIDOf(action string, data map[string]interface{}) string {
	for _, key := range []string{"membership_id", "role_id", "permission_id", "tenant_id", "binding_id"} {
		if id, ok := intField(data, key); ok {
			return strconv.FormatInt(id, 10)
		}
	}
	return ""
}

func intField(data map[string]interface{}, key string) (int64, bool) {
	switch v := data[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func marshalMetadata(data map[string]interface{}) string {
	if len(data) == 0 {
		return "{}"
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
