package permission

import (
	"context"
	"log/slog"
	"sync"

	"github.com/signagecloud/access-management/internal"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/core/events"
)

type RepositoryAPI interface {
	GetAll() ([]*rbacDatamodel.Permission, error)
	GetByCodename(codename string) (*rbacDatamodel.Permission, error)
	Create(permission *rbacDatamodel.Permission) error
}

// Service owns the permission registry. Codenames are seeded at setup and
// rarely created afterwards, so the registry keeps an in-process map refreshed
// on every mutation; Lookup never hits the database on the hot path.
type Service struct {
	repo   RepositoryAPI
	bus    *events.EventBus
	logger *slog.Logger

	mu       sync.RWMutex
	registry map[Codename]*Permission
}

func NewService(repo RepositoryAPI, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		logger: logger,
	}
}

// Lookup resolves a codename against the registry. A miss is a configuration
// defect for callers gating access, never a legitimate deny.
func (s *Service) Lookup(codename Codename) (*Permission, error) {
	s.mu.RLock()
	if s.registry != nil {
		if p, ok := s.registry[codename]; ok {
			s.mu.RUnlock()
			return p, nil
		}
		s.mu.RUnlock()
		return nil, internal.NewInternalError("unknown permission codename", nil).
			WithDetails(map[string]string{"codename": codename.String()})
	}
	s.mu.RUnlock()

	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s.Lookup(codename)
}

// Reload repopulates the registry from storage.
func (s *Service) Reload() error {
	rows, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to load permission registry", "error", err)
		return internal.NewInternalError("failed to load permission registry", err)
	}

	registry := make(map[Codename]*Permission, len(rows))
	for _, row := range rows {
		p := FromDataModel(row)
		registry[p.Codename] = p
	}

	s.mu.Lock()
	s.registry = registry
	s.mu.Unlock()

	s.logger.Info("permission registry loaded", "count", len(registry))
	return nil
}

func (s *Service) ListPermissions() ([]PermissionResponse, error) {
	rows, err := s.repo.GetAll()
	if err != nil {
		s.logger.Error("failed to list permissions", "error", err)
		return nil, err
	}

	responses := make([]PermissionResponse, 0, len(rows))
	for _, row := range rows {
		responses = append(responses, FromDataModel(row).ToResponse())
	}
	return responses, nil
}

func (s *Service) CreatePermission(ctx context.Context, actorID int64, dto CreatePermissionDTO) (*Permission, error) {
	codename, appErr := dto.Parse()
	if appErr != nil {
		return nil, appErr
	}

	existing, err := s.repo.GetByCodename(codename.String())
	if err != nil {
		s.logger.Error("failed to check permission existence", "error", err, "codename", codename)
		return nil, err
	}
	if existing != nil {
		return nil, internal.NewConflictError("permission codename already registered", internal.ErrCodePermissionExists)
	}

	p := NewPermission(codename, dto.Name, dto.Category)
	dm := ToDataModel(p)
	if err := s.repo.Create(dm); err != nil {
		s.logger.Error("failed to create permission", "error", err, "codename", codename)
		return nil, err
	}
	p.ID = dm.ID

	if err := s.Reload(); err != nil {
		return nil, err
	}

	if s.bus != nil {
		event := events.NewBaseEvent("permission.created", map[string]interface{}{
			"permission_id": p.ID,
			"codename":      codename.String(),
			"category":      dto.Category,
			"actor_id":      actorID,
		})
		if err := s.bus.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish event", "event_type", "permission.created", "error", err)
		}
	}

	s.logger.Info("permission registered", "codename", codename, "category", dto.Category)
	return p, nil
}

func (p *Permission) ToResponse() PermissionResponse {
	return PermissionResponse{
		ID:       p.ID,
		Codename: p.Codename.String(),
		Name:     p.Name,
		Category: p.Category,
	}
}
