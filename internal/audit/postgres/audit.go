package postgres

import (
	"github.com/signagecloud/access-management/internal/audit"
	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	"gorm.io/gorm"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.RepositoryAPI {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(event *auditDatamodel.AuditEvent) error {
	return r.db.Create(event).Error
}

func (r *AuditRepository) Query(filter audit.Filter) ([]*auditDatamodel.AuditEvent, error) {
	q := r.db.Model(&auditDatamodel.AuditEvent{})

	if filter.TenantID != nil {
		q = q.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.ActorID != nil {
		q = q.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Entity != "" {
		q = q.Where("entity = ?", filter.Entity)
	}
	if filter.Since != nil {
		q = q.Where("occurred_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		q = q.Where("occurred_at <= ?", *filter.Until)
	}

	q = q.Order("occurred_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []*auditDatamodel.AuditEvent
	err := q.Find(&rows).Error
	return rows, err
}
