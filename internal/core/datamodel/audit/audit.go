package audit

import "time"

// AuditEvent is one row of the append-only audit trail. Rows are only ever
// inserted; nothing updates or deletes them.
type AuditEvent struct {
	ID         int64     `gorm:"primaryKey"`
	ActorID    *int64    `gorm:"column:actor_id;index"`
	TenantID   *int64    `gorm:"column:tenant_id;index"`
	Action     string    `gorm:"column:action;not null"`
	Entity     string    `gorm:"column:entity;not null"`
	EntityID   string    `gorm:"column:entity_id;not null"`
	Metadata   string    `gorm:"column:metadata;type:jsonb"`
	OccurredAt time.Time `gorm:"column:occurred_at;default:now()"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
