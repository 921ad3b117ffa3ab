package postgres

import (
	"encoding/json"
	"strconv"
	"time"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/delegation"
	"gorm.io/gorm"
)

type DelegationRepository struct {
	db *gorm.DB
}

func NewDelegationRepository(db *gorm.DB) delegation.RepositoryAPI {
	return &DelegationRepository{db: db}
}

func (r *DelegationRepository) FindActiveMembership(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	var m membershipDatamodel.UserTenantMembership
	err := r.db.
		Where("user_id = ? AND tenant_id = ? AND is_active = ?", userID, tenantID, true).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *DelegationRepository) GetMembership(id int64) (*membershipDatamodel.UserTenantMembership, error) {
	var m membershipDatamodel.UserTenantMembership
	err := r.db.Where("id = ?", id).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *DelegationRepository) GetRole(id int64) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	err := r.db.Where("id = ?", id).First(&role).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// CreateWithAudit inserts the membership and its audit record atomically; a
// half-applied delegation must never survive.
func (r *DelegationRepository) CreateWithAudit(m *membershipDatamodel.UserTenantMembership, event *auditDatamodel.AuditEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		event.EntityID = formatID(m.ID)
		return tx.Create(event).Error
	})
}

// RevokeCascade walks the delegation graph breadth-first inside a single
// transaction. Each deactivation is conditional on is_active so a concurrent
// sweep or revoke sees zero affected rows and skips the subtree instead of
// double-cascading.
func (r *DelegationRepository) RevokeCascade(membershipID int64, action string, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var revoked []*membershipDatamodel.UserTenantMembership

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var root membershipDatamodel.UserTenantMembership
		if err := tx.Where("id = ?", membershipID).First(&root).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		queue := []*membershipDatamodel.UserTenantMembership{&root}
		now := time.Now()

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			res := tx.Model(&membershipDatamodel.UserTenantMembership{}).
				Where("id = ? AND is_active = ?", current.ID, true).
				Updates(map[string]interface{}{"is_active": false, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// already inactive, nothing below it can still be chained on
				// an active path through this revocation
				continue
			}

			revoked = append(revoked, current)

			event := &auditDatamodel.AuditEvent{
				ActorID:    actorID,
				TenantID:   &current.TenantID,
				Action:     action,
				Entity:     "membership",
				EntityID:   formatID(current.ID),
				Metadata:   cascadeMetadata(current, membershipID),
				OccurredAt: now,
			}
			if err := tx.Create(event).Error; err != nil {
				return err
			}

			var children []membershipDatamodel.UserTenantMembership
			if err := tx.
				Where("delegated_by = ? AND tenant_id = ? AND is_active = ?", current.UserID, current.TenantID, true).
				Find(&children).Error; err != nil {
				return err
			}
			for i := range children {
				queue = append(queue, &children[i])
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

func (r *DelegationRepository) FindExpired(now time.Time, limit int) ([]*membershipDatamodel.UserTenantMembership, error) {
	var expired []*membershipDatamodel.UserTenantMembership
	q := r.db.
		Where("expires_at IS NOT NULL AND expires_at < ? AND is_active = ?", now, true).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&expired).Error
	return expired, err
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func cascadeMetadata(m *membershipDatamodel.UserTenantMembership, rootID int64) string {
	payload := map[string]interface{}{
		"user_id":          m.UserID,
		"role_id":          m.RoleID,
		"delegation_level": m.DelegationLevel,
	}
	if m.ID != rootID {
		payload["cascaded_from"] = rootID
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(b)
}
