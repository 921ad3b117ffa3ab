package postgres

import (
	"encoding/json"
	"strconv"
	"time"

	auditDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/audit"
	membershipDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/membership"
	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
	"github.com/signagecloud/access-management/internal/membership"
	"gorm.io/gorm"
)

type MembershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) membership.RepositoryAPI {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) GetByID(id int64) (*membershipDatamodel.UserTenantMembership, error) {
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

func (r *MembershipRepository) FindActive(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
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

func (r *MembershipRepository) FindPending(userID, tenantID int64) (*membershipDatamodel.UserTenantMembership, error) {
	var m membershipDatamodel.UserTenantMembership
	err := r.db.
		Where("user_id = ? AND tenant_id = ? AND is_active = ? AND accepted_at IS NULL", userID, tenantID, false).
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepository) Activate(membershipID int64, acceptedAt time.Time) error {
	return r.db.Model(&membershipDatamodel.UserTenantMembership{}).
		Where("id = ? AND is_active = ? AND accepted_at IS NULL", membershipID, false).
		Updates(map[string]interface{}{
			"is_active":   true,
			"accepted_at": acceptedAt,
			"joined_at":   acceptedAt,
			"updated_at":  acceptedAt,
		}).Error
}

func (r *MembershipRepository) ListForTenant(tenantID int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var rows []*membershipDatamodel.UserTenantMembership
	err := r.db.
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("joined_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *MembershipRepository) ListForUser(userID int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var rows []*membershipDatamodel.UserTenantMembership
	err := r.db.
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("joined_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *MembershipRepository) Create(m *membershipDatamodel.UserTenantMembership) error {
	return r.db.Create(m).Error
}

func (r *MembershipRepository) UpdateRole(membershipID, roleID int64) error {
	return r.db.Model(&membershipDatamodel.UserTenantMembership{}).
		Where("id = ?", membershipID).
		Updates(map[string]interface{}{"role_id": roleID, "updated_at": time.Now()}).Error
}

func (r *MembershipRepository) GetRole(id int64) (*rbacDatamodel.Role, error) {
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

// RemoveCascade deactivates the membership and, breadth-first, every active
// delegation the removed user issued in the same tenant. Conditional updates
// keep the walk idempotent under concurrent revocations.
func (r *MembershipRepository) RemoveCascade(membershipID int64, actorID *int64) ([]*membershipDatamodel.UserTenantMembership, error) {
	var removed []*membershipDatamodel.UserTenantMembership

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
				continue
			}

			removed = append(removed, current)

			action := "membership.removed"
			if current.Delegated() {
				action = "delegation.revoked"
			}
			event := &auditDatamodel.AuditEvent{
				ActorID:    actorID,
				TenantID:   &current.TenantID,
				Action:     action,
				Entity:     "membership",
				EntityID:   strconv.FormatInt(current.ID, 10),
				Metadata:   removalMetadata(current, membershipID),
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
	return removed, nil
}

func removalMetadata(m *membershipDatamodel.UserTenantMembership, rootID int64) string {
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
