package tenant

import (
	"regexp"
	"time"

	tenantDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/tenant"
)

// OwnerRoleName is the system role granted to the creating user of a tenant.
const OwnerRoleName = "Owner"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

type Tenant struct {
	ID        int64
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

func FromDataModel(dm *tenantDatamodel.Tenant) *Tenant {
	return &Tenant{
		ID:        dm.ID,
		Name:      dm.Name,
		Slug:      dm.Slug,
		IsActive:  dm.IsActive,
		CreatedAt: dm.CreatedAt,
		UpdatedAt: dm.UpdatedAt,
	}
}

func ToDataModel(t *Tenant) *tenantDatamodel.Tenant {
	return &tenantDatamodel.Tenant{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type TenantResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *Tenant) ToResponse() TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
	}
}
