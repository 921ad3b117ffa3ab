package tenant

import (
	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/core/common/validation"
)

type CreateTenantDTO struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (d CreateTenantDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MinLength(2).MaxLength(120)
	v.Field("slug", d.Slug).Required().MinLength(2).MaxLength(63).
		Matches(slugPattern, internal.ErrCodeInvalidSlug)
	return v.Validate()
}

type UpdateTenantDTO struct {
	Name *string `json:"name,omitempty"`
}

func (d UpdateTenantDTO) Validate() *internal.AppError {
	v := validation.NewValidator()
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MinLength(2).MaxLength(120)
	}
	return v.Validate()
}
