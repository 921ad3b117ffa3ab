package permission

import (
	"github.com/signagecloud/access-management/internal"
)

type CreatePermissionDTO struct {
	Codename string `json:"codename"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Parse validates the DTO and returns the typed codename.
func (d CreatePermissionDTO) Parse() (Codename, *internal.AppError) {
	if d.Codename == "" {
		return "", internal.NewValidationFieldError("codename", "codename is required", internal.ErrCodeValidationFailed)
	}
	if d.Name == "" {
		return "", internal.NewValidationFieldError("name", "name is required", internal.ErrCodeValidationFailed)
	}
	codename, err := ParseCodename(d.Codename)
	if err != nil {
		return "", internal.NewValidationFieldError("codename", err.Error(), internal.ErrCodeInvalidCodename)
	}
	return codename, nil
}

type PermissionResponse struct {
	ID       int64  `json:"id"`
	Codename string `json:"codename"`
	Name     string `json:"name"`
	Category string `json:"category"`
}
