package permission

import (
	"fmt"
	"regexp"
	"time"

	rbacDatamodel "github.com/signagecloud/access-management/internal/core/datamodel/rbac"
)

// codenamePattern enforces the resource.action shape, e.g. "asset.create".
var codenamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// Codename is a validated resource.action capability token. Construct it with
// ParseCodename at system boundaries instead of threading raw strings through
// business logic.
type Codename string

func ParseCodename(s string) (Codename, error) {
	if !codenamePattern.MatchString(s) {
		return "", fmt.Errorf("invalid permission codename %q: expected resource.action", s)
	}
	return Codename(s), nil
}

func (c Codename) String() string {
	return string(c)
}

// Resource returns the part before the dot.
func (c Codename) Resource() string {
	for i := 0; i < len(c); i++ {
		if c[i] == '.' {
			return string(c[:i])
		}
	}
	return string(c)
}

// Action returns the part after the dot.
func (c Codename) Action() string {
	for i := 0; i < len(c); i++ {
		if c[i] == '.' {
			return string(c[i+1:])
		}
	}
	return ""
}

type Permission struct {
	ID        int64     `json:"id"`
	Codename  Codename  `json:"codename"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func NewPermission(codename Codename, name, category string) *Permission {
	return &Permission{
		Codename:  codename,
		Name:      name,
		Category:  category,
		CreatedAt: time.Now(),
	}
}

func ToDataModel(p *Permission) *rbacDatamodel.Permission {
	return &rbacDatamodel.Permission{
		ID:        p.ID,
		Codename:  p.Codename.String(),
		Name:      p.Name,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
	}
}

func FromDataModel(p *rbacDatamodel.Permission) *Permission {
	return &Permission{
		ID:        p.ID,
		Codename:  Codename(p.Codename),
		Name:      p.Name,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
	}
}
