package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with system roles, the permission catalog and demo data",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlxDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{Conn: sqlxDB.DB}), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		seedSystemRoles(db)
		seedPermissionCatalog(db)
		seedSystemBindings(db)
		seedDemoData(db, cfg.Security.BCryptCost)

		fmt.Println("Seeding complete")
	},
}

// systemRoles is the built-in hierarchy. Lower level means more privilege;
// Owner sits at the root and every tenant role may chain below these.
var systemRoles = []struct {
	Name               string
	Level              int
	Parent             string
	CanDelegate        bool
	MaxDelegationDepth int
}{
	{"Owner", 0, "", true, 3},
	{"Admin", 10, "Owner", true, 2},
	{"Editor", 20, "Admin", false, 0},
	{"Viewer", 40, "Editor", false, 0},
}

func seedSystemRoles(db *gorm.DB) {
	for _, r := range systemRoles {
		var exists int
		if err := db.Raw("SELECT 1 FROM roles WHERE name = ? AND tenant_id IS NULL", r.Name).Row().Scan(&exists); err == nil {
			continue
		}

		var parentID interface{}
		if r.Parent != "" {
			var pid int64
			if err := db.Raw("SELECT id FROM roles WHERE name = ? AND tenant_id IS NULL", r.Parent).Row().Scan(&pid); err != nil {
				log.Fatalf("parent role %s not found for %s: %v", r.Parent, r.Name, err)
			}
			parentID = pid
		}

		err := db.Exec(
			`INSERT INTO roles (name, level, tenant_id, parent_id, can_delegate, max_delegation_depth, is_active, created_at, updated_at)
			 VALUES (?, ?, NULL, ?, ?, ?, true, now(), now())`,
			r.Name, r.Level, parentID, r.CanDelegate, r.MaxDelegationDepth,
		).Error
		if err != nil {
			log.Fatalf("failed to insert system role %s: %v", r.Name, err)
		}
		fmt.Println("Seeded system role:", r.Name)
	}
}

var permissionCatalog = []struct {
	Codename string
	Name     string
	Category string
}{
	{"asset.read", "View assets", "asset"},
	{"asset.create", "Create assets", "asset"},
	{"asset.update", "Edit assets", "asset"},
	{"asset.delete", "Delete assets", "asset"},
	{"asset.publish", "Publish assets to screens", "asset"},
	{"role.read", "View roles", "role"},
	{"role.manage", "Create and modify roles", "role"},
	{"permission.read", "View the permission catalog", "permission"},
	{"permission.manage", "Register permissions", "permission"},
	{"member.read", "View tenant members", "member"},
	{"member.manage", "Assign and remove members", "member"},
	{"delegation.manage", "Delegate and revoke authority", "delegation"},
	{"tenant.manage", "Administer tenants", "tenant"},
	{"audit.read", "Query the audit trail", "audit"},
}

func seedPermissionCatalog(db *gorm.DB) {
	for _, p := range permissionCatalog {
		var exists int
		if err := db.Raw("SELECT 1 FROM permissions WHERE codename = ?", p.Codename).Row().Scan(&exists); err == nil {
			continue
		}
		err := db.Exec(
			"INSERT INTO permissions (codename, name, category, created_at) VALUES (?, ?, ?, now())",
			p.Codename, p.Name, p.Category,
		).Error
		if err != nil {
			log.Fatalf("failed to insert permission %s: %v", p.Codename, err)
		}
		fmt.Println("Seeded permission:", p.Codename)
	}
}

// systemBindings grants the catalog across the hierarchy. Owner gets
// everything directly; the others inherit downward and add their own layer.
var systemBindings = map[string][]string{
	"Owner": {
		"asset.delete", "role.manage", "permission.manage",
		"member.manage", "delegation.manage", "tenant.manage", "audit.read",
	},
	"Admin": {
		"asset.publish", "role.read", "permission.read", "member.read",
	},
	"Editor": {
		"asset.create", "asset.update",
	},
	"Viewer": {
		"asset.read",
	},
}

func seedSystemBindings(db *gorm.DB) {
	for roleName, codenames := range systemBindings {
		var roleID int64
		if err := db.Raw("SELECT id FROM roles WHERE name = ? AND tenant_id IS NULL", roleName).Row().Scan(&roleID); err != nil {
			log.Fatalf("system role %s not found: %v", roleName, err)
		}

		for _, codename := range codenames {
			var permID int64
			if err := db.Raw("SELECT id FROM permissions WHERE codename = ?", codename).Row().Scan(&permID); err != nil {
				log.Fatalf("permission %s not found: %v", codename, err)
			}

			var exists int
			if err := db.Raw(
				"SELECT 1 FROM role_permissions WHERE role_id = ? AND permission_id = ? AND object_id IS NULL AND is_active = true",
				roleID, permID,
			).Row().Scan(&exists); err == nil {
				continue
			}

			err := db.Exec(
				`INSERT INTO role_permissions (role_id, permission_id, is_granted, object_id, can_override, granted_by, granted_at, is_active)
				 VALUES (?, ?, true, NULL, true, NULL, now(), true)`,
				roleID, permID,
			).Error
			if err != nil {
				log.Fatalf("failed to bind %s to %s: %v", codename, roleName, err)
			}
		}
		fmt.Println("Seeded bindings for role:", roleName)
	}
}

func seedDemoData(db *gorm.DB, bcryptCost int) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcryptCost)

	users := []struct {
		Email string
		Name  string
	}{
		{"owner@demo.local", "Demo Owner"},
		{"editor@demo.local", "Demo Editor"},
	}

	for _, u := range users {
		var exists int
		if err := db.Raw("SELECT 1 FROM users WHERE email = ?", u.Email).Row().Scan(&exists); err == nil {
			continue
		}
		err := db.Exec(
			"INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, true, now(), now())",
			u.Email, u.Name, string(hash),
		).Error
		if err != nil {
			log.Fatalf("failed to insert user %s: %v", u.Email, err)
		}
		fmt.Println("Seeded user:", u.Email)
	}

	var tenantExists int
	if err := db.Raw("SELECT 1 FROM tenants WHERE slug = ?", "demo").Row().Scan(&tenantExists); err == nil {
		return
	}
	if err := db.Exec("INSERT INTO tenants (name, slug, is_active, created_at, updated_at) VALUES (?, ?, true, now(), now())", "Demo Tenant", "demo").Error; err != nil {
		log.Fatalf("failed to insert demo tenant: %v", err)
	}

	var tenantID, ownerID, editorID, ownerRoleID, editorRoleID int64
	must := func(err error, what string) {
		if err != nil {
			log.Fatalf("failed to look up %s: %v", what, err)
		}
	}
	must(db.Raw("SELECT id FROM tenants WHERE slug = 'demo'").Row().Scan(&tenantID), "demo tenant")
	must(db.Raw("SELECT id FROM users WHERE email = 'owner@demo.local'").Row().Scan(&ownerID), "owner user")
	must(db.Raw("SELECT id FROM users WHERE email = 'editor@demo.local'").Row().Scan(&editorID), "editor user")
	must(db.Raw("SELECT id FROM roles WHERE name = 'Owner' AND tenant_id IS NULL").Row().Scan(&ownerRoleID), "Owner role")
	must(db.Raw("SELECT id FROM roles WHERE name = 'Editor' AND tenant_id IS NULL").Row().Scan(&editorRoleID), "Editor role")

	memberships := []struct {
		UserID int64
		RoleID int64
	}{
		{ownerID, ownerRoleID},
		{editorID, editorRoleID},
	}
	for _, m := range memberships {
		err := db.Exec(
			`INSERT INTO user_tenant_memberships (user_id, tenant_id, role_id, is_primary, is_active, joined_at, accepted_at, delegation_level, created_at, updated_at)
			 VALUES (?, ?, ?, true, true, now(), now(), 0, now(), now())`,
			m.UserID, tenantID, m.RoleID,
		).Error
		if err != nil {
			log.Fatalf("failed to insert demo membership: %v", err)
		}
	}
	fmt.Println("Seeded demo tenant with owner and editor")
}
