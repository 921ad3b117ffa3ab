package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/signagecloud/access-management/internal/audit"
	"github.com/signagecloud/access-management/internal/auth"
	"github.com/signagecloud/access-management/internal/delegation"
	"github.com/signagecloud/access-management/internal/membership"
	"github.com/signagecloud/access-management/internal/permission"
	"github.com/signagecloud/access-management/internal/resolver"
	"github.com/signagecloud/access-management/internal/role"
	"github.com/signagecloud/access-management/internal/tenant"
	"github.com/signagecloud/access-management/internal/transport/middleware"
	"github.com/signagecloud/access-management/internal/transport/swagger"
	"github.com/signagecloud/access-management/internal/user"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth       *auth.Handler
	User       *user.Handler
	Tenant     *tenant.Handler
	Role       *role.Handler
	Permission *permission.Handler
	Membership *membership.Handler
	Delegation *delegation.Handler
	Access     *resolver.Handler
	Audit      *audit.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, res *resolver.Resolver, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	guard := func(codename string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(res, logger, codename)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		// everything below requires an authenticated user
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(middleware.TenantContext)

			pr.Get("/users/me", h.User.Me)

			// any authenticated user may ask about their own access
			pr.Get("/access/check", h.Access.CheckAccess)

			pr.Post("/invitations/accept", h.Membership.AcceptInvitation)

			pr.Route("/tenants", func(tr chi.Router) {
				tr.Post("/", h.Tenant.CreateTenant)
				tr.Get("/{id}", h.Tenant.GetTenant)

				tr.Group(func(gr chi.Router) {
					gr.Use(guard("tenant.manage"))
					gr.Get("/", h.Tenant.ListTenants)
					gr.Patch("/{id}", h.Tenant.UpdateTenant)
					gr.Delete("/{id}", h.Tenant.DeactivateTenant)
				})
			})

			pr.Route("/roles", func(rr chi.Router) {
				rr.Group(func(gr chi.Router) {
					gr.Use(guard("role.read"))
					gr.Get("/", h.Role.ListRoles)
					gr.Get("/{id}", h.Role.GetRole)
				})

				rr.Group(func(gr chi.Router) {
					gr.Use(guard("role.manage"))
					gr.Post("/", h.Role.CreateRole)
					gr.Patch("/{id}", h.Role.UpdateRole)
					gr.Delete("/{id}", h.Role.DeactivateRole)
					gr.Post("/{id}/permissions", h.Role.BindPermission)
					gr.Delete("/{id}/permissions/{bindingID}", h.Role.UnbindPermission)
				})
			})

			pr.Route("/permissions", func(pmr chi.Router) {
				pmr.Group(func(gr chi.Router) {
					gr.Use(guard("permission.read"))
					gr.Get("/", h.Permission.ListPermissions)
				})
				pmr.Group(func(gr chi.Router) {
					gr.Use(guard("permission.manage"))
					gr.Post("/", h.Permission.CreatePermission)
				})
			})

			pr.Route("/memberships", func(mr chi.Router) {
				mr.Group(func(gr chi.Router) {
					gr.Use(guard("member.read"))
					gr.Get("/", h.Membership.ListMembers)
					gr.Get("/{id}", h.Membership.GetMembership)
				})
				mr.Group(func(gr chi.Router) {
					gr.Use(guard("member.manage"))
					gr.Post("/", h.Membership.AssignMember)
					gr.Patch("/{id}/role", h.Membership.ChangeRole)
					gr.Delete("/{id}", h.Membership.RemoveMember)
				})
			})

			// delegation preconditions are enforced in the service; the route
			// guard only requires the feature permission
			pr.Route("/delegations", func(dr chi.Router) {
				dr.Use(guard("delegation.manage"))
				dr.Post("/", h.Delegation.CreateDelegation)
				dr.Delete("/{id}", h.Delegation.RevokeDelegation)
			})

			pr.Route("/audit", func(ar chi.Router) {
				ar.Use(guard("audit.read"))
				ar.Get("/events", h.Audit.ListEvents)
			})
		})
	})
}
