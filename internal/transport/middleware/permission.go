package middleware

import (
	"log/slog"
	"net/http"

	"github.com/signagecloud/access-management/internal"
	"github.com/signagecloud/access-management/internal/permission"
	"github.com/signagecloud/access-management/internal/resolver"
)

// RequirePermission guards a route behind a permission check against the
// resolver. The check runs in the tenant scope of the request; object-scoped
// checks happen inside handlers where the object id is known.
func RequirePermission(res *resolver.Resolver, logger *slog.Logger, codename string) func(http.Handler) http.Handler {
	parsed, err := permission.ParseCodename(codename)
	if err != nil {
		// a malformed codename in a route table is a programming error
		panic("invalid permission codename in route guard: " + codename)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := internal.UserIDFromContext(r.Context())
			if userID == 0 {
				writeJSONError(w, http.StatusUnauthorized, "missing authentication")
				return
			}
			tenantID := internal.TenantIDFromContext(r.Context())
			if tenantID == 0 {
				writeJSONError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
				return
			}

			decision, err := res.Resolve(r.Context(), userID, tenantID, parsed, nil)
			if err != nil {
				logger.Error("permission check failed",
					"error", err,
					"user_id", userID,
					"tenant_id", tenantID,
					"permission", codename)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !decision.Granted {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error": "` + message + `"}`))
}
