package middleware

import (
	"net/http"
	"strconv"

	"github.com/signagecloud/access-management/internal"
)

// TenantContext reads the X-Tenant-ID header and places the tenant scope on
// the request context. Requests without the header pass through; handlers
// that require a tenant reject them individually.
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("X-Tenant-ID")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		tenantID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || tenantID <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "X-Tenant-ID must be a positive integer"}`))
			return
		}

		ctx := internal.ContextWithTenantID(r.Context(), tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
