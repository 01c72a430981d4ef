package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
)

type contextKey string

const NamespaceKey contextKey = "namespace"

const (
	APIKeyHeader     = "x-api-key"
	CustomerIDHeader = "customer_id"
	ProjectIDHeader  = "project_id"
)

// APIKeyAuth rejects requests whose x-api-key header does not match key.
// An empty key disables the check.
func APIKeyAuth(key string) func(http.Handler) http.Handler {
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			provided := []byte(r.Header.Get(APIKeyHeader))
			if subtle.ConstantTimeCompare(provided, expected) != 1 {
				api.HandleError(w, domain.ErrInvalidAPIKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TenantHeaders resolves the namespace from the customer_id and project_id
// headers. With require set, a missing header is a 400.
func TenantHeaders(require bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ns := tenantFromHeaders(r)
			if require && !ns.Complete() {
				api.HandleError(w, domain.ErrMissingTenantHeaders)
				return
			}

			ctx := context.WithValue(r.Context(), NamespaceKey, ns)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetNamespace returns the namespace resolved by TenantHeaders.
func GetNamespace(ctx context.Context) domain.Namespace {
	ns, _ := ctx.Value(NamespaceKey).(domain.Namespace)
	return ns
}

func tenantFromHeaders(r *http.Request) domain.Namespace {
	return domain.NewNamespace(r.Header.Get(CustomerIDHeader), r.Header.Get(ProjectIDHeader))
}
