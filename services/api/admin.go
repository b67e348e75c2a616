package api

import (
	"context"
	"net/http"
	"strings"

	"activityaudit/services/audit"
)

const adminTokenHeader = "X-Admin-Token"

type identityKey struct{}

// requireAdmin rejects requests without an admin credential with 403 and
// stores the verified identity on the request context.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.svc.Gate.Authorize(r.Context(), credential(r))
		if err != nil {
			a.logger.Warn().
				Str("path", r.URL.Path).
				Str("ip", ClientIP(r)).
				Msg("admin access denied")
			respondError(w, http.StatusForbidden, audit.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) audit.AdminIdentity {
	id, _ := ctx.Value(identityKey{}).(audit.AdminIdentity)
	return id
}

// credential extracts a bearer token, falling back to the X-Admin-Token header.
func credential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get(adminTokenHeader))
}
