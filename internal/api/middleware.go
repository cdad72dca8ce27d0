package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/voxnote/voxnote-api/internal/api/shared"
)

// Gateway-set identity headers. The upstream CRUD layer authenticates the
// caller and forwards their identifiers; this service only scopes queries
// by them.
const (
	headerCompanyID = "X-Company-ID"
	headerUserID    = "X-User-ID"
	headerStaffID   = "X-Staff-ID"
)

// Caller is the identity the gateway vouched for on this request.
type Caller struct {
	CompanyID uuid.UUID
	UserID    uuid.UUID
	StaffID   uuid.UUID
}

// TraceID attaches a per-request trace ID to the context.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(shared.SetTraceID(r.Context())))
	})
}

// CallerScope extracts the caller identity headers. Requests without a
// valid company ID are rejected; user and staff IDs are optional and a
// zero user ID means company-wide visibility.
func CallerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID, err := uuid.Parse(r.Header.Get(headerCompanyID))
		if err != nil || companyID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing or invalid company identity")
			return
		}

		caller := Caller{CompanyID: companyID}
		if id, err := uuid.Parse(r.Header.Get(headerUserID)); err == nil {
			caller.UserID = id
		}
		if id, err := uuid.Parse(r.Header.Get(headerStaffID)); err == nil {
			caller.StaffID = id
		}

		ctx := context.WithValue(r.Context(), shared.ScopeContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFromContext returns the caller the middleware stored.
func callerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(shared.ScopeContextKey).(Caller)
	return caller, ok
}
