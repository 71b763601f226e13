package auth

import (
	"log"
	"net/http"
	"strings"
)

// Middleware validates JWTs and enforces RBAC. When an expected household
// is configured, tokens scoped to any other household are rejected; this
// engine serves exactly one household.
type Middleware struct {
	Secret    []byte
	Policy    Policy
	Household string

	logger *log.Logger
}

// MiddlewareOption customizes the middleware.
type MiddlewareOption func(*Middleware)

// WithExpectedHousehold pins accepted tokens to one household id.
func WithExpectedHousehold(householdID string) MiddlewareOption {
	return func(m *Middleware) {
		m.Household = householdID
	}
}

// WithAuthLogger assigns a logger for denied requests.
func WithAuthLogger(logger *log.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	middleware := &Middleware{Secret: secret, Policy: policy}
	for _, opt := range opts {
		opt(middleware)
	}
	return middleware
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearer(r)
		claims, err := ParseJWT(token, m.Secret)
		if err != nil {
			m.deny(r, "invalid token")
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if m.Household != "" && claims.HouseholdID != m.Household {
			m.deny(r, "foreign household")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			m.deny(r, "insufficient role "+string(role))
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), claims.HouseholdID, role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) deny(r *http.Request, reason string) {
	if m.logger == nil {
		return
	}
	m.logger.Printf("auth denied: method=%s path=%s reason=%s", r.Method, r.URL.Path, reason)
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
