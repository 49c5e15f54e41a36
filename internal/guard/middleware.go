package guard

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// Resolver turns a bearer credential into an authenticated principal. The
// implementation must re-read current role membership from storage; role
// codes embedded in a long-lived credential go stale.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (shared.Principal, error)
}

// Guard evaluates access decisions for HTTP requests. The preview flag is
// fixed at construction so both modes can be exercised in tests.
type Guard struct {
	resolver Resolver
	preview  bool
	logger   *slog.Logger
}

// New constructs a Guard.
func New(resolver Resolver, preview bool, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: resolver, preview: preview, logger: logger}
}

// Authenticate resolves the Authorization header into a principal and stores
// it in the request context. Requests without a valid credential are denied
// before any later stage runs.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		principal, err := g.resolver.Resolve(r.Context(), token)
		if err != nil {
			g.logger.Debug("resolve credential", slog.Any("error", err))
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), &principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles allows the request when the required set is empty, when the
// principal's role codes intersect it, or when the principal holds the
// super-administrator role.
func (g *Guard) RequireRoles(codes ...string) func(http.Handler) http.Handler {
	required := shared.NormalizeRoleCodes(codes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if principal.IsSuperAdmin() || principal.HasAnyRole(required) {
				next.ServeHTTP(w, r)
				return
			}
			g.logger.Warn("role denied",
				slog.Int64("user_id", principal.UserID),
				slog.String("path", r.URL.Path))
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}

// blockMutations is the final, role-independent veto applied to mutating
// operations when the deployment runs in preview mode.
func (g *Guard) blockMutations(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.preview {
			httpx.RespondError(w, httpx.ErrMutationBlocked)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Protect composes the authorization and mutation stages for one policy.
// Authentication runs once at the router level; the stages here only fire
// after it has passed, and they short-circuit in order.
func (g *Guard) Protect(p Policy) func(http.Handler) http.Handler {
	requireRoles := g.RequireRoles(p.Roles...)
	return func(next http.Handler) http.Handler {
		if p.Mutating {
			next = g.blockMutations(next)
		}
		return requireRoles(next)
	}
}

// Enforce binds a static policy table to the guard, producing the Enforcer
// handlers mount their routes with.
func (g *Guard) Enforce(t Table) Enforcer {
	return func(op string) func(http.Handler) http.Handler {
		return g.Protect(t.Get(op))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !found || token == "" {
		return "", false
	}
	return token, true
}
