package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nova-admin/nova-admin/internal/auth"
	"github.com/nova-admin/nova-admin/internal/guard"
	"github.com/nova-admin/nova-admin/internal/orders"
	"github.com/nova-admin/nova-admin/internal/permissions"
	"github.com/nova-admin/nova-admin/internal/roles"
	"github.com/nova-admin/nova-admin/internal/shared"
	"github.com/nova-admin/nova-admin/internal/users"
)

// PolicyTable is the single authoritative map from operation name to access
// policy. Operations absent from the table fall back to authenticated-only,
// non-mutating. Role lists name the minimum grant; the super administrator
// passes every check regardless.
func PolicyTable() guard.Table {
	admin := []string{shared.SuperAdmin}
	return guard.Table{
		"permission.list":   {},
		"permission.tree":   {},
		"permission.create": {Roles: admin, Mutating: true},
		"permission.update": {Roles: admin, Mutating: true},
		"permission.delete": {Roles: admin, Mutating: true},

		"role.list":              {},
		"role.permissionsTree":   {},
		"role.permissions":       {Roles: admin},
		"role.users":             {Roles: admin},
		"role.create":            {Roles: admin, Mutating: true},
		"role.update":            {Roles: admin, Mutating: true},
		"role.delete":            {Roles: admin, Mutating: true},
		"role.grantPermissions":  {Roles: admin, Mutating: true},
		"role.revokePermissions": {Roles: admin, Mutating: true},
		"role.grantUsers":        {Roles: admin, Mutating: true},
		"role.revokeUsers":       {Roles: admin, Mutating: true},

		"user.list":          {Roles: admin},
		"user.create":        {Roles: admin, Mutating: true},
		"user.update":        {Roles: admin, Mutating: true},
		"user.delete":        {Roles: admin, Mutating: true},
		"user.resetPassword": {Roles: admin, Mutating: true},
		"user.detail":        {},
		"user.profile":       {Mutating: true},

		"order.list":   {},
		"order.get":    {},
		"order.create": {Roles: admin, Mutating: true},
		"order.update": {Roles: admin, Mutating: true},
		"order.delete": {Roles: admin, Mutating: true},
	}
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Guard              *guard.Guard
	AuthHandler        *auth.Handler
	PermissionsHandler *permissions.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	OrdersHandler      *orders.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountPublicRoutes)

	protect := params.Guard.Enforce(PolicyTable())

	r.Group(func(g chi.Router) {
		g.Use(params.Guard.Authenticate)

		g.Route("/auth/session", params.AuthHandler.MountProtectedRoutes)
		g.Route("/permissions", func(rr chi.Router) {
			params.PermissionsHandler.MountRoutes(rr, protect)
		})
		g.Route("/roles", func(rr chi.Router) {
			params.RolesHandler.MountRoutes(rr, protect)
		})
		g.Route("/users", func(rr chi.Router) {
			params.UsersHandler.MountRoutes(rr, protect)
		})
		g.Route("/orders", func(rr chi.Router) {
			params.OrdersHandler.MountRoutes(rr, protect)
		})
	})

	return r
}
