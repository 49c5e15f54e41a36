package roles

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nova-admin/nova-admin/internal/guard"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// Handler wires HTTP endpoints for role management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes guarded by the supplied enforcer.
func (h *Handler) MountRoutes(r chi.Router, protect guard.Enforcer) {
	r.With(protect("role.list")).Get("/", h.list)
	r.With(protect("role.create")).Post("/", h.create)
	r.With(protect("role.permissionsTree")).Get("/permissions/tree", h.permissionsTree)
	r.With(protect("role.update")).Patch("/{id}", h.update)
	r.With(protect("role.delete")).Delete("/{id}", h.remove)
	r.With(protect("role.permissions")).Get("/{id}/permissions", h.rolePermissions)
	r.With(protect("role.users")).Get("/{id}/users", h.roleUsers)
	r.With(protect("role.grantPermissions")).Post("/{id}/permissions/add", h.grantPermissions)
	r.With(protect("role.revokePermissions")).Post("/{id}/permissions/remove", h.revokePermissions)
	r.With(protect("role.grantUsers")).Post("/{id}/users/add", h.grantUsers)
	r.With(protect("role.revokeUsers")).Post("/{id}/users/remove", h.revokeUsers)
}

type createRoleRequest struct {
	Name          string  `json:"name" validate:"required,max=50"`
	Code          string  `json:"code" validate:"required,max=50"`
	Description   string  `json:"description"`
	Enable        *bool   `json:"enable"`
	PermissionIDs []int64 `json:"permissionIds"`
}

type updateRoleRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Enable        bool    `json:"enable"`
	PermissionIDs []int64 `json:"permissionIds"`
}

type idsRequest struct {
	PermissionIDs []int64 `json:"permissionIds"`
	UserIDs       []int64 `json:"userIds"`
}

type listResponse struct {
	PageData any `json:"pageData"`
	Total    int `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Name: r.URL.Query().Get("name")}
	if v := r.URL.Query().Get("enable"); v != "" {
		enable := v == "true" || v == "1"
		filters.Enable = &enable
	}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("pageNo"))
	filters.PerPage, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))

	rolesPage, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{PageData: rolesPage, Total: pagination.Total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	enable := true
	if req.Enable != nil {
		enable = *req.Enable
	}
	role, err := h.service.Create(r.Context(), CreateInput{
		Name:          req.Name,
		Code:          req.Code,
		Description:   req.Description,
		Enable:        enable,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	role, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:          req.Name,
		Description:   req.Description,
		Enable:        req.Enable,
		PermissionIDs: req.PermissionIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	perms, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) roleUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ids, err := h.service.UserIDs(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ids)
}

func (h *Handler) permissionsTree(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code query parameter required")
		return
	}
	nodes, err := h.service.PermissionsTree(r.Context(), code)
	if err != nil {
		h.logger.Error("role permissions tree", slog.String("code", code), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, nodes)
}

func (h *Handler) grantPermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateAssociations(w, r, func(id int64, req idsRequest) error {
		return h.service.GrantPermissions(r.Context(), id, req.PermissionIDs)
	})
}

func (h *Handler) revokePermissions(w http.ResponseWriter, r *http.Request) {
	h.mutateAssociations(w, r, func(id int64, req idsRequest) error {
		return h.service.RevokePermissions(r.Context(), id, req.PermissionIDs)
	})
}

func (h *Handler) grantUsers(w http.ResponseWriter, r *http.Request) {
	h.mutateAssociations(w, r, func(id int64, req idsRequest) error {
		return h.service.GrantUsers(r.Context(), id, req.UserIDs)
	})
}

func (h *Handler) revokeUsers(w http.ResponseWriter, r *http.Request) {
	h.mutateAssociations(w, r, func(id int64, req idsRequest) error {
		return h.service.RevokeUsers(r.Context(), id, req.UserIDs)
	})
}

func (h *Handler) mutateAssociations(w http.ResponseWriter, r *http.Request, fn func(int64, idsRequest) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := fn(id, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return 0, false
	}
	return id, true
}
