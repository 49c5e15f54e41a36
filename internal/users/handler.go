package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nova-admin/nova-admin/internal/guard"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
	"github.com/nova-admin/nova-admin/internal/shared"
)

// Handler wires HTTP endpoints for user management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user routes guarded by the supplied enforcer.
func (h *Handler) MountRoutes(r chi.Router, protect guard.Enforcer) {
	r.With(protect("user.list")).Get("/", h.list)
	r.With(protect("user.create")).Post("/", h.create)
	r.With(protect("user.detail")).Get("/detail", h.selfDetail)
	r.With(protect("user.profile")).Patch("/profile", h.updateProfile)
	r.With(protect("user.update")).Patch("/{id}", h.update)
	r.With(protect("user.delete")).Delete("/{id}", h.remove)
	r.With(protect("user.resetPassword")).Post("/{id}/password/reset", h.resetPassword)
}

type createUserRequest struct {
	Username string  `json:"username" validate:"required,max=50"`
	Password string  `json:"password" validate:"required,min=6"`
	Enable   *bool   `json:"enable"`
	RoleIDs  []int64 `json:"roleIds"`
}

type updateUserRequest struct {
	Enable  bool    `json:"enable"`
	RoleIDs []int64 `json:"roleIds"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6"`
}

type profileRequest struct {
	NickName string `json:"nickName" validate:"max=50"`
	Gender   int16  `json:"gender" validate:"oneof=0 1 2"`
	Avatar   string `json:"avatar"`
	Address  string `json:"address"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type listResponse struct {
	PageData any `json:"pageData"`
	Total    int `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Username: r.URL.Query().Get("username")}
	if v := r.URL.Query().Get("enable"); v != "" {
		enable := v == "true" || v == "1"
		filters.Enable = &enable
	}
	filters.Page, _ = strconv.Atoi(r.URL.Query().Get("pageNo"))
	filters.PerPage, _ = strconv.Atoi(r.URL.Query().Get("pageSize"))

	details, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{PageData: details, Total: pagination.Total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
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
	user, err := h.service.Create(r.Context(), CreateInput{
		Username: req.Username,
		Password: req.Password,
		Enable:   enable,
		RoleIDs:  req.RoleIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, UpdateInput{Enable: req.Enable, RoleIDs: req.RoleIDs}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
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

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ResetPassword(r.Context(), id, req.Password); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) selfDetail(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	detail, err := h.service.Detail(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), Profile{
		UserID:   principal.UserID,
		NickName: req.NickName,
		Gender:   req.Gender,
		Avatar:   req.Avatar,
		Address:  req.Address,
		Email:    req.Email,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "")
		return 0, false
	}
	return id, true
}
