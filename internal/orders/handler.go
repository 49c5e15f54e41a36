package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nova-admin/nova-admin/internal/guard"
	"github.com/nova-admin/nova-admin/internal/platform/httpx"
)

// Handler wires HTTP endpoints for order management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes guarded by the supplied enforcer.
func (h *Handler) MountRoutes(r chi.Router, protect guard.Enforcer) {
	r.With(protect("order.list")).Get("/", h.list)
	r.With(protect("order.create")).Post("/", h.create)
	r.With(protect("order.get")).Get("/{number}", h.get)
	r.With(protect("order.update")).Patch("/{number}", h.update)
	r.With(protect("order.delete")).Delete("/{number}", h.remove)
}

type createOrderRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required"`
	UserID      *int64 `json:"userId"`
}

type updateOrderRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Step        int32    `json:"step"`
	State       *int32   `json:"state"`
	Price       *float64 `json:"price"`
	UserID      *int64   `json:"userId"`
}

type listResponse struct {
	PageData []Order `json:"pageData"`
	Total    int     `json:"total"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Number: q.Get("number")}
	if v := q.Get("step"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			step := int32(n)
			filters.Step = &step
		}
	}
	if v := q.Get("state"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			state := int32(n)
			filters.State = &state
		}
	}
	filters.UserID, _ = strconv.ParseInt(q.Get("userId"), 10, 64)
	filters.Page, _ = strconv.Atoi(q.Get("pageNo"))
	filters.PerPage, _ = strconv.Atoi(q.Get("pageSize"))

	ordersPage, pagination, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if ordersPage == nil {
		ordersPage = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{PageData: ordersPage, Total: pagination.Total})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.Create(r.Context(), CreateInput{
		Name:        req.Name,
		Description: req.Description,
		UserID:      req.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	order, err := h.service.Update(r.Context(), chi.URLParam(r, "number"), UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Step:        req.Step,
		State:       req.State,
		Price:       req.Price,
		UserID:      req.UserID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "number")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
