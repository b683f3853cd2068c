package masterdata

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mise-erp/mise-erp/internal/platform/httpx"
	"github.com/mise-erp/mise-erp/internal/shared"
)

// Handler wires HTTP endpoints for the ingredient catalog.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the masterdata handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers ingredient routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
}

type createIngredientRequest struct {
	Name     string           `json:"name" validate:"required,max=128"`
	Unit     string           `json:"unit" validate:"required,max=16"`
	MinStock *decimal.Decimal `json:"min_stock"`
	MaxStock *decimal.Decimal `json:"max_stock"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID := headerInt64(r, "X-Owner-ID")
	if ownerID <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "owner identity header required")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	items, err := h.service.ListIngredients(r.Context(), ListFilter{
		OwnerID: ownerID,
		Search:  q.Get("search"),
		Limit:   limit,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, ing := range items {
		out = append(out, ingredientResponse(ing))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ingredients": out})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := headerInt64(r, "X-Owner-ID")
	if ownerID <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "owner identity header required")
		return
	}
	var req createIngredientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid JSON body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	}
	ing := Ingredient{OwnerID: ownerID, Name: req.Name, Unit: req.Unit}
	if req.MinStock != nil {
		ing.MinStock = decimal.NullDecimal{Decimal: *req.MinStock, Valid: true}
	}
	if req.MaxStock != nil {
		ing.MaxStock = decimal.NullDecimal{Decimal: *req.MaxStock, Valid: true}
	}
	created, err := h.service.CreateIngredient(r.Context(), ing)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ingredientResponse(created))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID := headerInt64(r, "X-Owner-ID")
	if ownerID <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "owner identity header required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid ingredient id", httpx.ErrValidation))
		return
	}
	ing, err := h.service.GetIngredient(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if ing.OwnerID != ownerID {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, ingredientResponse(ing))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, ErrOwnerMismatch):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, httpx.ErrDuplicate), errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error("masterdata request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func headerInt64(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.Header.Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func ingredientResponse(ing Ingredient) map[string]any {
	out := map[string]any{
		"id":           ing.ID,
		"name":         ing.Name,
		"unit":         ing.Unit,
		"average_cost": ing.AverageCost,
		"active":       ing.Active,
		"created_at":   ing.CreatedAt,
		"updated_at":   ing.UpdatedAt,
	}
	if ing.MinStock.Valid {
		out["min_stock"] = ing.MinStock.Decimal
	}
	if ing.MaxStock.Valid {
		out["max_stock"] = ing.MaxStock.Decimal
	}
	return out
}
