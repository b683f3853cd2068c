package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mise-erp/mise-erp/internal/masterdata"
	"github.com/mise-erp/mise-erp/internal/observability"
	"github.com/mise-erp/mise-erp/internal/platform/httpx"
	"github.com/mise-erp/mise-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock operations and reports.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, metrics: metrics}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/in", h.handleStockIn)
	r.Post("/out", h.handleStockOut)
	r.Post("/write-off", h.handleWriteOff)
	r.Post("/transfer", h.handleTransfer)
	r.Post("/take", h.handleStockTake)
	r.Get("/balances", h.handleListBalances)
	r.Get("/balances/{id}", h.handleGetBalance)
	r.Get("/history", h.handleHistory)
	r.Get("/reports/low-stock", h.handleLowStock)
	r.Get("/reports/expiring", h.handleExpiring)
	r.Get("/reports/expired", h.handleExpired)
	r.Get("/reports/summary", h.handleSummary)
}

type stockInRequest struct {
	StoreID        int64            `json:"store_id" validate:"required,gt=0"`
	WarehouseID    int64            `json:"warehouse_id" validate:"required,gt=0"`
	IngredientID   int64            `json:"ingredient_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal  `json:"quantity" validate:"required"`
	Unit           string           `json:"unit" validate:"omitempty,max=16"`
	BatchNumber    string           `json:"batch_number" validate:"omitempty,max=64"`
	ExpirationDate *time.Time       `json:"expiration_date"`
	CostPerUnit    *decimal.Decimal `json:"cost_per_unit"`
	Reference      string           `json:"reference" validate:"omitempty,uuid4"`
	Date           time.Time        `json:"date"`
}

type stockOutRequest struct {
	StoreID      int64           `json:"store_id" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouse_id" validate:"required,gt=0"`
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity" validate:"required"`
	Unit         string          `json:"unit" validate:"omitempty,max=16"`
	BatchNumber  string          `json:"batch_number" validate:"omitempty,max=64"`
	Reference    string          `json:"reference" validate:"omitempty,uuid4"`
	Date         time.Time       `json:"date"`
}

type writeOffRequest struct {
	stockOutRequest
	Reason string `json:"reason" validate:"required,oneof=expired damaged"`
}

type transferRequest struct {
	StoreID        int64           `json:"store_id" validate:"required,gt=0"`
	SrcWarehouseID int64           `json:"src_warehouse_id" validate:"required,gt=0"`
	DstWarehouseID int64           `json:"dst_warehouse_id" validate:"required,gt=0,nefield=SrcWarehouseID"`
	IngredientID   int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	Unit           string          `json:"unit" validate:"omitempty,max=16"`
	BatchNumber    string          `json:"batch_number" validate:"omitempty,max=64"`
	Reference      string          `json:"reference" validate:"omitempty,uuid4"`
	Date           time.Time       `json:"date"`
}

type stockTakeRequest struct {
	StoreID       int64           `json:"store_id" validate:"required,gt=0"`
	WarehouseID   int64           `json:"warehouse_id" validate:"required,gt=0"`
	IngredientID  int64           `json:"ingredient_id" validate:"required,gt=0"`
	PhysicalCount decimal.Decimal `json:"physical_count"`
	BatchNumber   string          `json:"batch_number" validate:"omitempty,max=64"`
	Reference     string          `json:"reference" validate:"omitempty,uuid4"`
	Date          time.Time       `json:"date"`
}

func (h *Handler) handleStockIn(w http.ResponseWriter, r *http.Request) {
	var req stockInRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.StockIn(r.Context(), StockInInput{
		OwnerID:        identity.OwnerID,
		UserID:         identity.UserID,
		StoreID:        req.StoreID,
		WarehouseID:    req.WarehouseID,
		IngredientID:   req.IngredientID,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		BatchNumber:    req.BatchNumber,
		ExpirationDate: req.ExpirationDate,
		CostPerUnit:    req.CostPerUnit,
		Reference:      req.Reference,
		Date:           req.Date,
	})
	h.observe("in", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(res))
}

func (h *Handler) handleStockOut(w http.ResponseWriter, r *http.Request) {
	var req stockOutRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.StockOut(r.Context(), StockOutInput{
		OwnerID:      identity.OwnerID,
		UserID:       identity.UserID,
		StoreID:      req.StoreID,
		WarehouseID:  req.WarehouseID,
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		BatchNumber:  req.BatchNumber,
		Reference:    req.Reference,
		Date:         req.Date,
	})
	h.observe("out", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(res))
}

func (h *Handler) handleWriteOff(w http.ResponseWriter, r *http.Request) {
	var req writeOffRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.WriteOff(r.Context(), WriteOffInput{
		OwnerID:      identity.OwnerID,
		UserID:       identity.UserID,
		StoreID:      req.StoreID,
		WarehouseID:  req.WarehouseID,
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
		BatchNumber:  req.BatchNumber,
		Reason:       TransactionType(req.Reason),
		Reference:    req.Reference,
		Date:         req.Date,
	})
	h.observe("write_off", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movementResponse(res))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.Transfer(r.Context(), TransferInput{
		OwnerID:        identity.OwnerID,
		UserID:         identity.UserID,
		StoreID:        req.StoreID,
		SrcWarehouseID: req.SrcWarehouseID,
		DstWarehouseID: req.DstWarehouseID,
		IngredientID:   req.IngredientID,
		Quantity:       req.Quantity,
		Unit:           req.Unit,
		BatchNumber:    req.BatchNumber,
		Reference:      req.Reference,
		Date:           req.Date,
	})
	h.observe("transfer", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"out": movementResponse(res.Out),
		"in":  movementResponse(res.In),
	})
}

func (h *Handler) handleStockTake(w http.ResponseWriter, r *http.Request) {
	var req stockTakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	res, err := h.service.StockTake(r.Context(), StockTakeInput{
		OwnerID:       identity.OwnerID,
		UserID:        identity.UserID,
		StoreID:       req.StoreID,
		WarehouseID:   req.WarehouseID,
		IngredientID:  req.IngredientID,
		PhysicalCount: req.PhysicalCount,
		BatchNumber:   req.BatchNumber,
		Reference:     req.Reference,
		Date:          req.Date,
	})
	h.observe("take", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	body := map[string]any{
		"balance":             balanceResponse(res.Balance),
		"adjustment_quantity": res.AdjustmentQuantity,
		"adjusted":            res.Transaction != nil,
	}
	if res.Transaction != nil {
		body["transaction"] = transactionResponse(*res.Transaction)
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) handleListBalances(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := BalanceFilter{
		OwnerID:         identity.OwnerID,
		StoreID:         queryInt64(q.Get("store_id")),
		WarehouseID:     queryInt64(q.Get("warehouse_id")),
		IngredientID:    queryInt64(q.Get("ingredient_id")),
		IncludeDepleted: q.Get("include_depleted") == "true",
	}
	balances, err := h.service.ListBalances(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": out})
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid balance id")
		return
	}
	balance, err := h.service.GetBalance(r.Context(), identity.OwnerID, id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse(balance))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := HistoryFilter{
		OwnerID:      identity.OwnerID,
		StoreID:      queryInt64(q.Get("store_id")),
		WarehouseID:  queryInt64(q.Get("warehouse_id")),
		IngredientID: queryInt64(q.Get("ingredient_id")),
		Type:         TransactionType(q.Get("type")),
		BatchNumber:  q.Get("batch_number"),
	}
	if filter.Type != "" && !filter.Type.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown transaction type")
		return
	}
	var err error
	if filter.From, err = queryDate(q.Get("from"), false); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid from date")
		return
	}
	if filter.To, err = queryDate(q.Get("to"), true); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid to date")
		return
	}
	page := int(queryInt64(q.Get("page")))
	limit := int(queryInt64(q.Get("limit")))
	txns, pagination, err := h.service.History(r.Context(), filter, page, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(txns))
	for _, t := range txns {
		out = append(out, transactionResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"pagination": map[string]any{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	items, err := h.service.LowStockReport(r.Context(), h.reportFilter(identity, r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleExpiring(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	days := int(queryInt64(r.URL.Query().Get("days")))
	items, err := h.service.ExpiringReport(r.Context(), h.reportFilter(identity, r), days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleExpired(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	items, err := h.service.ExpiredReport(r.Context(), h.reportFilter(identity, r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	days := int(queryInt64(r.URL.Query().Get("days")))
	summary, err := h.service.SummaryReport(r.Context(), h.reportFilter(identity, r), days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) reportFilter(identity requestIdentity, r *http.Request) ReportFilter {
	q := r.URL.Query()
	return ReportFilter{
		OwnerID:     identity.OwnerID,
		StoreID:     queryInt64(q.Get("store_id")),
		WarehouseID: queryInt64(q.Get("warehouse_id")),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if errors.Is(err, ErrInsufficientStock) {
			result = "insufficient"
		}
	}
	h.metrics.ObserveStockOperation(op, result)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		httpx.ProblemWithExtra(w, http.StatusConflict, "Insufficient Stock", insufficient.Error(), map[string]any{
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidCount),
		errors.Is(err, ErrInvalidCost), errors.Is(err, ErrInvalidType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrBalanceNotFound), errors.Is(err, shared.ErrNotFound),
		errors.Is(err, masterdata.ErrOwnerMismatch):
		// Owner mismatches respond as not found so tenants cannot probe
		// each other's catalogs.
		httpx.Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "stock level changed, retry the operation")
	default:
		h.logger.Error("stock operation failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type requestIdentity struct {
	OwnerID int64
	UserID  int64
}

func identityFrom(w http.ResponseWriter, r *http.Request) (requestIdentity, bool) {
	ownerID := queryInt64(r.Header.Get("X-Owner-ID"))
	userID := queryInt64(r.Header.Get("X-User-ID"))
	if ownerID <= 0 || userID <= 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "owner and user identity headers required")
		return requestIdentity{}, false
	}
	return requestIdentity{OwnerID: ownerID, UserID: userID}, true
}

func queryInt64(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func queryDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func movementResponse(res MovementResult) map[string]any {
	return map[string]any{
		"transaction": transactionResponse(res.Transaction),
		"balance":     balanceResponse(res.Balance),
	}
}

func transactionResponse(t Transaction) map[string]any {
	out := map[string]any{
		"id":            t.ID,
		"type":          t.Type,
		"ingredient_id": t.IngredientID,
		"store_id":      t.StoreID,
		"warehouse_id":  t.WarehouseID,
		"quantity":      t.Quantity,
		"unit":          t.Unit,
		"batch_number":  t.BatchNumber,
		"total_cost":    t.TotalCost,
		"reference":     t.Reference,
		"user_id":       t.UserID,
		"date":          t.Date,
		"created_at":    t.CreatedAt,
	}
	if t.ExpirationDate != nil {
		out["expiration_date"] = t.ExpirationDate
	}
	if t.CostPerUnit.Valid {
		out["cost_per_unit"] = t.CostPerUnit.Decimal
	}
	if t.PreviousQuantity.Valid {
		out["previous_quantity"] = t.PreviousQuantity.Decimal
	}
	if t.NewQuantity.Valid {
		out["new_quantity"] = t.NewQuantity.Decimal
	}
	return out
}

func balanceResponse(b Balance) map[string]any {
	out := map[string]any{
		"id":                  b.ID,
		"ingredient_id":       b.IngredientID,
		"store_id":            b.StoreID,
		"warehouse_id":        b.WarehouseID,
		"batch_number":        b.BatchNumber,
		"quantity":            b.Quantity,
		"cost_per_unit":       b.CostPerUnit,
		"last_transaction_id": b.LastTransactionID,
		"last_transaction_at": b.LastTransactionAt,
		"updated_at":          b.UpdatedAt,
	}
	if b.ExpirationDate != nil {
		out["expiration_date"] = b.ExpirationDate
	}
	if b.MinStock.Valid {
		out["min_stock"] = b.MinStock.Decimal
	}
	if b.MaxStock.Valid {
		out["max_stock"] = b.MaxStock.Decimal
	}
	return out
}
