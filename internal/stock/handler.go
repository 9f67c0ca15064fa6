package stock

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/consumptions", h.handleConsume)
	r.Post("/adjustments", h.handleAdjust)
	r.Post("/restores", h.handleRestore)
	r.Get("/lots", h.handleListLots)
	r.Get("/ledger", h.handleListLedger)
	r.Get("/levels", h.handleGetLevel)
	r.Get("/overview", h.handleOverview)
	r.Get("/valuation", h.handleValuation)
}

type receiveRequest struct {
	BranchID      int64  `json:"branchId" validate:"required"`
	ProductID     int64  `json:"productId" validate:"required"`
	Qty           int64  `json:"qty" validate:"required,gt=0"`
	UnitCostPence int64  `json:"unitCostPence" validate:"gte=0"`
	OccurredAt    string `json:"occurredAt"`
	Reason        string `json:"reason"`
}

type consumeRequest struct {
	BranchID  int64  `json:"branchId" validate:"required"`
	ProductID int64  `json:"productId" validate:"required"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required"`
}

type adjustRequest struct {
	BranchID      int64  `json:"branchId" validate:"required"`
	ProductID     int64  `json:"productId" validate:"required"`
	QtyDelta      int64  `json:"qtyDelta" validate:"required"`
	UnitCostPence int64  `json:"unitCostPence" validate:"gte=0"`
	Reason        string `json:"reason" validate:"required"`
}

type restoreRequest struct {
	BranchID int64 `json:"branchId" validate:"required"`
	Lots     []struct {
		LotID int64 `json:"lotId" validate:"required"`
		Qty   int64 `json:"qty" validate:"required,gt=0"`
	} `json:"lots" validate:"required,min=1,dive"`
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var occurredAt time.Time
	if req.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurredAt must be RFC3339")
			return
		}
		occurredAt = parsed
	}
	lot, err := h.service.ReceiveStock(r.Context(), ReceiveInput{
		TenantID:       actor.TenantID,
		BranchID:       req.BranchID,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		UnitCostPence:  req.UnitCostPence,
		OccurredAt:     occurredAt,
		Reason:         req.Reason,
		ActorUserID:    actor.UserID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("receive stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	affected, err := h.service.ConsumeStock(r.Context(), ConsumeInput{
		TenantID:       actor.TenantID,
		BranchID:       req.BranchID,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		Reason:         req.Reason,
		ActorUserID:    actor.UserID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("consume stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"affected": affected})
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	affected, err := h.service.AdjustStock(r.Context(), AdjustInput{
		TenantID:       actor.TenantID,
		BranchID:       req.BranchID,
		ProductID:      req.ProductID,
		QtyDelta:       req.QtyDelta,
		UnitCostPence:  req.UnitCostPence,
		Reason:         req.Reason,
		ActorUserID:    actor.UserID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.logger.Error("adjust stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"affected": affected})
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req restoreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lots := make([]LotRestore, 0, len(req.Lots))
	for _, l := range req.Lots {
		lots = append(lots, LotRestore{LotID: l.LotID, Qty: l.Qty})
	}
	err := h.service.RestoreLotQuantities(r.Context(), RestoreInput{
		TenantID:    actor.TenantID,
		BranchID:    req.BranchID,
		Lots:        lots,
		Reason:      req.Reason,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		h.logger.Error("restore lots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	filter := LotFilter{
		TenantID:  actor.TenantID,
		BranchID:  queryInt64(r, "branch_id"),
		ProductID: queryInt64(r, "product_id"),
		OpenOnly:  r.URL.Query().Get("open_only") == "true",
	}
	lots, err := h.service.ListLots(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) handleListLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	filter := LedgerFilter{
		TenantID:  actor.TenantID,
		BranchID:  queryInt64(r, "branch_id"),
		ProductID: queryInt64(r, "product_id"),
		Kind:      LedgerKind(r.URL.Query().Get("kind")),
	}
	entries, err := h.service.ListLedger(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	level, err := h.service.GetProductStock(r.Context(), actor.TenantID, queryInt64(r, "branch_id"), queryInt64(r, "product_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

// handleOverview loads level, lots and recent ledger in parallel.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	branchID := queryInt64(r, "branch_id")
	productID := queryInt64(r, "product_id")

	var (
		level   ProductStock
		lots    []StockLot
		entries []LedgerEntry
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		level, err = h.service.GetProductStock(ctx, actor.TenantID, branchID, productID)
		return err
	})
	g.Go(func() error {
		var err error
		lots, err = h.service.ListLots(ctx, LotFilter{TenantID: actor.TenantID, BranchID: branchID, ProductID: productID, OpenOnly: true})
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = h.service.ListLedger(ctx, LedgerFilter{TenantID: actor.TenantID, BranchID: branchID, ProductID: productID, Limit: 50})
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("load stock overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"level": level, "lots": lots, "ledger": entries})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	rows, err := h.service.Valuation(r.Context(), actor.TenantID, queryInt64(r, "branch_id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}
