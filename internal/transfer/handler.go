package transfer

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the transfer module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{transferID}", h.handleGet)
	r.Post("/{transferID}/review", h.handleReview)
	r.Post("/{transferID}/approvals", h.handleSubmitApproval)
	r.Post("/{transferID}/ship", h.handleShip)
	r.Post("/{transferID}/receive", h.handleReceive)
	r.Post("/{transferID}/cancel", h.handleCancel)
	r.Post("/{transferID}/reverse", h.handleReverse)
}

type transferResponse struct {
	Transfer *StockTransfer `json:"transfer"`
	Items    []TransferItem `json:"items,omitempty"`
}

type createRequest struct {
	InitiationType      string `json:"initiationType" validate:"required,oneof=PUSH PULL"`
	SourceBranchID      int64  `json:"sourceBranchId" validate:"required"`
	DestinationBranchID int64  `json:"destinationBranchId" validate:"required"`
	Items               []struct {
		ProductID    int64 `json:"productId" validate:"required"`
		QtyRequested int64 `json:"qtyRequested" validate:"required,gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	Note         string `json:"note"`
	HighPriority bool   `json:"highPriority"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		TenantID:            actor.TenantID,
		InitiationType:      InitiationType(req.InitiationType),
		SourceBranchID:      req.SourceBranchID,
		DestinationBranchID: req.DestinationBranchID,
		Note:                req.Note,
		HighPriority:        req.HighPriority,
		ActorUserID:         actor.UserID,
		CorrelationID:       correlationID(r),
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemInput{ProductID: item.ProductID, QtyRequested: item.QtyRequested})
	}
	t, items, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{Transfer: t, Items: items})
}

type reviewRequest struct {
	Action      string          `json:"action" validate:"required,oneof=approve reject"`
	QtyApproved map[int64]int64 `json:"qtyApproved"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.Review(r.Context(), ReviewInput{
		TransferID:  transferID,
		TenantID:    actor.TenantID,
		Action:      ReviewAction(req.Action),
		QtyApproved: req.QtyApproved,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		h.logger.Error("review transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t})
}

type submitApprovalRequest struct {
	Level   int    `json:"level" validate:"required,gte=1"`
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note"`
}

func (h *Handler) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req submitApprovalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	t, err := h.service.SubmitApproval(r.Context(), SubmitApprovalInput{
		TransferID:  transferID,
		TenantID:    actor.TenantID,
		Level:       req.Level,
		Approve:     *req.Approve,
		Note:        req.Note,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		h.logger.Error("submit transfer approval", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t})
}

type shipRequest struct {
	Items []struct {
		ItemID    int64 `json:"itemId" validate:"required"`
		QtyToShip int64 `json:"qtyToShip" validate:"required,gt=0"`
	} `json:"items" validate:"dive"`
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req shipRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := ShipInput{TransferID: transferID, TenantID: actor.TenantID, ActorUserID: actor.UserID}
	for _, item := range req.Items {
		in.Items = append(in.Items, ShipItemInput{ItemID: item.ItemID, QtyToShip: item.QtyToShip})
	}
	t, items, err := h.service.Ship(r.Context(), in)
	if err != nil {
		h.logger.Error("ship transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t, Items: items})
}

type receiveRequest struct {
	Items []struct {
		ItemID      int64 `json:"itemId" validate:"required"`
		QtyReceived int64 `json:"qtyReceived" validate:"required,gt=0"`
	} `json:"items" validate:"dive"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := ReceiveInput{TransferID: transferID, TenantID: actor.TenantID, ActorUserID: actor.UserID}
	for _, item := range req.Items {
		in.Items = append(in.Items, ReceiveItemInput{ItemID: item.ItemID, QtyReceived: item.QtyReceived})
	}
	t, items, err := h.service.Receive(r.Context(), in)
	if err != nil {
		h.logger.Error("receive transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t, Items: items})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	t, err := h.service.Cancel(r.Context(), CancelInput{
		TransferID:  transferID,
		TenantID:    actor.TenantID,
		Reason:      req.Reason,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		h.logger.Error("cancel transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t})
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	rev, err := h.service.Reverse(r.Context(), ReverseInput{
		TransferID:  transferID,
		TenantID:    actor.TenantID,
		Reason:      req.Reason,
		ActorUserID: actor.UserID,
	})
	if err != nil {
		h.logger.Error("reverse transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{Transfer: rev})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, transferID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	t, items, err := h.service.Get(r.Context(), actor.TenantID, transferID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transferResponse{Transfer: t, Items: items})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	q := r.URL.Query()
	branchID, _ := strconv.ParseInt(q.Get("branchId"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	transfers, err := h.service.List(r.Context(), ListFilter{
		TenantID: actor.TenantID,
		BranchID: branchID,
		Status:   Status(q.Get("status")),
		Limit:    limit,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "transferID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transfer id must be a positive integer")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}

// correlationID reuses the inbound request id when present so transfer audit
// rows line up with gateway logs, and mints one otherwise.
func correlationID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
