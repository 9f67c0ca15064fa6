package approval

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for approval rule administration.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers approval rule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rules", h.handleListRules)
	r.Post("/rules", h.handleCreateRule)
	r.Get("/rules/{ruleID}", h.handleGetRule)
	r.Put("/rules/{ruleID}", h.handleUpdateRule)
	r.Post("/rules/{ruleID}/archive", h.handleArchiveRule)
	r.Post("/rules/{ruleID}/restore", h.handleRestoreRule)
}

type conditionRequest struct {
	Type      string `json:"type" validate:"required"`
	Threshold int64  `json:"threshold"`
	BranchID  *int64 `json:"branchId"`
}

type levelRequest struct {
	Level          int    `json:"level" validate:"required,gte=1"`
	Name           string `json:"name" validate:"required"`
	RequiredRoleID *int64 `json:"requiredRoleId"`
	RequiredUserID *int64 `json:"requiredUserId"`
	Gated          bool   `json:"gated"`
}

type ruleRequest struct {
	Name          string             `json:"name" validate:"required"`
	IsActive      bool               `json:"isActive"`
	Mode          string             `json:"mode" validate:"required,oneof=SEQUENTIAL PARALLEL HYBRID"`
	Priority      int                `json:"priority"`
	EntityVersion int64              `json:"entityVersion"`
	Conditions    []conditionRequest `json:"conditions" validate:"dive"`
	Levels        []levelRequest     `json:"levels" validate:"required,min=1,dive"`
}

func (req ruleRequest) toInput(tenantID int64) RuleInput {
	in := RuleInput{
		TenantID: tenantID,
		Name:     req.Name,
		IsActive: req.IsActive,
		Mode:     Mode(req.Mode),
		Priority: req.Priority,
	}
	for _, c := range req.Conditions {
		in.Conditions = append(in.Conditions, ConditionInput{
			Type:      ConditionType(c.Type),
			Threshold: c.Threshold,
			BranchID:  c.BranchID,
		})
	}
	for _, lv := range req.Levels {
		in.Levels = append(in.Levels, LevelInput{
			Level:          lv.Level,
			Name:           lv.Name,
			RequiredRoleID: lv.RequiredRoleID,
			RequiredUserID: lv.RequiredUserID,
			Gated:          lv.Gated,
		})
	}
	return in
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.service.CreateRule(r.Context(), req.toInput(actor.TenantID))
	if err != nil {
		h.logger.Error("create approval rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ruleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.service.UpdateRule(r.Context(), ruleID, req.EntityVersion, req.toInput(actor.TenantID))
	if err != nil {
		h.logger.Error("update approval rule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rule, err := h.service.GetRule(r.Context(), actor.TenantID, ruleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	includeArchived := r.URL.Query().Get("includeArchived") == "true"
	rules, err := h.service.ListRules(r.Context(), actor.TenantID, includeArchived)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (h *Handler) handleArchiveRule(w http.ResponseWriter, r *http.Request) {
	h.handleSetArchived(w, r, true)
}

func (h *Handler) handleRestoreRule(w http.ResponseWriter, r *http.Request) {
	h.handleSetArchived(w, r, false)
}

func (h *Handler) handleSetArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var rule *Rule
	if archived {
		rule, err = h.service.ArchiveRule(r.Context(), actor.TenantID, ruleID)
	} else {
		rule, err = h.service.RestoreRule(r.Context(), actor.TenantID, ruleID)
	}
	if err != nil {
		h.logger.Error("set rule archived", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.ErrValidation
	}
	return id, nil
}
