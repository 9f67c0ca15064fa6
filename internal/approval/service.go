package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort is the persistence surface the approval service needs.
type RepositoryPort interface {
	CreateRule(ctx context.Context, in RuleInput) (*Rule, error)
	UpdateRule(ctx context.Context, tenantID, ruleID, entityVersion int64, in RuleInput) (*Rule, error)
	SetRuleArchived(ctx context.Context, tenantID, ruleID int64, archived bool) (*Rule, error)
	GetRule(ctx context.Context, tenantID, ruleID int64) (*Rule, error)
	ListRules(ctx context.Context, tenantID int64, includeArchived bool) ([]Rule, error)
	ListActiveRules(ctx context.Context, tenantID int64) ([]Rule, error)

	InsertChain(ctx context.Context, tenantID, transferID, ruleID int64, levels []Level) error
	GetChain(ctx context.Context, tenantID, transferID int64) ([]ChainEntry, error)
	RecordDecision(ctx context.Context, entryID int64, status LevelStatus, actorUserID int64, note string, at time.Time) error
}

// RolePort answers whether a user holds a role within a tenant.
type RolePort interface {
	HasRole(ctx context.Context, tenantID, userID, roleID int64) (bool, error)
}

// Service evaluates rules against transfers and drives approval chains.
type Service struct {
	repo   RepositoryPort
	roles  RolePort
	audit  shared.DBTX
	logger *slog.Logger
}

func NewService(repo RepositoryPort, roles RolePort, audit shared.DBTX, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

// CreateRule stores a new rule after structural validation.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*Rule, error) {
	if err := ValidateRuleInput(in); err != nil {
		return nil, err
	}
	rule, err := s.repo.CreateRule(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create approval rule: %w", err)
	}
	s.writeAudit(ctx, in.TenantID, "APPROVAL_RULE", rule.ID, "RULE_CREATE", nil, rule)
	return rule, nil
}

// UpdateRule replaces a rule's definition. The caller must present the
// entityVersion it last read; a stale version fails with a conflict.
func (s *Service) UpdateRule(ctx context.Context, ruleID, entityVersion int64, in RuleInput) (*Rule, error) {
	if err := ValidateRuleInput(in); err != nil {
		return nil, err
	}
	before, err := s.repo.GetRule(ctx, in.TenantID, ruleID)
	if err != nil {
		return nil, err
	}
	rule, err := s.repo.UpdateRule(ctx, in.TenantID, ruleID, entityVersion, in)
	if err != nil {
		return nil, err
	}
	s.writeAudit(ctx, in.TenantID, "APPROVAL_RULE", rule.ID, "RULE_UPDATE", before, rule)
	return rule, nil
}

// ArchiveRule removes a rule from evaluation without deleting it.
func (s *Service) ArchiveRule(ctx context.Context, tenantID, ruleID int64) (*Rule, error) {
	rule, err := s.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.IsArchived {
		return nil, fmt.Errorf("%w: rule %d is already archived", shared.ErrConflict, ruleID)
	}
	updated, err := s.repo.SetRuleArchived(ctx, tenantID, ruleID, true)
	if err != nil {
		return nil, err
	}
	s.writeAudit(ctx, tenantID, "APPROVAL_RULE", ruleID, "RULE_ARCHIVE", rule, updated)
	return updated, nil
}

// RestoreRule returns an archived rule to evaluation.
func (s *Service) RestoreRule(ctx context.Context, tenantID, ruleID int64) (*Rule, error) {
	rule, err := s.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsArchived {
		return nil, fmt.Errorf("%w: rule %d is not archived", shared.ErrConflict, ruleID)
	}
	updated, err := s.repo.SetRuleArchived(ctx, tenantID, ruleID, false)
	if err != nil {
		return nil, err
	}
	s.writeAudit(ctx, tenantID, "APPROVAL_RULE", ruleID, "RULE_RESTORE", rule, updated)
	return updated, nil
}

func (s *Service) GetRule(ctx context.Context, tenantID, ruleID int64) (*Rule, error) {
	return s.repo.GetRule(ctx, tenantID, ruleID)
}

func (s *Service) ListRules(ctx context.Context, tenantID int64, includeArchived bool) ([]Rule, error) {
	return s.repo.ListRules(ctx, tenantID, includeArchived)
}

// EvaluateForTransfer finds the highest-priority matching rule, if any.
func (s *Service) EvaluateForTransfer(ctx context.Context, tenantID int64, facts TransferFacts) (*Rule, error) {
	rules, err := s.repo.ListActiveRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list approval rules: %w", err)
	}
	return Match(rules, facts), nil
}

// BeginChain creates one pending entry per level of the matched rule.
func (s *Service) BeginChain(ctx context.Context, tenantID, transferID, ruleID int64) error {
	rule, err := s.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		return err
	}
	if err := s.repo.InsertChain(ctx, tenantID, transferID, ruleID, rule.Levels); err != nil {
		return fmt.Errorf("begin approval chain: %w", err)
	}
	s.logger.InfoContext(ctx, "approval chain started",
		"tenantID", tenantID, "transferID", transferID, "ruleID", ruleID, "levels", len(rule.Levels))
	return nil
}

// GetChain returns chain entries for a transfer, lowest level first.
func (s *Service) GetChain(ctx context.Context, tenantID, transferID int64) ([]ChainEntry, error) {
	entries, err := s.repo.GetChain(ctx, tenantID, transferID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no approval chain for transfer %d", shared.ErrNotFound, transferID)
	}
	return entries, nil
}

// SubmitLevel records one level decision and reports chain progress.
// A repeat of an identical decision is a no-op; flipping a decided level
// fails with a conflict.
func (s *Service) SubmitLevel(ctx context.Context, in SubmitInput) (ChainState, error) {
	entries, err := s.GetChain(ctx, in.TenantID, in.TransferID)
	if err != nil {
		return ChainState{}, err
	}
	rule, err := s.repo.GetRule(ctx, in.TenantID, entries[0].RuleID)
	if err != nil {
		return ChainState{}, err
	}

	var entry *ChainEntry
	approved := make(map[int]bool, len(entries))
	for i := range entries {
		if entries[i].Status == LevelApproved {
			approved[entries[i].Level] = true
		}
		if entries[i].Level == in.Level {
			entry = &entries[i]
		}
	}
	if entry == nil {
		return ChainState{}, fmt.Errorf("%w: level %d is not part of this chain", shared.ErrNotFound, in.Level)
	}

	var levelDef *Level
	for i := range rule.Levels {
		if rule.Levels[i].Level == in.Level {
			levelDef = &rule.Levels[i]
		}
	}
	if levelDef == nil {
		return ChainState{}, fmt.Errorf("%w: level %d missing from rule %d", shared.ErrNotFound, in.Level, rule.ID)
	}

	if err := s.authoriseLevel(ctx, in.TenantID, in.ActorUserID, levelDef); err != nil {
		return ChainState{}, err
	}

	if entry.Status != LevelPending {
		same := (entry.Status == LevelApproved && in.Approve) || (entry.Status == LevelRejected && !in.Approve)
		if same {
			return chainState(entries), nil
		}
		return ChainState{}, fmt.Errorf("%w: level %d already decided as %s", shared.ErrConflict, in.Level, entry.Status)
	}

	if in.Approve {
		if err := CheckLevelOpen(rule, *levelDef, approved); err != nil {
			return ChainState{}, err
		}
	}

	status := LevelApproved
	if !in.Approve {
		status = LevelRejected
	}
	now := time.Now().UTC()
	if err := s.repo.RecordDecision(ctx, entry.ID, status, in.ActorUserID, in.Note, now); err != nil {
		return ChainState{}, fmt.Errorf("record approval decision: %w", err)
	}
	entry.Status = status
	entry.ActedBy = &in.ActorUserID
	entry.ActedAt = &now

	s.writeAudit(ctx, in.TenantID, "TRANSFER_APPROVAL", in.TransferID, "APPROVAL_"+string(status),
		nil, map[string]any{"level": in.Level, "actedBy": in.ActorUserID, "note": in.Note})

	return chainState(entries), nil
}

func (s *Service) authoriseLevel(ctx context.Context, tenantID, userID int64, lv *Level) error {
	if lv.RequiredUserID != nil && *lv.RequiredUserID == userID {
		return nil
	}
	if lv.RequiredRoleID != nil {
		ok, err := s.roles.HasRole(ctx, tenantID, userID, *lv.RequiredRoleID)
		if err != nil {
			return fmt.Errorf("check role: %w", err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: user %d may not act on level %d", shared.ErrForbidden, userID, lv.Level)
}

func chainState(entries []ChainEntry) ChainState {
	st := ChainState{Complete: true}
	for _, e := range entries {
		switch e.Status {
		case LevelRejected:
			st.Rejected = true
			st.Complete = false
		case LevelPending:
			st.Complete = false
		}
	}
	if st.Rejected {
		st.Complete = false
	}
	return st
}

func (s *Service) writeAudit(ctx context.Context, tenantID int64, entityType string, entityID int64, action string, before, after any) {
	ev := shared.AuditEvent{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   fmt.Sprintf("%d", entityID),
		Action:     action,
		Before:     before,
		After:      after,
		At:         time.Now().UTC(),
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		ev.ActorUserID = actor.UserID
	}
	if err := shared.WriteAuditEvent(ctx, s.audit, ev); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", "action", action, "error", err)
	}
}
