package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository persists approval rules and chains in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

func (r *Repository) CreateRule(ctx context.Context, in RuleInput) (*Rule, error) {
	var rule *Rule
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			id        int64
			createdAt time.Time
		)
		err := tx.QueryRow(ctx, `
			INSERT INTO approval_rules (tenant_id, name, is_active, is_archived, mode, priority, entity_version, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, $4, $5, 1, NOW(), NOW())
			RETURNING id, created_at`,
			in.TenantID, in.Name, in.IsActive, in.Mode, in.Priority,
		).Scan(&id, &createdAt)
		if err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
		if err := insertRuleChildren(ctx, tx, id, in); err != nil {
			return err
		}
		loaded, err := getRuleTx(ctx, tx, in.TenantID, id)
		if err != nil {
			return err
		}
		rule = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *Repository) UpdateRule(ctx context.Context, tenantID, ruleID, entityVersion int64, in RuleInput) (*Rule, error) {
	var rule *Rule
	err := db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE approval_rules
			SET name = $1, is_active = $2, mode = $3, priority = $4,
			    entity_version = entity_version + 1, updated_at = NOW()
			WHERE tenant_id = $5 AND id = $6 AND entity_version = $7`,
			in.Name, in.IsActive, in.Mode, in.Priority, tenantID, ruleID, entityVersion)
		if err != nil {
			return fmt.Errorf("update rule: %w", err)
		}
		if ct.RowsAffected() == 0 {
			if _, err := getRuleTx(ctx, tx, tenantID, ruleID); err != nil {
				return err
			}
			return fmt.Errorf("%w: rule %d was modified concurrently", shared.ErrConflict, ruleID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM approval_rule_conditions WHERE rule_id = $1`, ruleID); err != nil {
			return fmt.Errorf("clear conditions: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM approval_rule_levels WHERE rule_id = $1`, ruleID); err != nil {
			return fmt.Errorf("clear levels: %w", err)
		}
		if err := insertRuleChildren(ctx, tx, ruleID, in); err != nil {
			return err
		}
		loaded, err := getRuleTx(ctx, tx, tenantID, ruleID)
		if err != nil {
			return err
		}
		rule = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func insertRuleChildren(ctx context.Context, tx pgx.Tx, ruleID int64, in RuleInput) error {
	for _, c := range in.Conditions {
		_, err := tx.Exec(ctx, `
			INSERT INTO approval_rule_conditions (rule_id, condition_type, threshold, branch_id)
			VALUES ($1, $2, $3, $4)`,
			ruleID, c.Type, c.Threshold, c.BranchID)
		if err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	for _, lv := range in.Levels {
		_, err := tx.Exec(ctx, `
			INSERT INTO approval_rule_levels (rule_id, level, name, required_role_id, required_user_id, gated)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ruleID, lv.Level, lv.Name, lv.RequiredRoleID, lv.RequiredUserID, lv.Gated)
		if err != nil {
			return fmt.Errorf("insert level: %w", err)
		}
	}
	return nil
}

func (r *Repository) SetRuleArchived(ctx context.Context, tenantID, ruleID int64, archived bool) (*Rule, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE approval_rules
		SET is_archived = $1, entity_version = entity_version + 1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3`,
		archived, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("set rule archived: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: approval rule %d", shared.ErrNotFound, ruleID)
	}
	return r.GetRule(ctx, tenantID, ruleID)
}

func (r *Repository) GetRule(ctx context.Context, tenantID, ruleID int64) (*Rule, error) {
	return getRule(ctx, r.pool, tenantID, ruleID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRuleTx(ctx context.Context, tx pgx.Tx, tenantID, ruleID int64) (*Rule, error) {
	return getRule(ctx, tx, tenantID, ruleID)
}

func getRule(ctx context.Context, q queryer, tenantID, ruleID int64) (*Rule, error) {
	var rule Rule
	err := q.QueryRow(ctx, `
		SELECT id, tenant_id, name, is_active, is_archived, mode, priority, entity_version, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, ruleID,
	).Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.IsActive, &rule.IsArchived,
		&rule.Mode, &rule.Priority, &rule.EntityVersion, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: approval rule %d", shared.ErrNotFound, ruleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	if err := loadChildren(ctx, q, []*Rule{&rule}); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *Repository) ListRules(ctx context.Context, tenantID int64, includeArchived bool) ([]Rule, error) {
	query := `
		SELECT id, tenant_id, name, is_active, is_archived, mode, priority, entity_version, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1`
	if !includeArchived {
		query += ` AND is_archived = FALSE`
	}
	query += ` ORDER BY priority DESC, id ASC`
	return r.listRules(ctx, query, tenantID)
}

func (r *Repository) ListActiveRules(ctx context.Context, tenantID int64) ([]Rule, error) {
	return r.listRules(ctx, `
		SELECT id, tenant_id, name, is_active, is_archived, mode, priority, entity_version, created_at, updated_at
		FROM approval_rules
		WHERE tenant_id = $1 AND is_active = TRUE AND is_archived = FALSE
		ORDER BY priority DESC, id ASC`, tenantID)
}

func (r *Repository) listRules(ctx context.Context, query string, tenantID int64) ([]Rule, error) {
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.IsActive, &rule.IsArchived,
			&rule.Mode, &rule.Priority, &rule.EntityVersion, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*Rule, len(rules))
	for i := range rules {
		refs[i] = &rules[i]
	}
	if err := loadChildren(ctx, r.pool, refs); err != nil {
		return nil, err
	}
	return rules, nil
}

func loadChildren(ctx context.Context, q queryer, rules []*Rule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]int64, len(rules))
	byID := make(map[int64]*Rule, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
		byID[r.ID] = r
	}

	rows, err := q.Query(ctx, `
		SELECT id, rule_id, condition_type, threshold, branch_id
		FROM approval_rule_conditions
		WHERE rule_id = ANY($1)
		ORDER BY id ASC`, ids)
	if err != nil {
		return fmt.Errorf("load conditions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.RuleID, &c.Type, &c.Threshold, &c.BranchID); err != nil {
			return fmt.Errorf("scan condition: %w", err)
		}
		byID[c.RuleID].Conditions = append(byID[c.RuleID].Conditions, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	lvRows, err := q.Query(ctx, `
		SELECT id, rule_id, level, name, required_role_id, required_user_id, gated
		FROM approval_rule_levels
		WHERE rule_id = ANY($1)
		ORDER BY level ASC`, ids)
	if err != nil {
		return fmt.Errorf("load levels: %w", err)
	}
	defer lvRows.Close()
	for lvRows.Next() {
		var lv Level
		if err := lvRows.Scan(&lv.ID, &lv.RuleID, &lv.Level, &lv.Name, &lv.RequiredRoleID, &lv.RequiredUserID, &lv.Gated); err != nil {
			return fmt.Errorf("scan level: %w", err)
		}
		byID[lv.RuleID].Levels = append(byID[lv.RuleID].Levels, lv)
	}
	return lvRows.Err()
}

func (r *Repository) InsertChain(ctx context.Context, tenantID, transferID, ruleID int64, levels []Level) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		return InsertChainTx(ctx, tx, tenantID, transferID, ruleID, levels)
	})
}

// InsertChainTx writes one PENDING chain row per rule level using the
// caller's executor, so a transfer and its chain can commit together.
func InsertChainTx(ctx context.Context, db shared.DBTX, tenantID, transferID, ruleID int64, levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: approval rule %d has no levels", shared.ErrValidation, ruleID)
	}
	for _, lv := range levels {
		_, err := db.Exec(ctx, `
			INSERT INTO transfer_approvals (tenant_id, transfer_id, rule_id, level, status, note)
			VALUES ($1, $2, $3, $4, $5, '')`,
			tenantID, transferID, ruleID, lv.Level, LevelPending)
		if err != nil {
			return fmt.Errorf("insert chain entry: %w", err)
		}
	}
	return nil
}

func (r *Repository) GetChain(ctx context.Context, tenantID, transferID int64) ([]ChainEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, transfer_id, rule_id, level, status, acted_by, acted_at, note
		FROM transfer_approvals
		WHERE tenant_id = $1 AND transfer_id = $2
		ORDER BY level ASC`,
		tenantID, transferID)
	if err != nil {
		return nil, fmt.Errorf("get chain: %w", err)
	}
	defer rows.Close()

	var entries []ChainEntry
	for rows.Next() {
		var e ChainEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TransferID, &e.RuleID, &e.Level,
			&e.Status, &e.ActedBy, &e.ActedAt, &e.Note); err != nil {
			return nil, fmt.Errorf("scan chain entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *Repository) RecordDecision(ctx context.Context, entryID int64, status LevelStatus, actorUserID int64, note string, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE transfer_approvals
		SET status = $1, acted_by = $2, acted_at = $3, note = $4
		WHERE id = $5 AND status = $6`,
		status, actorUserID, at, note, entryID, LevelPending)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: approval level already decided", shared.ErrConflict)
	}
	return nil
}
