package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipChecker resolves whether a user belongs to a branch. Transfer
// create and review re-validate membership here even though permission checks
// already ran upstream, so direct service calls cannot bypass direction rules.
type MembershipChecker struct {
	pool *pgxpool.Pool
}

// NewMembershipChecker constructs MembershipChecker.
func NewMembershipChecker(pool *pgxpool.Pool) *MembershipChecker {
	return &MembershipChecker{pool: pool}
}

// IsMember reports whether the user is an active member of the branch.
func (m *MembershipChecker) IsMember(ctx context.Context, tenantID, branchID, userID int64) (bool, error) {
	if m == nil {
		return false, errors.New("membership checker not initialised")
	}
	var exists bool
	err := m.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM branch_members WHERE tenant_id=$1 AND branch_id=$2 AND user_id=$3 AND removed_at IS NULL)`,
		tenantID, branchID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("shared: check membership: %w", err)
	}
	return exists, nil
}

// RoleChecker resolves role assignments for approval level authorisation.
type RoleChecker struct {
	pool *pgxpool.Pool
}

// NewRoleChecker constructs RoleChecker.
func NewRoleChecker(pool *pgxpool.Pool) *RoleChecker {
	return &RoleChecker{pool: pool}
}

// HasRole reports whether the user holds the given role.
func (r *RoleChecker) HasRole(ctx context.Context, tenantID, userID, roleID int64) (bool, error) {
	if r == nil {
		return false, errors.New("role checker not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM user_roles WHERE tenant_id=$1 AND user_id=$2 AND role_id=$3)`,
		tenantID, userID, roleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("shared: check role: %w", err)
	}
	return exists, nil
}
