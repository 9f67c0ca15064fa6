package approval

import "time"

// Mode determines how levels of a rule must be satisfied.
type Mode string

const (
	// ModeSequential requires level N-1 satisfied before level N may submit.
	ModeSequential Mode = "SEQUENTIAL"
	// ModeParallel allows levels to submit in any order; all must be satisfied.
	ModeParallel Mode = "PARALLEL"
	// ModeHybrid applies per-level ordering flags: gated levels wait for all
	// lower levels, free levels may submit at any time.
	ModeHybrid Mode = "HYBRID"
)

// ConditionType enumerates supported rule conditions.
type ConditionType string

const (
	// ConditionTotalQty matches when the summed requested quantity reaches the threshold.
	ConditionTotalQty ConditionType = "TOTAL_QTY_THRESHOLD"
	// ConditionTotalValue matches when requested quantity times unit price
	// reaches the threshold, expressed in whole pounds.
	ConditionTotalValue ConditionType = "TOTAL_VALUE_THRESHOLD"
	// ConditionSourceBranch matches transfers leaving a specific branch.
	ConditionSourceBranch ConditionType = "SOURCE_BRANCH"
	// ConditionDestinationBranch matches transfers entering a specific branch.
	ConditionDestinationBranch ConditionType = "DESTINATION_BRANCH"
	// ConditionHighPriority matches transfers flagged high priority.
	ConditionHighPriority ConditionType = "HIGH_PRIORITY"
)

// Condition is one predicate of a rule. All conditions of a rule combine as AND.
type Condition struct {
	ID       int64
	RuleID   int64
	Type     ConditionType
	Threshold int64
	BranchID *int64
}

// Level is one required sign-off step, authorised by role or specific user.
type Level struct {
	ID             int64
	RuleID         int64
	Level          int
	Name           string
	RequiredRoleID *int64
	RequiredUserID *int64
	// Gated only applies under ModeHybrid: a gated level waits for every
	// lower level before it may submit.
	Gated bool
}

// Rule is a tenant-scoped approval rule. Archival is reversible and excludes
// the rule from evaluation without deleting it.
type Rule struct {
	ID            int64
	TenantID      int64
	Name          string
	IsActive      bool
	IsArchived    bool
	Mode          Mode
	Priority      int
	EntityVersion int64
	Conditions    []Condition
	Levels        []Level
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TransferFacts summarises a transfer for condition evaluation.
type TransferFacts struct {
	SourceBranchID      int64
	DestinationBranchID int64
	TotalQty            int64
	TotalValuePence     int64
	HighPriority        bool
}

// LevelStatus enumerates chain entry states.
type LevelStatus string

const (
	LevelPending  LevelStatus = "PENDING"
	LevelApproved LevelStatus = "APPROVED"
	LevelRejected LevelStatus = "REJECTED"
)

// ChainEntry is one level of a running approval chain for a transfer.
type ChainEntry struct {
	ID         int64
	TenantID   int64
	TransferID int64
	RuleID     int64
	Level      int
	Status     LevelStatus
	ActedBy    *int64
	ActedAt    *time.Time
	Note       string
}

// ChainState summarises chain progress after a submission.
type ChainState struct {
	Complete bool
	Rejected bool
}

// SubmitInput carries one level decision.
type SubmitInput struct {
	TenantID    int64
	TransferID  int64
	Level       int
	Approve     bool
	Note        string
	ActorUserID int64
}

// RuleInput describes rule creation or update.
type RuleInput struct {
	TenantID   int64
	Name       string
	IsActive   bool
	Mode       Mode
	Priority   int
	Conditions []ConditionInput
	Levels     []LevelInput
}

// ConditionInput describes one condition of a rule.
type ConditionInput struct {
	Type      ConditionType
	Threshold int64
	BranchID  *int64
}

// LevelInput describes one level of a rule.
type LevelInput struct {
	Level          int
	Name           string
	RequiredRoleID *int64
	RequiredUserID *int64
	Gated          bool
}
