package approval

import (
	"fmt"
	"sort"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Match walks rules highest priority first and returns the first whose
// conditions all hold for the given facts. Archived and inactive rules never
// match, regardless of priority. Returns nil when no rule applies.
func Match(rules []Rule, facts TransferFacts) *Rule {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	for i := range sorted {
		r := &sorted[i]
		if !r.IsActive || r.IsArchived {
			continue
		}
		if ruleMatches(r, facts) {
			return r
		}
	}
	return nil
}

func ruleMatches(r *Rule, facts TransferFacts) bool {
	for _, c := range r.Conditions {
		if !conditionHolds(c, facts) {
			return false
		}
	}
	return true
}

func conditionHolds(c Condition, facts TransferFacts) bool {
	switch c.Type {
	case ConditionTotalQty:
		return facts.TotalQty >= c.Threshold
	case ConditionTotalValue:
		// Threshold is whole pounds, facts carry pence.
		return facts.TotalValuePence >= c.Threshold*100
	case ConditionSourceBranch:
		return c.BranchID != nil && facts.SourceBranchID == *c.BranchID
	case ConditionDestinationBranch:
		return c.BranchID != nil && facts.DestinationBranchID == *c.BranchID
	case ConditionHighPriority:
		return facts.HighPriority
	default:
		return false
	}
}

// CheckLevelOpen reports whether a level may receive a decision under the
// rule's mode, given the set of already-approved level numbers.
func CheckLevelOpen(rule *Rule, target Level, approved map[int]bool) error {
	switch rule.Mode {
	case ModeParallel:
		return nil
	case ModeSequential:
		return lowerLevelsApproved(rule.Levels, target.Level, approved)
	case ModeHybrid:
		if !target.Gated {
			return nil
		}
		return lowerLevelsApproved(rule.Levels, target.Level, approved)
	default:
		return fmt.Errorf("%w: unknown approval mode %q", shared.ErrValidation, rule.Mode)
	}
}

func lowerLevelsApproved(levels []Level, target int, approved map[int]bool) error {
	for _, lv := range levels {
		if lv.Level < target && !approved[lv.Level] {
			return fmt.Errorf("%w: level %d awaits level %d", shared.ErrConflict, target, lv.Level)
		}
	}
	return nil
}

// ValidateRuleInput enforces structural rules shared by create and update.
func ValidateRuleInput(in RuleInput) error {
	if in.Name == "" {
		return fmt.Errorf("%w: rule name is required", shared.ErrValidation)
	}
	switch in.Mode {
	case ModeSequential, ModeParallel, ModeHybrid:
	default:
		return fmt.Errorf("%w: unknown approval mode %q", shared.ErrValidation, in.Mode)
	}
	if len(in.Levels) == 0 {
		return fmt.Errorf("%w: at least one approval level is required", shared.ErrValidation)
	}
	seen := make(map[int]bool, len(in.Levels))
	for _, lv := range in.Levels {
		if lv.Level < 1 {
			return fmt.Errorf("%w: level numbers start at 1", shared.ErrValidation)
		}
		if seen[lv.Level] {
			return fmt.Errorf("%w: duplicate level %d", shared.ErrValidation, lv.Level)
		}
		seen[lv.Level] = true
		if lv.RequiredRoleID == nil && lv.RequiredUserID == nil {
			return fmt.Errorf("%w: level %d needs a required role or user", shared.ErrValidation, lv.Level)
		}
	}
	for _, c := range in.Conditions {
		switch c.Type {
		case ConditionTotalQty, ConditionTotalValue:
			if c.Threshold <= 0 {
				return fmt.Errorf("%w: %s needs a positive threshold", shared.ErrValidation, c.Type)
			}
		case ConditionSourceBranch, ConditionDestinationBranch:
			if c.BranchID == nil {
				return fmt.Errorf("%w: %s needs a branch", shared.ErrValidation, c.Type)
			}
		case ConditionHighPriority:
		default:
			return fmt.Errorf("%w: unknown condition type %q", shared.ErrValidation, c.Type)
		}
	}
	return nil
}
