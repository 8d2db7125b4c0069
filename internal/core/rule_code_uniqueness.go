package core

import (
	"context"
	"fmt"

	"raizcore/pkg/domain"
)

// NewCodeUniquenessRule enforces that no two active lots carry the same code.
// Closed lots keep their code forever but drop out of the uniqueness check,
// which is what lets a freed sequence number be reissued in a later cohort.
func NewCodeUniquenessRule() domain.Rule {
	return codeUniquenessRule{}
}

type codeUniquenessRule struct{}

func (codeUniquenessRule) Name() string { return "code_uniqueness" }

func (codeUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]string)
	for _, lot := range view.ListLots() {
		if lot.State != domain.LotStateActive {
			continue
		}
		if lot.Code == "" {
			res.Violations = append(res.Violations, codeViolation(lot.ID, fmt.Sprintf("active lot %s has no code", lot.ID)))
			continue
		}
		if otherID, dup := seen[lot.Code]; dup {
			res.Violations = append(res.Violations, codeViolation(lot.ID, fmt.Sprintf("code %s is carried by active lots %s and %s", lot.Code, otherID, lot.ID)))
			continue
		}
		seen[lot.Code] = lot.ID
	}
	return res, nil
}

func codeViolation(entityID, message string) domain.Violation {
	return domain.Violation{
		Rule:     "code_uniqueness",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityLot,
		EntityID: entityID,
	}
}
