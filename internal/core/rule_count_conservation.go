package core

import (
	"context"
	"fmt"

	"raizcore/pkg/domain"
)

// NewCountConservationRule enforces the plant count ledger on every mutated
// lot: initial = current + harvested + mortality + split-off, with every term
// non-negative. The rule runs over the mutated snapshot before commit, so a
// transaction that would break the ledger never becomes visible.
func NewCountConservationRule() domain.Rule {
	return countConservationRule{}
}

type countConservationRule struct{}

func (countConservationRule) Name() string { return "count_conservation" }

func (countConservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityLot || change.After == nil {
			continue
		}
		lot, ok := change.After.(domain.Lot)
		if !ok {
			continue
		}
		checkLotLedger(&res, lot)
	}
	return res, nil
}

func checkLotLedger(res *domain.Result, lot domain.Lot) {
	if lot.InitialCount <= 0 {
		appendLedgerViolation(res, lot.ID, fmt.Sprintf("lot %s has non-positive initial count %d", lot.Code, lot.InitialCount))
	}
	terms := []struct {
		label string
		n     int
	}{
		{"current", lot.CurrentCount},
		{"harvested", lot.TotalHarvested},
		{"mortality", lot.TotalMortality},
		{"split", lot.TotalSplitOff},
	}
	for _, term := range terms {
		if term.n < 0 {
			appendLedgerViolation(res, lot.ID, fmt.Sprintf("lot %s has negative %s count %d", lot.Code, term.label, term.n))
		}
	}
	accounted := lot.CurrentCount + lot.TotalHarvested + lot.TotalMortality + lot.TotalSplitOff
	if accounted != lot.InitialCount {
		appendLedgerViolation(res, lot.ID, fmt.Sprintf(
			"lot %s counts do not reconcile: initial %d, accounted %d (current %d + harvested %d + mortality %d + split %d)",
			lot.Code, lot.InitialCount, accounted, lot.CurrentCount, lot.TotalHarvested, lot.TotalMortality, lot.TotalSplitOff))
	}
}

func appendLedgerViolation(res *domain.Result, entityID, message string) {
	res.Violations = append(res.Violations, domain.Violation{
		Rule:     "count_conservation",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityLot,
		EntityID: entityID,
	})
}
