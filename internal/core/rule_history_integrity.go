package core

import (
	"context"
	"fmt"

	"raizcore/pkg/domain"
)

// NewHistoryIntegrityRule enforces structural invariants on lot history
// trails: an active lot has exactly one open stay, a closed lot has none,
// stays are chronologically ordered, and sub-lot origin references resolve.
func NewHistoryIntegrityRule() domain.Rule {
	return historyIntegrityRule{}
}

type historyIntegrityRule struct{}

func (historyIntegrityRule) Name() string { return "history_integrity" }

func (historyIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, lot := range view.ListLots() {
		checkHistory(&res, lot, view)
	}
	return res, nil
}

func checkHistory(res *domain.Result, lot domain.Lot, view domain.RuleView) {
	if len(lot.History) == 0 {
		appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s has no history trail", lot.Code))
		return
	}

	open := 0
	for i, stay := range lot.History {
		if !stay.Subsystem.Valid() {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s history entry %d names unknown subsystem %q", lot.Code, i, stay.Subsystem))
		}
		if stay.Open() {
			open++
			if i != len(lot.History)-1 {
				appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s has an open stay at position %d before the end of the trail", lot.Code, i))
			}
		} else if stay.ExitedOn.Before(stay.EnteredOn) {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s history entry %d exits before it enters", lot.Code, i))
		}
		if i > 0 && stay.EnteredOn.Before(lot.History[i-1].EnteredOn) {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s history entries %d and %d are out of order", lot.Code, i-1, i))
		}
	}

	switch lot.State {
	case domain.LotStateActive:
		if open != 1 {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("active lot %s must have exactly one open stay, found %d", lot.Code, open))
		}
		if stay, ok := lot.CurrentStay(); ok && stay.Subsystem != lot.Subsystem {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s subsystem %s disagrees with open stay in %s", lot.Code, lot.Subsystem, stay.Subsystem))
		}
	case domain.LotStateClosed:
		if open != 0 {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("closed lot %s still has %d open stays", lot.Code, open))
		}
	default:
		appendHistoryViolation(res, lot.ID, fmt.Sprintf("lot %s has unknown state %q", lot.Code, lot.State))
	}

	if lot.OriginLotID != nil {
		if _, ok := view.FindLot(*lot.OriginLotID); !ok {
			appendHistoryViolation(res, lot.ID, fmt.Sprintf("sub-lot %s references missing origin lot %s", lot.Code, *lot.OriginLotID))
		}
	}
}

func appendHistoryViolation(res *domain.Result, entityID, message string) {
	res.Violations = append(res.Violations, domain.Violation{
		Rule:     "history_integrity",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityLot,
		EntityID: entityID,
	})
}
