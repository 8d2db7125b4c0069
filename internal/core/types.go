package core

import "raizcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	LotState           = domain.LotState
	Subsystem          = domain.Subsystem
	ActivityKind       = domain.ActivityKind
	Severity           = domain.Severity
	Base               = domain.Base
	Lot                = domain.Lot
	SystemStay         = domain.SystemStay
	Activity           = domain.Activity
	LevelReading       = domain.LevelReading
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	RuleView           = domain.RuleView
)

const (
	EntityLot          = domain.EntityLot
	EntityActivity     = domain.EntityActivity
	EntityLevelReading = domain.EntityLevelReading
)

const (
	LotStateActive = domain.LotStateActive
	LotStateClosed = domain.LotStateClosed
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionAppend = domain.ActionAppend
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// NewRulesEngine constructs an empty rules engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewCountConservationRule())
	engine.Register(NewHistoryIntegrityRule())
	engine.Register(NewCodeUniquenessRule())
	return engine
}
