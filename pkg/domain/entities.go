// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by raizcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLot identifies a production lot record.
	EntityLot EntityType = "lot"
	// EntityActivity identifies an append-only activity log record.
	EntityActivity EntityType = "activity"
	// EntityLevelReading identifies an append-only nutrient level reading.
	EntityLevelReading EntityType = "level_reading"
)

// LotState enumerates the lifecycle states of a lot.
type LotState string

// Canonical lot states. A lot is created active and stays active until an
// operator explicitly closes it; reaching a zero plant count does not close it.
const (
	LotStateActive LotState = "active"
	LotStateClosed LotState = "closed"
)

// Subsystem names a growing sub-system within the facility. Values are the
// operator-facing Spanish labels used on physical signage and in reports.
type Subsystem string

// Facility sub-systems, in the order lots move through them.
const (
	SubsystemPurchased    Subsystem = "Plantines Comprados"
	SubsystemGermination  Subsystem = "Germinacion"
	SubsystemFloatingRoot Subsystem = "Raiz Flotante"
	SubsystemSandBed      Subsystem = "Cama de Arena"
)

// Subsystems returns the facility sub-systems in display order.
func Subsystems() []Subsystem {
	return []Subsystem{SubsystemPurchased, SubsystemGermination, SubsystemFloatingRoot, SubsystemSandBed}
}

// Valid reports whether s names a known sub-system.
func (s Subsystem) Valid() bool {
	switch s {
	case SubsystemPurchased, SubsystemGermination, SubsystemFloatingRoot, SubsystemSandBed:
		return true
	}
	return false
}

// ActivityKind enumerates the event types recorded in the activity log.
type ActivityKind string

// Canonical activity kinds. Values match the labels used in daily reports.
const (
	ActivitySowing     ActivityKind = "siembra"
	ActivityPurchase   ActivityKind = "plantines_comprados"
	ActivityTransplant ActivityKind = "trasplante"
	ActivityHarvest    ActivityKind = "cosecha"
	ActivityMortality  ActivityKind = "mortandad"
	ActivityEvolution  ActivityKind = "evolucion"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SystemStay is one entry in a lot's sub-system history trail. The current
// location of an active lot is the single entry with a nil ExitedOn.
type SystemStay struct {
	Subsystem Subsystem  `json:"subsystem"`
	EnteredOn time.Time  `json:"entered_on"`
	ExitedOn  *time.Time `json:"exited_on"`
}

// Open reports whether the stay is the lot's current location.
func (s SystemStay) Open() bool {
	return s.ExitedOn == nil
}

// Lot represents a cohort of plants tracked from sowing or purchase through
// harvest. InitialCount never changes after creation; CurrentCount decreases
// as plants are harvested, die, or are split off into sub-lots.
type Lot struct {
	Base
	Code           string       `json:"code"`
	Variety        string       `json:"variety"`
	State          LotState     `json:"state"`
	Subsystem      Subsystem    `json:"subsystem"`
	PlantedOn      time.Time    `json:"planted_on"`
	InitialCount   int          `json:"initial_count"`
	CurrentCount   int          `json:"current_count"`
	TotalHarvested int          `json:"total_harvested"`
	TotalMortality int          `json:"total_mortality"`
	TotalSplitOff  int          `json:"total_split_off"`
	AvgWeightGrams *float64     `json:"avg_weight_grams"`
	WeightWithRoot bool         `json:"weight_with_root"`
	OriginLotID    *string      `json:"origin_lot_id"`
	History        []SystemStay `json:"history"`
	CreatedBy      string       `json:"created_by"`
}

// CurrentStay returns the lot's open history entry, if any.
func (l Lot) CurrentStay() (SystemStay, bool) {
	for _, stay := range l.History {
		if stay.Open() {
			return stay, true
		}
	}
	return SystemStay{}, false
}

// IsSubLot reports whether the lot was split off from another lot.
func (l Lot) IsSubLot() bool {
	return l.OriginLotID != nil
}

// AgeDays returns full days elapsed since planting as of the given date.
func (l Lot) AgeDays(on time.Time) int {
	days := int(DateOf(on).Sub(DateOf(l.PlantedOn)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Activity is an append-only log record describing one operation performed on
// a lot. Records are never updated or deleted after commit.
type Activity struct {
	Base
	LotID      string       `json:"lot_id"`
	LotCode    string       `json:"lot_code"`
	Kind       ActivityKind `json:"kind"`
	OccurredAt time.Time    `json:"occurred_at"`
	Quantity   *int         `json:"quantity,omitempty"`
	Variety    *string      `json:"variety,omitempty"`
	Notes      *string      `json:"notes,omitempty"`

	// Harvest weight samples, in grams. Control weights come from the test
	// plant, lot weights from the whole harvested batch, plant weights from
	// the derived per-plant average.
	ControlWeightWithRoot    *float64 `json:"control_weight_with_root,omitempty"`
	ControlWeightWithoutRoot *float64 `json:"control_weight_without_root,omitempty"`
	LotWeightWithRoot        *float64 `json:"lot_weight_with_root,omitempty"`
	LotWeightWithoutRoot     *float64 `json:"lot_weight_without_root,omitempty"`
	PlantWeightWithRoot      *float64 `json:"plant_weight_with_root,omitempty"`
	PlantWeightWithoutRoot   *float64 `json:"plant_weight_without_root,omitempty"`

	FromSubsystem *Subsystem `json:"from_subsystem,omitempty"`
	ToSubsystem   *Subsystem `json:"to_subsystem,omitempty"`

	// Images holds blob store keys, or inline data URLs when no blob store
	// is configured, for evolution photos.
	Images []string `json:"images,omitempty"`

	CreatedBy string `json:"created_by"`
}

// Label returns the report label for the activity, qualifying transplants
// with their destination sub-system.
func (a Activity) Label() string {
	if a.Kind == ActivityTransplant && a.ToSubsystem != nil {
		return string(ActivityTransplant) + " " + string(*a.ToSubsystem)
	}
	return string(a.Kind)
}

// LevelReading is an append-only nutrient solution measurement taken for a
// sub-system, independent of any lot.
type LevelReading struct {
	Base
	Subsystem    Subsystem `json:"subsystem"`
	OccurredAt   time.Time `json:"occurred_at"`
	PH           float64   `json:"ph"`
	Conductivity float64   `json:"conductivity"`
	Temperature  float64   `json:"temperature"`
	Battery      *float64  `json:"battery,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
	CreatedBy    string    `json:"created_by"`
}

// Action enumerates mutation kinds captured in the audit trail.
type Action string

// Change actions recorded for each entity mutated inside a transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionAppend indicates a record was added to an append-only log.
	ActionAppend Action = "append"
)

// Change captures a single entity mutation within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations produced during a transaction.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same UTC calendar date.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}
