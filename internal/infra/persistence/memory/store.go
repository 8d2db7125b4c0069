// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"raizcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Lot aliases domain.Lot for in-memory persistence operations.
	Lot = domain.Lot
	// Activity aliases domain.Activity.
	Activity = domain.Activity
	// LevelReading aliases domain.LevelReading.
	LevelReading = domain.LevelReading
	// SystemStay aliases domain.SystemStay.
	SystemStay = domain.SystemStay
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	lots       map[string]Lot
	activities map[string]Activity
	levels     map[string]LevelReading
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Lots       map[string]Lot          `json:"lots"`
	Activities map[string]Activity     `json:"activities"`
	Levels     map[string]LevelReading `json:"levels"`
}

func newMemoryState() memoryState {
	return memoryState{
		lots:       make(map[string]Lot),
		activities: make(map[string]Activity),
		levels:     make(map[string]LevelReading),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Lots:       make(map[string]Lot, len(state.lots)),
		Activities: make(map[string]Activity, len(state.activities)),
		Levels:     make(map[string]LevelReading, len(state.levels)),
	}
	for k, v := range state.lots {
		s.Lots[k] = cloneLot(v)
	}
	for k, v := range state.activities {
		s.Activities[k] = cloneActivity(v)
	}
	for k, v := range state.levels {
		s.Levels[k] = cloneLevelReading(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Lots {
		state.lots[k] = cloneLot(v)
	}
	for k, v := range s.Activities {
		state.activities[k] = cloneActivity(v)
	}
	for k, v := range s.Levels {
		state.levels[k] = cloneLevelReading(v)
	}
	return state
}

// migrateSnapshot normalizes snapshots loaded from durable backends: nil
// maps become empty, lot history slices are never nil, and log records whose
// lot vanished are kept (the log is append-only and outlives its lots).
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Lots == nil {
		snapshot.Lots = map[string]Lot{}
	}
	if snapshot.Activities == nil {
		snapshot.Activities = map[string]Activity{}
	}
	if snapshot.Levels == nil {
		snapshot.Levels = map[string]LevelReading{}
	}
	for id, lot := range snapshot.Lots {
		if lot.History == nil {
			lot.History = []SystemStay{}
		}
		if lot.State == "" {
			lot.State = domain.LotStateActive
		}
		snapshot.Lots[id] = lot
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.lots {
		out.lots[k] = cloneLot(v)
	}
	for k, v := range s.activities {
		out.activities[k] = cloneActivity(v)
	}
	for k, v := range s.levels {
		out.levels[k] = cloneLevelReading(v)
	}
	return out
}

func cloneLot(l Lot) Lot {
	l.AvgWeightGrams = clonePtr(l.AvgWeightGrams)
	l.OriginLotID = clonePtr(l.OriginLotID)
	if l.History != nil {
		history := make([]SystemStay, len(l.History))
		for i, stay := range l.History {
			stay.ExitedOn = clonePtr(stay.ExitedOn)
			history[i] = stay
		}
		l.History = history
	}
	return l
}

func cloneActivity(a Activity) Activity {
	a.Quantity = clonePtr(a.Quantity)
	a.Variety = clonePtr(a.Variety)
	a.Notes = clonePtr(a.Notes)
	a.ControlWeightWithRoot = clonePtr(a.ControlWeightWithRoot)
	a.ControlWeightWithoutRoot = clonePtr(a.ControlWeightWithoutRoot)
	a.LotWeightWithRoot = clonePtr(a.LotWeightWithRoot)
	a.LotWeightWithoutRoot = clonePtr(a.LotWeightWithoutRoot)
	a.PlantWeightWithRoot = clonePtr(a.PlantWeightWithRoot)
	a.PlantWeightWithoutRoot = clonePtr(a.PlantWeightWithoutRoot)
	a.FromSubsystem = clonePtr(a.FromSubsystem)
	a.ToSubsystem = clonePtr(a.ToSubsystem)
	if a.Images != nil {
		a.Images = append([]string(nil), a.Images...)
	}
	return a
}

func cloneLevelReading(r LevelReading) LevelReading {
	r.Battery = clonePtr(r.Battery)
	r.Notes = clonePtr(r.Notes)
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider. Intended for deterministic tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListLots returns all lots within the snapshot, ordered by creation time.
func (v transactionView) ListLots() []Lot {
	out := make([]Lot, 0, len(v.state.lots))
	for _, l := range v.state.lots {
		out = append(out, cloneLot(l))
	}
	sortLots(out)
	return out
}

// ListActivities returns all activity records ordered by occurrence time.
func (v transactionView) ListActivities() []Activity {
	out := make([]Activity, 0, len(v.state.activities))
	for _, a := range v.state.activities {
		out = append(out, cloneActivity(a))
	}
	sortActivities(out)
	return out
}

// ListLevelReadings returns all level readings ordered by occurrence time.
func (v transactionView) ListLevelReadings() []LevelReading {
	out := make([]LevelReading, 0, len(v.state.levels))
	for _, r := range v.state.levels {
		out = append(out, cloneLevelReading(r))
	}
	sortLevelReadings(out)
	return out
}

// FindLot returns the lot with the given id from the snapshot.
func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

func sortLots(lots []Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].CreatedAt.Equal(lots[j].CreatedAt) {
			return lots[i].CreatedAt.Before(lots[j].CreatedAt)
		}
		return lots[i].ID < lots[j].ID
	})
}

func sortActivities(activities []Activity) {
	sort.Slice(activities, func(i, j int) bool {
		if !activities[i].OccurredAt.Equal(activities[j].OccurredAt) {
			return activities[i].OccurredAt.Before(activities[j].OccurredAt)
		}
		if !activities[i].CreatedAt.Equal(activities[j].CreatedAt) {
			return activities[i].CreatedAt.Before(activities[j].CreatedAt)
		}
		return activities[i].ID < activities[j].ID
	})
}

func sortLevelReadings(readings []LevelReading) {
	sort.Slice(readings, func(i, j int) bool {
		if !readings[i].OccurredAt.Equal(readings[j].OccurredAt) {
			return readings[i].OccurredAt.Before(readings[j].OccurredAt)
		}
		return readings[i].ID < readings[j].ID
	})
}

// RunInTransaction executes fn against a cloned state, evaluates the rules
// engine over the mutated snapshot, and commits only when no blocking
// violations are present.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindLot returns a lot from the transactional state.
func (tx *transaction) FindLot(id string) (Lot, bool) {
	l, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// CreateLot stores a new lot.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	if l.History == nil {
		l.History = []SystemStay{}
	}
	tx.state.lots[l.ID] = cloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: cloneLot(l)})
	return cloneLot(l), nil
}

// UpdateLot mutates a lot using the provided mutator function.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, fmt.Errorf("lot %q not found", id)
	}
	before := cloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.lots[id] = cloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: before, After: cloneLot(current)})
	return cloneLot(current), nil
}

// AppendActivity adds a record to the append-only activity log.
func (tx *transaction) AppendActivity(a Activity) (Activity, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.activities[a.ID]; exists {
		return Activity{}, fmt.Errorf("activity %q already exists", a.ID)
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	if a.OccurredAt.IsZero() {
		a.OccurredAt = tx.now
	}
	tx.state.activities[a.ID] = cloneActivity(a)
	tx.recordChange(Change{Entity: domain.EntityActivity, Action: domain.ActionAppend, After: cloneActivity(a)})
	return cloneActivity(a), nil
}

// AppendLevelReading adds a record to the append-only level reading log.
func (tx *transaction) AppendLevelReading(r LevelReading) (LevelReading, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.levels[r.ID]; exists {
		return LevelReading{}, fmt.Errorf("level reading %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	if r.OccurredAt.IsZero() {
		r.OccurredAt = tx.now
	}
	tx.state.levels[r.ID] = cloneLevelReading(r)
	tx.recordChange(Change{Entity: domain.EntityLevelReading, Action: domain.ActionAppend, After: cloneLevelReading(r)})
	return cloneLevelReading(r), nil
}

// GetLot returns a lot from committed state.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return cloneLot(l), true
}

// ListLots returns all committed lots ordered by creation time.
func (s *Store) ListLots() []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lot, 0, len(s.state.lots))
	for _, l := range s.state.lots {
		out = append(out, cloneLot(l))
	}
	sortLots(out)
	return out
}

// ListActivities returns all committed activities ordered by occurrence time.
func (s *Store) ListActivities() []Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Activity, 0, len(s.state.activities))
	for _, a := range s.state.activities {
		out = append(out, cloneActivity(a))
	}
	sortActivities(out)
	return out
}

// ListLevelReadings returns all committed level readings ordered by occurrence time.
func (s *Store) ListLevelReadings() []LevelReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LevelReading, 0, len(s.state.levels))
	for _, r := range s.state.levels {
		out = append(out, cloneLevelReading(r))
	}
	sortLevelReadings(out)
	return out
}
