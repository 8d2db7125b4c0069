package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Activities and level readings are
// append-only: no update or delete operations exist for them.
type Transaction interface {
	Snapshot() TransactionView
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	AppendActivity(Activity) (Activity, error)
	AppendLevelReading(LevelReading) (LevelReading, error)
	FindLot(id string) (Lot, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// report assembly.
type TransactionView interface {
	ListLots() []Lot
	ListActivities() []Activity
	ListLevelReadings() []LevelReading
	FindLot(id string) (Lot, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetLot(id string) (Lot, bool)
	ListLots() []Lot
	ListActivities() []Activity
	ListLevelReadings() []LevelReading
}
