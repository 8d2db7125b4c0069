package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"raizcore/pkg/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateLotAssignsIdentityAndTimestamps(t *testing.T) {
	store := NewStore(nil)
	now := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	store.SetNowFunc(fixedClock(now))

	var created Lot
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateLot(Lot{Code: "Jun-01", State: domain.LotStateActive, InitialCount: 100, CurrentCount: 100})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !created.CreatedAt.Equal(now) || !created.UpdatedAt.Equal(now) {
		t.Fatalf("expected timestamps %v, got %v / %v", now, created.CreatedAt, created.UpdatedAt)
	}
	if created.History == nil {
		t.Fatalf("history must never be nil")
	}
	if got, ok := store.GetLot(created.ID); !ok || got.Code != "Jun-01" {
		t.Fatalf("expected committed lot, got %+v ok=%v", got, ok)
	}
}

func TestTransactionRollbackOnError(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateLot(Lot{Code: "Jun-01"}); err != nil {
			return err
		}
		return errors.New("abort")
	}); err == nil {
		t.Fatalf("expected transaction error")
	}
	if lots := store.ListLots(); len(lots) != 0 {
		t.Fatalf("expected rollback, found %d lots", len(lots))
	}
}

func TestBlockingRulePreventsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := NewStore(engine)

	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateLot(Lot{Code: "Jun-01"})
		return err
	})
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	if lots := store.ListLots(); len(lots) != 0 {
		t.Fatalf("blocked transaction must not commit")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	return domain.Result{Violations: []domain.Violation{{Rule: "block_everything", Severity: domain.SeverityBlock}}}, nil
}

func TestUpdateLotRecordsChangeAndPreservesCreatedAt(t *testing.T) {
	store := NewStore(nil)
	created := mustCreateLot(t, store, Lot{Code: "Jun-01", CurrentCount: 100})

	later := created.CreatedAt.Add(time.Hour)
	store.SetNowFunc(fixedClock(later))

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateLot(created.ID, func(l *Lot) error {
			l.CurrentCount = 80
			l.TotalHarvested = 20
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := store.GetLot(created.ID)
	if got.CurrentCount != 80 || got.TotalHarvested != 20 {
		t.Fatalf("unexpected lot after update: %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("created timestamp must be immutable")
	}
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated timestamp %v, got %v", later, got.UpdatedAt)
	}
}

func TestUpdateMissingLot(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateLot("missing", func(l *Lot) error { return nil })
		return err
	})
	if err == nil {
		t.Fatalf("expected missing lot error")
	}
}

func TestAppendOnlyLogs(t *testing.T) {
	store := NewStore(nil)
	lot := mustCreateLot(t, store, Lot{Code: "Jun-01"})

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		qty := 10
		if _, err := tx.AppendActivity(Activity{LotID: lot.ID, LotCode: lot.Code, Kind: domain.ActivityHarvest, Quantity: &qty}); err != nil {
			return err
		}
		_, err := tx.AppendLevelReading(LevelReading{Subsystem: domain.SubsystemFloatingRoot, PH: 6.1, Conductivity: 1.8, Temperature: 21.5})
		return err
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	activities := store.ListActivities()
	if len(activities) != 1 || activities[0].Kind != domain.ActivityHarvest {
		t.Fatalf("unexpected activities: %+v", activities)
	}
	readings := store.ListLevelReadings()
	if len(readings) != 1 || readings[0].PH != 6.1 {
		t.Fatalf("unexpected readings: %+v", readings)
	}

	// Appending an existing record id must fail.
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendActivity(Activity{Base: domain.Base{ID: activities[0].ID}, LotID: lot.ID})
		return err
	}); err == nil {
		t.Fatalf("duplicate append must fail")
	}
}

func TestCloneIsolation(t *testing.T) {
	store := NewStore(nil)
	weight := 250.0
	lot := mustCreateLot(t, store, Lot{
		Code:           "Jun-01",
		AvgWeightGrams: &weight,
		History:        []SystemStay{{Subsystem: domain.SubsystemGermination, EnteredOn: time.Now().UTC()}},
	})

	// Mutating the returned copies must not leak into committed state.
	*lot.AvgWeightGrams = 999
	lot.History[0].Subsystem = domain.SubsystemSandBed

	got, _ := store.GetLot(lot.ID)
	if *got.AvgWeightGrams != 250.0 {
		t.Fatalf("pointer field aliased into store state")
	}
	if got.History[0].Subsystem != domain.SubsystemGermination {
		t.Fatalf("history slice aliased into store state")
	}
}

func TestExportImportState(t *testing.T) {
	store := NewStore(nil)
	lot := mustCreateLot(t, store, Lot{Code: "Jun-01", InitialCount: 50, CurrentCount: 50})

	snapshot := store.ExportState()
	restored := NewStore(nil)
	restored.ImportState(snapshot)

	got, ok := restored.GetLot(lot.ID)
	if !ok || got.Code != "Jun-01" || got.InitialCount != 50 {
		t.Fatalf("unexpected restored lot: %+v ok=%v", got, ok)
	}
}

func TestMigrateSnapshotNormalizes(t *testing.T) {
	snapshot := migrateSnapshot(Snapshot{Lots: map[string]Lot{"a": {Base: domain.Base{ID: "a"}}}})
	if snapshot.Activities == nil || snapshot.Levels == nil {
		t.Fatalf("expected non-nil maps")
	}
	lot := snapshot.Lots["a"]
	if lot.History == nil {
		t.Fatalf("expected non-nil history")
	}
	if lot.State != domain.LotStateActive {
		t.Fatalf("expected default active state, got %s", lot.State)
	}
}

func TestViewSeesCommittedState(t *testing.T) {
	store := NewStore(nil)
	mustCreateLot(t, store, Lot{Code: "Jun-01"})
	if err := store.View(context.Background(), func(view TransactionView) error {
		if len(view.ListLots()) != 1 {
			t.Fatalf("expected one lot in view")
		}
		if _, ok := view.FindLot("missing"); ok {
			t.Fatalf("unexpected lot")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestListOrderingIsDeterministic(t *testing.T) {
	store := NewStore(nil)
	base := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		store.SetNowFunc(fixedClock(base.Add(time.Duration(i) * time.Hour)))
		mustCreateLot(t, store, Lot{Code: []string{"Jun-01", "Jun-02", "Jun-03"}[i]})
	}
	lots := store.ListLots()
	if len(lots) != 3 {
		t.Fatalf("expected 3 lots")
	}
	for i, want := range []string{"Jun-01", "Jun-02", "Jun-03"} {
		if lots[i].Code != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, lots[i].Code)
		}
	}
}

func mustCreateLot(t *testing.T, store *Store, lot Lot) Lot {
	t.Helper()
	var created Lot
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		created, err = tx.CreateLot(lot)
		return err
	}); err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return created
}
