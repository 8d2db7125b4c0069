package integration

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"raizcore/internal/blob"
	"raizcore/internal/core"
	blobs3 "raizcore/internal/infra/blob/s3"
	"raizcore/internal/infra/persistence/memory"
	"raizcore/internal/report"
	"raizcore/pkg/domain"
)

// TestIntegrationSmoke drives one lot through its whole lifecycle on every
// in-process storage and blob adapter, then assembles and exports the daily
// report. It keeps scope small so it can act as a fast CI health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2026, 6, 12, 9, 0, 0, 0, time.UTC) }

	storeVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "raizcore.db")
				s, err := core.NewSQLiteStore(path, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				s, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem store: %v", err)
				}
				return s
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blobs3.NewMockForTests() },
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				store := sv.open(t)
				objects := bv.open(t)
				service := core.NewService(store, core.WithClock(clock), core.WithBlobStore(objects))

				lot, _, err := service.CreateLot(ctx, core.CreateLotInput{
					Kind:     core.CreationSowing,
					Variety:  "Lechuga Crespa",
					Quantity: 50,
					Operator: "Marta",
				})
				if err != nil {
					t.Fatalf("create lot: %v", err)
				}

				outcome, _, err := service.Transplant(ctx, core.TransplantInput{
					LotID:    lot.ID,
					To:       domain.SubsystemFloatingRoot,
					Quantity: 20,
					Operator: "Marta",
				})
				if err != nil {
					t.Fatalf("transplant: %v", err)
				}
				if outcome.Split == nil || outcome.Split.Code != "Jun-01-A" {
					t.Fatalf("split = %+v", outcome.Split)
				}

				weight := 150.0
				if _, _, err := service.Harvest(ctx, core.HarvestInput{
					LotID:                    outcome.Split.ID,
					Quantity:                 5,
					ControlWeightWithoutRoot: &weight,
					Operator:                 "Marta",
				}); err != nil {
					t.Fatalf("harvest: %v", err)
				}

				activity, _, err := service.LogEvolution(ctx, core.EvolutionInput{
					LotID:    lot.ID,
					Notes:    "hojas firmes",
					Images:   []core.EvolutionImage{{Name: "foto.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")}},
					Operator: "Marta",
				})
				if err != nil {
					t.Fatalf("evolution: %v", err)
				}
				if len(activity.Images) != 1 {
					t.Fatalf("images = %v", activity.Images)
				}
				info, rc, err := objects.Get(ctx, activity.Images[0])
				if err != nil {
					t.Fatalf("stored photo missing: %v", err)
				}
				payload, _ := io.ReadAll(rc)
				_ = rc.Close()
				if !bytes.Equal(payload, []byte("jpeg")) || info.Size != 4 {
					t.Fatalf("photo payload = %q size=%d", payload, info.Size)
				}

				ph, cond, temp := 6.2, 1.8, 21.0
				if _, _, err := service.RecordLevels(ctx, core.LevelsInput{
					Subsystem: domain.SubsystemFloatingRoot,
					PH:        &ph, Conductivity: &cond, Temperature: &temp,
					Operator: "Marta",
				}); err != nil {
					t.Fatalf("record levels: %v", err)
				}

				assembler := report.NewAssembler(service, clock)
				rep := assembler.Assemble(clock(), "Marta", "")
				text := rep.Text()
				for _, want := range []string{
					"REPORTE DIARIO - VERDE RAÍZ HIDROPONÍA",
					"Jun-01 - Lechuga Crespa",
					"Jun-01-A - Lechuga Crespa",
					"pH: 6.2",
				} {
					if !strings.Contains(text, want) {
						t.Fatalf("report missing %q:\n%s", want, text)
					}
				}

				worker := report.NewWorker(assembler, objects, core.NewMemoryAuditLog())
				worker.Start()
				defer func() { _ = worker.Stop(ctx) }()
				record, err := worker.EnqueueExport(ctx, report.ExportInput{
					Date:    clock(),
					Formats: []report.Format{report.FormatText, report.FormatXLSX},
				})
				if err != nil {
					t.Fatalf("enqueue export: %v", err)
				}
				deadline := time.Now().Add(5 * time.Second)
				for {
					done, ok := worker.GetExport(record.ID)
					if ok && done.Status == report.ExportStatusSucceeded {
						if len(done.Artifacts) != 2 {
							t.Fatalf("artifacts = %+v", done.Artifacts)
						}
						break
					}
					if ok && done.Status == report.ExportStatusFailed {
						t.Fatalf("export failed: %s", done.Error)
					}
					if time.Now().After(deadline) {
						t.Fatalf("export did not finish")
					}
					time.Sleep(10 * time.Millisecond)
				}
			})
		}
	}
}
