package report

import (
	"strings"
	"testing"
	"time"

	"raizcore/pkg/domain"
)

type staticSource struct {
	lots       []domain.Lot
	activities []domain.Activity
	levels     []domain.LevelReading
}

func (s staticSource) ActiveLots() []domain.Lot                        { return s.lots }
func (s staticSource) ActivitiesOn(time.Time) []domain.Activity        { return s.activities }
func (s staticSource) LevelReadingsOn(time.Time) []domain.LevelReading { return s.levels }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func sampleSource() staticSource {
	qty := 12
	battery := 87.5
	notes := "hojas sanas"
	planted := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return staticSource{
		lots: []domain.Lot{{
			Code:           "Jun-01",
			Variety:        "Lechuga Crespa",
			Subsystem:      domain.SubsystemFloatingRoot,
			State:          domain.LotStateActive,
			PlantedOn:      planted,
			InitialCount:   100,
			CurrentCount:   80,
			TotalHarvested: 15,
			TotalMortality: 5,
		}},
		activities: []domain.Activity{{
			LotCode:    "Jun-01",
			Kind:       domain.ActivityHarvest,
			OccurredAt: time.Date(2026, 6, 12, 9, 30, 0, 0, time.UTC),
			Quantity:   &qty,
			Notes:      &notes,
			CreatedBy:  "Marta",
		}},
		levels: []domain.LevelReading{{
			Subsystem:    domain.SubsystemFloatingRoot,
			OccurredAt:   time.Date(2026, 6, 12, 8, 0, 0, 0, time.UTC),
			PH:           6.2,
			Conductivity: 1.8,
			Temperature:  21.4,
			Battery:      &battery,
			CreatedBy:    "Marta",
		}},
	}
}

func TestAssembleCollectsDayData(t *testing.T) {
	now := time.Date(2026, 6, 12, 21, 0, 0, 0, time.UTC)
	asm := NewAssembler(sampleSource(), fixedClock(now))
	rep := asm.Assemble(time.Date(2026, 6, 12, 13, 45, 0, 0, time.UTC), "Marta", "día ventoso")

	if !rep.Date.Equal(time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date not truncated: %v", rep.Date)
	}
	if rep.GeneratedBy != "Marta" || !rep.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected generation metadata %+v", rep)
	}
	if len(rep.ActiveLots) != 1 || len(rep.Activities) != 1 || len(rep.Levels) != 1 {
		t.Fatalf("unexpected section sizes %+v", rep)
	}
}

func TestReportTextLayout(t *testing.T) {
	now := time.Date(2026, 6, 12, 21, 0, 0, 0, time.UTC)
	asm := NewAssembler(sampleSource(), fixedClock(now))
	rep := asm.Assemble(now, "Marta", "día ventoso")
	text := rep.Text()

	for _, want := range []string{
		"📊 REPORTE DIARIO - VERDE RAÍZ HIDROPONÍA",
		"📅 Fecha: 12 de junio de 2026",
		"👤 Generado por: Marta",
		"• Actividades registradas: 1",
		"• Registros de niveles: 1",
		"• Lotes activos: 1",
		"🌱 LOTES ACTIVOS:",
		"• Jun-01 - Lechuga Crespa",
		"Sistema: Raiz Flotante",
		"Plantas: 80/100",
		"Días: 11",
		"Cosechado: 15 | Mortandad: 5",
		"📋 ACTIVIDADES DEL DÍA:",
		"⏰ 09:30 - Cosecha",
		"Cantidad: 12",
		"Obs: hojas sanas",
		"📊 NIVELES REGISTRADOS:",
		"pH: 6.2",
		"Temperatura: 21.4°C",
		"Batería: 87.5%",
		"📝 NOTAS ADICIONALES:",
		"día ventoso",
		"🌿 Verde Raíz Hidroponía",
		"📱 Sistema de Control v3.0",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report text missing %q\n%s", want, text)
		}
	}
}

func TestReportTextOmitsEmptySections(t *testing.T) {
	asm := NewAssembler(staticSource{}, fixedClock(time.Date(2026, 6, 12, 21, 0, 0, 0, time.UTC)))
	rep := asm.Assemble(time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC), "", "")
	text := rep.Text()
	if strings.Contains(text, "ACTIVIDADES DEL DÍA") || strings.Contains(text, "NIVELES REGISTRADOS") || strings.Contains(text, "NOTAS ADICIONALES") {
		t.Fatalf("empty sections should be omitted:\n%s", text)
	}
	if !strings.Contains(text, "Generado por: Usuario") {
		t.Fatalf("expected fallback operator name:\n%s", text)
	}
}

func TestActivityDisplayName(t *testing.T) {
	dest := domain.SubsystemSandBed
	cases := []struct {
		activity domain.Activity
		want     string
	}{
		{domain.Activity{Kind: domain.ActivitySowing}, "Siembra"},
		{domain.Activity{Kind: domain.ActivityPurchase}, "Plantines Comprados"},
		{domain.Activity{Kind: domain.ActivityTransplant, ToSubsystem: &dest}, "Trasplante a Cama de Arena"},
		{domain.Activity{Kind: domain.ActivityTransplant}, "Trasplante"},
		{domain.Activity{Kind: domain.ActivityHarvest}, "Cosecha"},
		{domain.Activity{Kind: domain.ActivityMortality}, "Mortandad"},
		{domain.Activity{Kind: domain.ActivityEvolution}, "Evolución del Cultivo"},
		{domain.Activity{Kind: domain.ActivityKind("riego")}, "riego"},
	}
	for _, tc := range cases {
		if got := ActivityDisplayName(tc.activity); got != tc.want {
			t.Fatalf("ActivityDisplayName(%s) = %q, want %q", tc.activity.Kind, got, tc.want)
		}
	}
}

func TestReportFilename(t *testing.T) {
	rep := Report{Date: time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)}
	if got := rep.Filename(); got != "Reporte_Verde_Raiz_2026-06-12.txt" {
		t.Fatalf("filename = %s", got)
	}
}
