// Package report assembles the formatted daily report from a day's
// activities, level readings and active lots, and renders export
// artifacts in several formats.
package report

import (
	"fmt"
	"strings"
	"time"

	"raizcore/pkg/domain"
)

// DataSource is the read surface the assembler needs. *core.Service
// satisfies it.
type DataSource interface {
	ActiveLots() []domain.Lot
	ActivitiesOn(date time.Time) []domain.Activity
	LevelReadingsOn(date time.Time) []domain.LevelReading
}

// Report is the assembled daily report for one date.
type Report struct {
	Date            time.Time             `json:"date"`
	GeneratedBy     string                `json:"generated_by"`
	GeneratedAt     time.Time             `json:"generated_at"`
	ActiveLots      []domain.Lot          `json:"active_lots"`
	Activities      []domain.Activity     `json:"activities"`
	Levels          []domain.LevelReading `json:"levels"`
	AdditionalNotes string                `json:"additional_notes,omitempty"`
}

// Assembler folds store state into daily reports.
type Assembler struct {
	source DataSource
	clock  func() time.Time
}

// NewAssembler builds an assembler over the given data source. A nil
// clock defaults to UTC now.
func NewAssembler(source DataSource, clock func() time.Time) *Assembler {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Assembler{source: source, clock: clock}
}

// Assemble collects the date's activities and level readings plus the
// currently active lots into a Report.
func (a *Assembler) Assemble(date time.Time, generatedBy, additionalNotes string) Report {
	return Report{
		Date:            domain.DateOf(date),
		GeneratedBy:     generatedBy,
		GeneratedAt:     a.clock(),
		ActiveLots:      a.source.ActiveLots(),
		Activities:      a.source.ActivitiesOn(date),
		Levels:          a.source.LevelReadingsOn(date),
		AdditionalNotes: additionalNotes,
	}
}

const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var longMonths = [12]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// SpanishDate renders a date as "12 de junio de 2026".
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%02d de %s de %d", t.Day(), longMonths[t.Month()-1], t.Year())
}

// ActivityDisplayName maps an activity kind to its report label.
func ActivityDisplayName(a domain.Activity) string {
	if a.Kind == domain.ActivityTransplant {
		if a.ToSubsystem != nil {
			return "Trasplante a " + string(*a.ToSubsystem)
		}
		return "Trasplante"
	}
	switch a.Kind {
	case domain.ActivitySowing:
		return "Siembra"
	case domain.ActivityPurchase:
		return "Plantines Comprados"
	case domain.ActivityHarvest:
		return "Cosecha"
	case domain.ActivityMortality:
		return "Mortandad"
	case domain.ActivityEvolution:
		return "Evolución del Cultivo"
	default:
		return string(a.Kind)
	}
}

// noteText unwraps an optional notes field for display.
func noteText(notes *string) string {
	if notes == nil {
		return ""
	}
	return *notes
}

// Text renders the report in the fixed Spanish layout distributed to
// the operations team.
func (r Report) Text() string {
	var b strings.Builder

	generatedBy := r.GeneratedBy
	if generatedBy == "" {
		generatedBy = "Usuario"
	}
	fmt.Fprintf(&b, "📊 REPORTE DIARIO - VERDE RAÍZ HIDROPONÍA\n")
	fmt.Fprintf(&b, "📅 Fecha: %s\n", SpanishDate(r.Date))
	fmt.Fprintf(&b, "👤 Generado por: %s\n", generatedBy)
	fmt.Fprintf(&b, "⏰ Hora: %s\n", r.GeneratedAt.Format("15:04:05"))

	b.WriteString("\n" + separator + "\n\n")
	b.WriteString("📈 RESUMEN DEL DÍA:\n")
	fmt.Fprintf(&b, "• Actividades registradas: %d\n", len(r.Activities))
	fmt.Fprintf(&b, "• Registros de niveles: %d\n", len(r.Levels))
	fmt.Fprintf(&b, "• Lotes activos: %d\n", len(r.ActiveLots))

	b.WriteString("\n" + separator + "\n\n")
	b.WriteString("🌱 LOTES ACTIVOS:\n")
	for _, lot := range r.ActiveLots {
		fmt.Fprintf(&b, "\n• %s - %s\n", lot.Code, lot.Variety)
		fmt.Fprintf(&b, "  Sistema: %s\n", lot.Subsystem)
		fmt.Fprintf(&b, "  Plantas: %d/%d\n", lot.CurrentCount, lot.InitialCount)
		fmt.Fprintf(&b, "  Días: %d\n", lot.AgeDays(r.Date))
		fmt.Fprintf(&b, "  Cosechado: %d | Mortandad: %d\n", lot.TotalHarvested, lot.TotalMortality)
	}

	if len(r.Activities) > 0 {
		b.WriteString("\n" + separator + "\n\n")
		b.WriteString("📋 ACTIVIDADES DEL DÍA:\n")
		for _, act := range r.Activities {
			fmt.Fprintf(&b, "\n⏰ %s - %s\n", act.OccurredAt.Format("15:04"), ActivityDisplayName(act))
			code := act.LotCode
			if code == "" {
				code = "N/A"
			}
			fmt.Fprintf(&b, "   Lote: %s\n", code)
			if act.Quantity != nil {
				fmt.Fprintf(&b, "   Cantidad: %d\n", *act.Quantity)
			}
			if notes := noteText(act.Notes); notes != "" {
				fmt.Fprintf(&b, "   Obs: %s\n", notes)
			}
			if act.CreatedBy != "" {
				fmt.Fprintf(&b, "   Por: %s\n", act.CreatedBy)
			}
		}
	}

	if len(r.Levels) > 0 {
		b.WriteString("\n" + separator + "\n\n")
		b.WriteString("📊 NIVELES REGISTRADOS:\n")
		for _, lvl := range r.Levels {
			fmt.Fprintf(&b, "\n⏰ %s - %s\n", lvl.OccurredAt.Format("15:04"), lvl.Subsystem)
			fmt.Fprintf(&b, "   pH: %.1f\n", lvl.PH)
			fmt.Fprintf(&b, "   Conductividad: %.1f\n", lvl.Conductivity)
			fmt.Fprintf(&b, "   Temperatura: %.1f°C\n", lvl.Temperature)
			if lvl.Battery != nil {
				fmt.Fprintf(&b, "   Batería: %.1f%%\n", *lvl.Battery)
			}
			if notes := noteText(lvl.Notes); notes != "" {
				fmt.Fprintf(&b, "   Obs: %s\n", notes)
			}
			if lvl.CreatedBy != "" {
				fmt.Fprintf(&b, "   Por: %s\n", lvl.CreatedBy)
			}
		}
	}

	if r.AdditionalNotes != "" {
		b.WriteString("\n" + separator + "\n\n")
		b.WriteString("📝 NOTAS ADICIONALES:\n")
		b.WriteString(r.AdditionalNotes + "\n")
	}

	b.WriteString("\n" + separator + "\n\n")
	b.WriteString("🌿 Verde Raíz Hidroponía\n")
	b.WriteString("📧 verderaizhidroponia@gmail.com\n")
	b.WriteString("📱 Sistema de Control v3.0\n")

	return b.String()
}

// Filename returns the canonical download name for the text rendering.
func (r Report) Filename() string {
	return fmt.Sprintf("Reporte_Verde_Raiz_%s.txt", r.Date.Format("2006-01-02"))
}
