package report

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"raizcore/internal/blob"
	"raizcore/internal/core"
)

// Format identifies a report rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SupportedFormats lists every rendering the worker can produce.
func SupportedFormats() []Format {
	return []Format{FormatText, FormatJSON, FormatCSV, FormatXLSX}
}

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatText, FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact describes one stored rendering of a report.
type ExportArtifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExportRecord tracks an export request and its resulting artifacts.
type ExportRecord struct {
	ID              string           `json:"id"`
	Date            time.Time        `json:"date"`
	Formats         []Format         `json:"formats"`
	Status          ExportStatus     `json:"status"`
	Error           string           `json:"error,omitempty"`
	Artifacts       []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy     string           `json:"requested_by"`
	AdditionalNotes string           `json:"additional_notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput is an enqueue request for the worker.
type ExportInput struct {
	Date            time.Time
	Formats         []Format
	RequestedBy     string
	AdditionalNotes string
}

// Worker renders and archives daily reports asynchronously.
type Worker struct {
	assembler *Assembler
	blobs     blob.Store
	audit     core.AuditRecorder
	clock     func() time.Time

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewWorker constructs an export worker. A nil store falls back to the
// in-memory blob driver so exports still complete in tests.
func NewWorker(assembler *Assembler, blobs blob.Store, audit core.AuditRecorder) *Worker {
	if blobs == nil {
		blobs = blob.NewMemory()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		assembler: assembler,
		blobs:     blobs,
		audit:     audit,
		clock:     func() time.Time { return time.Now().UTC() },
		queue:     make(chan exportTask, 32),
		jobs:      make(map[string]*ExportRecord),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	if input.Date.IsZero() {
		return ExportRecord{}, fmt.Errorf("report date required")
	}
	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatText}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, f := range formats {
		if _, dup := seen[f]; dup {
			continue
		}
		if _, err := ParseFormat(string(f)); err != nil {
			return ExportRecord{}, err
		}
		uniq = append(uniq, f)
		seen[f] = struct{}{}
	}

	id := newID()
	now := w.clock()
	record := ExportRecord{
		ID:              id,
		Date:            input.Date,
		Formats:         uniq,
		Status:          ExportStatusQueued,
		RequestedBy:     input.RequestedBy,
		AdditionalNotes: input.AdditionalNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return snapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// ListExports returns snapshots of all export records, newest first.
func (w *Worker) ListExports() []ExportRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]ExportRecord, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, record.copy())
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (w *Worker) process(task exportTask) {
	w.updateStatus(task.id, ExportStatusRunning, "")

	rep := w.assembler.Assemble(task.input.Date, task.input.RequestedBy, task.input.AdditionalNotes)

	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := Render(rep, format)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		key := fmt.Sprintf("reports/%s/%s.%s", rep.Date.Format("2006-01-02"), task.id, extensionFor(format))
		info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			CreatedAt:   w.clock(),
		})
	}
	w.complete(task.id, artifacts)
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = w.clock()
	}
	w.mu.Unlock()
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := w.clock()
	w.mu.Lock()
	var actor string
	var date time.Time
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
		date = record.Date
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, core.AuditEntry{
			Operation:  "export_report",
			Status:     core.AuditStatusSuccess,
			Actor:      actor,
			EntityID:   id,
			Metadata:   map[string]string{"date": date.Format("2006-01-02"), "artifacts": fmt.Sprintf("%d", len(artifacts))},
			OccurredAt: now,
		})
	}
}

func (w *Worker) fail(id, reason string) {
	now := w.clock()
	w.mu.Lock()
	var actor string
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	if w.audit != nil {
		w.audit.Record(w.ctx, core.AuditEntry{
			Operation:  "export_report",
			Status:     core.AuditStatusError,
			Actor:      actor,
			EntityID:   id,
			Error:      reason,
			OccurredAt: now,
		})
	}
}

func extensionFor(format Format) string {
	switch format {
	case FormatText:
		return "txt"
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	}
	return "bin"
}

// Render produces the payload and content type for one format.
func Render(rep Report, format Format) ([]byte, string, error) {
	switch format {
	case FormatText:
		return []byte(rep.Text()), "text/plain; charset=utf-8", nil
	case FormatJSON:
		payload, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("marshal report: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		payload, err := renderCSV(rep)
		if err != nil {
			return nil, "", err
		}
		return payload, "text/csv", nil
	case FormatXLSX:
		payload, err := renderXLSX(rep)
		if err != nil {
			return nil, "", err
		}
		return payload, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", nil
	}
	return nil, "", fmt.Errorf("unsupported report format %q", format)
}

// renderCSV emits one row per activity of the day.
func renderCSV(rep Report) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"hora", "actividad", "lote", "cantidad", "observaciones", "operador"}); err != nil {
		return nil, err
	}
	for _, act := range rep.Activities {
		qty := ""
		if act.Quantity != nil {
			qty = fmt.Sprintf("%d", *act.Quantity)
		}
		row := []string{
			act.OccurredAt.Format("15:04"),
			ActivityDisplayName(act),
			act.LotCode,
			qty,
			noteText(act.Notes),
			act.CreatedBy,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderXLSX lays the report out over Resumen, Lotes, Actividades and
// Niveles sheets.
func renderXLSX(rep Report) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const summarySheet = "Resumen"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	summary := [][]any{
		{"Fecha", SpanishDate(rep.Date)},
		{"Generado por", rep.GeneratedBy},
		{"Actividades registradas", len(rep.Activities)},
		{"Registros de niveles", len(rep.Levels)},
		{"Lotes activos", len(rep.ActiveLots)},
	}
	if rep.AdditionalNotes != "" {
		summary = append(summary, []any{"Notas adicionales", rep.AdditionalNotes})
	}
	if err := writeSheet(f, summarySheet, nil, summary); err != nil {
		return nil, err
	}

	lotRows := make([][]any, 0, len(rep.ActiveLots))
	for _, lot := range rep.ActiveLots {
		lotRows = append(lotRows, []any{
			lot.Code, lot.Variety, string(lot.Subsystem),
			lot.CurrentCount, lot.InitialCount, lot.AgeDays(rep.Date),
			lot.TotalHarvested, lot.TotalMortality,
		})
	}
	if err := addSheet(f, "Lotes",
		[]string{"Lote", "Variedad", "Sistema", "Plantas", "Iniciales", "Días", "Cosechado", "Mortandad"},
		lotRows); err != nil {
		return nil, err
	}

	actRows := make([][]any, 0, len(rep.Activities))
	for _, act := range rep.Activities {
		qty := any("")
		if act.Quantity != nil {
			qty = *act.Quantity
		}
		actRows = append(actRows, []any{
			act.OccurredAt.Format("15:04"), ActivityDisplayName(act), act.LotCode, qty, noteText(act.Notes), act.CreatedBy,
		})
	}
	if err := addSheet(f, "Actividades",
		[]string{"Hora", "Actividad", "Lote", "Cantidad", "Observaciones", "Operador"},
		actRows); err != nil {
		return nil, err
	}

	lvlRows := make([][]any, 0, len(rep.Levels))
	for _, lvl := range rep.Levels {
		battery := any("")
		if lvl.Battery != nil {
			battery = *lvl.Battery
		}
		lvlRows = append(lvlRows, []any{
			lvl.OccurredAt.Format("15:04"), string(lvl.Subsystem), lvl.PH, lvl.Conductivity, lvl.Temperature, battery, noteText(lvl.Notes),
		})
	}
	if err := addSheet(f, "Niveles",
		[]string{"Hora", "Sistema", "pH", "Conductividad", "Temperatura", "Batería", "Observaciones"},
		lvlRows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addSheet(f *excelize.File, name string, headers []string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeSheet(f, name, headers, rows)
}

func writeSheet(f *excelize.File, name string, headers []string, rows [][]any) error {
	rowIdx := 1
	if len(headers) > 0 {
		cells := make([]any, len(headers))
		for i, h := range headers {
			cells[i] = h
		}
		if err := setRow(f, name, rowIdx, cells); err != nil {
			return err
		}
		rowIdx++
	}
	for _, row := range rows {
		if err := setRow(f, name, rowIdx, row); err != nil {
			return err
		}
		rowIdx++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}
