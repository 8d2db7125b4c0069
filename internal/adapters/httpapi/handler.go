// Package httpapi exposes lot lifecycle operations, level readings, and
// daily reports over a JSON HTTP API.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"raizcore/internal/core"
	"raizcore/internal/report"
	"raizcore/pkg/domain"
)

// Handler routes the /api/v1 surface of the service.
type Handler struct {
	Service *core.Service
	Reports *report.Assembler
	Exports *report.Worker
}

// NewHandler constructs a handler over the core service.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/lots":
		switch r.Method {
		case http.MethodGet:
			h.handleListLots(w, r)
		case http.MethodPost:
			h.handleCreateLot(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	case strings.HasPrefix(path, "/api/v1/lots/"):
		h.handleLot(w, r, strings.TrimPrefix(path, "/api/v1/lots/"))
		return
	case path == "/api/v1/levels":
		switch r.Method {
		case http.MethodGet:
			h.handleListLevels(w, r)
		case http.MethodPost:
			h.handleRecordLevels(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	case path == "/api/v1/reports/daily":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleDailyReport(w, r)
		return
	case strings.HasPrefix(path, "/api/v1/reports/exports"):
		if h.Exports == nil {
			http.NotFound(w, r)
			return
		}
		h.handleExports(w, r, path)
		return
	default:
		http.NotFound(w, r)
	}
}

type createLotRequest struct {
	Kind      string `json:"kind"`
	Variety   string `json:"variety"`
	Quantity  int    `json:"quantity"`
	PlantedOn string `json:"planted_on"`
	AgeDays   int    `json:"age_days"`
	Notes     string `json:"notes"`
	Operator  string `json:"operator"`
}

func (h *Handler) handleCreateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid lot request payload")
		return
	}
	plantedOn, err := parseDate(req.PlantedOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lot, res, err := h.Service.CreateLot(r.Context(), core.CreateLotInput{
		Kind:      core.CreationKind(req.Kind),
		Variety:   req.Variety,
		Quantity:  req.Quantity,
		PlantedOn: plantedOn,
		AgeDays:   req.AgeDays,
		Notes:     req.Notes,
		Operator:  req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"lot": lot, "violations": res.Violations})
}

func (h *Handler) handleListLots(w http.ResponseWriter, r *http.Request) {
	var lots []core.Lot
	switch r.URL.Query().Get("state") {
	case "", "active":
		lots = h.Service.ActiveLots()
	case "closed":
		lots = h.Service.ClosedLots()
	case "all":
		lots = h.Service.Lots()
	default:
		writeError(w, http.StatusBadRequest, "state must be active, closed, or all")
		return
	}

	if raw := r.URL.Query().Get("subsystem"); raw != "" {
		subsystem := core.Subsystem(raw)
		if !subsystem.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown subsystem %q", raw))
			return
		}
		filtered := lots[:0]
		for _, lot := range lots {
			if lot.Subsystem == subsystem {
				filtered = append(filtered, lot)
			}
		}
		lots = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (h *Handler) handleLot(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		lot, ok := h.Service.GetLot(id)
		if !ok {
			writeError(w, http.StatusNotFound, "lot not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lot": lot})
		return
	}
	if len(segments) != 2 {
		http.NotFound(w, r)
		return
	}

	action := segments[1]
	if action == "activities" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if _, ok := h.Service.GetLot(id); !ok {
			writeError(w, http.StatusNotFound, "lot not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activities": h.Service.ActivitiesForLot(id)})
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch action {
	case "transplant":
		h.handleTransplant(w, r, id)
	case "harvest":
		h.handleHarvest(w, r, id)
	case "mortality":
		h.handleMortality(w, r, id)
	case "evolution":
		h.handleEvolution(w, r, id)
	case "close":
		h.handleClose(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

type transplantRequest struct {
	To       string `json:"to"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes"`
	Operator string `json:"operator"`
}

func (h *Handler) handleTransplant(w http.ResponseWriter, r *http.Request, id string) {
	var req transplantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid transplant request payload")
		return
	}
	outcome, res, err := h.Service.Transplant(r.Context(), core.TransplantInput{
		LotID:    id,
		To:       core.Subsystem(req.To),
		Quantity: req.Quantity,
		Notes:    req.Notes,
		Operator: req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload := map[string]any{
		"lot":        outcome.Source,
		"activity":   outcome.Activity,
		"violations": res.Violations,
	}
	if outcome.Split != nil {
		payload["split"] = outcome.Split
	}
	writeJSON(w, http.StatusOK, payload)
}

type harvestRequest struct {
	Quantity                 int      `json:"quantity"`
	ControlWeightWithRoot    *float64 `json:"control_weight_with_root"`
	ControlWeightWithoutRoot *float64 `json:"control_weight_without_root"`
	LotWeightWithRoot        *float64 `json:"lot_weight_with_root"`
	LotWeightWithoutRoot     *float64 `json:"lot_weight_without_root"`
	Notes                    string   `json:"notes"`
	Operator                 string   `json:"operator"`
}

func (h *Handler) handleHarvest(w http.ResponseWriter, r *http.Request, id string) {
	var req harvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid harvest request payload")
		return
	}
	lot, res, err := h.Service.Harvest(r.Context(), core.HarvestInput{
		LotID:                    id,
		Quantity:                 req.Quantity,
		ControlWeightWithRoot:    req.ControlWeightWithRoot,
		ControlWeightWithoutRoot: req.ControlWeightWithoutRoot,
		LotWeightWithRoot:        req.LotWeightWithRoot,
		LotWeightWithoutRoot:     req.LotWeightWithoutRoot,
		Notes:                    req.Notes,
		Operator:                 req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "violations": res.Violations})
}

type mortalityRequest struct {
	Quantity int    `json:"quantity"`
	Cause    string `json:"cause"`
	Operator string `json:"operator"`
}

func (h *Handler) handleMortality(w http.ResponseWriter, r *http.Request, id string) {
	var req mortalityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid mortality request payload")
		return
	}
	lot, res, err := h.Service.RecordMortality(r.Context(), core.MortalityInput{
		LotID:    id,
		Quantity: req.Quantity,
		Cause:    req.Cause,
		Operator: req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "violations": res.Violations})
}

type evolutionRequest struct {
	Notes  string `json:"notes"`
	Images []struct {
		Name        string `json:"name"`
		ContentType string `json:"content_type"`
		Data        string `json:"data"`
	} `json:"images"`
	Operator string `json:"operator"`
}

func (h *Handler) handleEvolution(w http.ResponseWriter, r *http.Request, id string) {
	var req evolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid evolution request payload")
		return
	}
	images := make([]core.EvolutionImage, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("photo %d is not valid base64", i))
			return
		}
		images = append(images, core.EvolutionImage{
			Name:        img.Name,
			ContentType: img.ContentType,
			Data:        data,
		})
	}
	activity, res, err := h.Service.LogEvolution(r.Context(), core.EvolutionInput{
		LotID:    id,
		Notes:    req.Notes,
		Images:   images,
		Operator: req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": activity, "violations": res.Violations})
}

type closeRequest struct {
	Operator string `json:"operator"`
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, id string) {
	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid close request payload")
		return
	}
	lot, res, err := h.Service.CloseLot(r.Context(), id, req.Operator)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lot": lot, "violations": res.Violations})
}

type levelsRequest struct {
	Subsystem    string   `json:"subsystem"`
	PH           *float64 `json:"ph"`
	Conductivity *float64 `json:"conductivity"`
	Temperature  *float64 `json:"temperature"`
	Battery      *float64 `json:"battery"`
	Notes        string   `json:"notes"`
	Operator     string   `json:"operator"`
}

func (h *Handler) handleRecordLevels(w http.ResponseWriter, r *http.Request) {
	var req levelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid levels request payload")
		return
	}
	reading, res, err := h.Service.RecordLevels(r.Context(), core.LevelsInput{
		Subsystem:    core.Subsystem(req.Subsystem),
		PH:           req.PH,
		Conductivity: req.Conductivity,
		Temperature:  req.Temperature,
		Battery:      req.Battery,
		Notes:        req.Notes,
		Operator:     req.Operator,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"reading": reading, "violations": res.Violations})
}

func (h *Handler) handleListLevels(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("subsystem")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "subsystem query parameter is required")
		return
	}
	subsystem := core.Subsystem(raw)
	if !subsystem.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown subsystem %q", raw))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": h.Service.LevelReadings(subsystem)})
}

func (h *Handler) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if h.Reports == nil {
		writeError(w, http.StatusInternalServerError, "report assembler not configured")
		return
	}
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}
	rep := h.Reports.Assemble(date, r.URL.Query().Get("operator"), r.URL.Query().Get("notes"))

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		writeJSON(w, http.StatusOK, map[string]any{"report": rep})
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.Filename()))
		_, _ = w.Write([]byte(rep.Text()))
	default:
		writeError(w, http.StatusNotAcceptable, "requested format not supported")
	}
}

type exportRequest struct {
	Date            string   `json:"date"`
	Formats         []string `json:"formats"`
	RequestedBy     string   `json:"requested_by"`
	AdditionalNotes string   `json:"additional_notes"`
}

func (h *Handler) handleExports(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/reports/exports" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"exports": h.Exports.ListExports()})
		case http.MethodPost:
			h.handleExportCreate(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(path, "/api/v1/reports/exports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	record, ok := h.Exports.GetExport(id)
	if !ok {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"export": record})
}

func (h *Handler) handleExportCreate(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid export request payload")
		return
	}
	if req.Date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	formats := make([]report.Format, 0, len(req.Formats))
	for _, raw := range req.Formats {
		format, err := report.ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		formats = append(formats, format)
	}
	record, err := h.Exports.EnqueueExport(r.Context(), report.ExportInput{
		Date:            date,
		Formats:         formats,
		RequestedBy:     req.RequestedBy,
		AdditionalNotes: req.AdditionalNotes,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"export": record})
}

// parseDate accepts YYYY-MM-DD dates. An empty string maps to the zero time.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not in YYYY-MM-DD form", raw)
	}
	return parsed, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	var ruleErr domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      ruleErr.Error(),
			"violations": ruleErr.Result.Violations,
		})
		return
	}
	switch domain.KindOf(err) {
	case domain.ErrKindNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case domain.ErrKindExhausted:
		writeError(w, http.StatusConflict, err.Error())
	case domain.ErrKindInvalidQuantity, domain.ErrKindSameSystem:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case domain.ErrKindInvalidInput:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
