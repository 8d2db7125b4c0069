package core

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"raizcore/internal/blob"
	"raizcore/pkg/domain"
	"raizcore/pkg/lotcode"
)

// CreationKind selects how a lot enters the facility.
type CreationKind string

// Lot creation kinds.
const (
	// CreationSowing starts a lot from seed in the germination sub-system.
	CreationSowing CreationKind = "sowing"
	// CreationPurchase registers bought seedlings of a known age.
	CreationPurchase CreationKind = "purchase"
)

// CreateLotInput describes a new root lot.
type CreateLotInput struct {
	Kind     CreationKind
	Variety  string
	Quantity int
	// PlantedOn fixes the planting date explicitly. When zero, sowing lots
	// are planted today and purchased lots derive the date from AgeDays.
	PlantedOn time.Time
	AgeDays   int
	Notes     string
	Operator  string
}

// TransplantInput moves plants from a lot into another sub-system.
type TransplantInput struct {
	LotID    string
	To       Subsystem
	Quantity int
	Notes    string
	Operator string
}

// TransplantOutcome reports the result of a transplant. Split is non-nil only
// for partial transplants, which derive a new sub-lot.
type TransplantOutcome struct {
	Source   Lot
	Split    *Lot
	Activity Activity
}

// HarvestInput records a harvest. Weights are optional and in grams; control
// weights belong to the test plant, lot weights to the whole harvested batch.
type HarvestInput struct {
	LotID                    string
	Quantity                 int
	ControlWeightWithRoot    *float64
	ControlWeightWithoutRoot *float64
	LotWeightWithRoot        *float64
	LotWeightWithoutRoot     *float64
	Notes                    string
	Operator                 string
}

// MortalityInput records plant losses.
type MortalityInput struct {
	LotID    string
	Quantity int
	Cause    string
	Operator string
}

// EvolutionImage is one photo attached to an evolution note.
type EvolutionImage struct {
	Name        string
	ContentType string
	Data        []byte
}

// EvolutionInput records a free-form observation with optional photos.
type EvolutionInput struct {
	LotID    string
	Notes    string
	Images   []EvolutionImage
	Operator string
}

// CreateLot registers a new root lot with a generated month-sequence code and
// appends the corresponding creation activity.
func (s *Service) CreateLot(ctx context.Context, in CreateLotInput) (Lot, Result, error) {
	var created Lot
	var res Result
	err := s.instrument(ctx, "create_lot", in.Operator, EntityLot, func(ctx context.Context) (string, error) {
		if err := s.validateCreateLot(in); err != nil {
			return "", err
		}
		plantedOn, kind := s.resolvePlanting(in)
		subsystem := domain.SubsystemGermination
		if in.Kind == CreationPurchase {
			subsystem = domain.SubsystemPurchased
		}
		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			code := lotcode.Next(plantedOn, tx.Snapshot().ListLots())
			lot, err := tx.CreateLot(Lot{
				Code:         code,
				Variety:      in.Variety,
				State:        LotStateActive,
				Subsystem:    subsystem,
				PlantedOn:    plantedOn,
				InitialCount: in.Quantity,
				CurrentCount: in.Quantity,
				// The trail starts at the planting date, not the day the lot
				// was keyed in: purchased seedlings enter with age already
				// accrued and sub-lots inherit this stay verbatim.
				History:   []SystemStay{{Subsystem: subsystem, EnteredOn: domain.DateOf(plantedOn)}},
				CreatedBy: in.Operator,
			})
			if err != nil {
				return err
			}
			created = lot
			qty := in.Quantity
			activity := Activity{
				LotID:      lot.ID,
				LotCode:    lot.Code,
				Kind:       kind,
				OccurredAt: s.clock(),
				Quantity:   &qty,
				Variety:    &lot.Variety,
				CreatedBy:  in.Operator,
			}
			if in.Notes != "" {
				activity.Notes = &in.Notes
			}
			_, err = tx.AppendActivity(activity)
			return err
		})
		return created.ID, txErr
	})
	return created, res, err
}

func (s *Service) validateCreateLot(in CreateLotInput) error {
	if in.Kind != CreationSowing && in.Kind != CreationPurchase {
		return domain.NewInvalidInput("unknown creation kind %q", in.Kind)
	}
	if in.Variety == "" {
		return domain.NewInvalidInput("variety is required")
	}
	if in.Operator == "" {
		return domain.NewInvalidInput("operator is required")
	}
	if in.Quantity <= 0 {
		return domain.NewInvalidQuantity("quantity must be positive, got %d", in.Quantity)
	}
	if in.Kind == CreationPurchase && in.PlantedOn.IsZero() && in.AgeDays < 0 {
		return domain.NewInvalidInput("seedling age must not be negative, got %d", in.AgeDays)
	}
	return nil
}

func (s *Service) resolvePlanting(in CreateLotInput) (time.Time, ActivityKind) {
	kind := domain.ActivitySowing
	if in.Kind == CreationPurchase {
		kind = domain.ActivityPurchase
	}
	if !in.PlantedOn.IsZero() {
		return domain.DateOf(in.PlantedOn), kind
	}
	if in.Kind == CreationPurchase {
		return lotcode.PlantingDateForAge(in.AgeDays, s.clock()), kind
	}
	return s.today(), kind
}

// Transplant moves plants into another sub-system. Moving every remaining
// plant relocates the lot and extends its history trail; moving part of them
// splits off a lettered sub-lot that inherits the trail, the planting date,
// and a back-reference to its origin.
func (s *Service) Transplant(ctx context.Context, in TransplantInput) (TransplantOutcome, Result, error) {
	var outcome TransplantOutcome
	var res Result
	err := s.instrument(ctx, "transplant_lot", in.Operator, EntityLot, func(ctx context.Context) (string, error) {
		if in.Operator == "" {
			return in.LotID, domain.NewInvalidInput("operator is required")
		}
		if !in.To.Valid() {
			return in.LotID, domain.NewInvalidInput("unknown subsystem %q", in.To)
		}
		today := s.today()

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(in.LotID)
			if !ok {
				return domain.NewNotFound(EntityLot, in.LotID)
			}
			if lot.State != LotStateActive {
				return domain.NewInvalidInput("lot %s is closed", lot.Code)
			}
			if lot.Subsystem == in.To {
				return domain.NewSameSystem(in.To)
			}
			if in.Quantity <= 0 {
				return domain.NewInvalidQuantity("quantity must be positive, got %d", in.Quantity)
			}
			if in.Quantity > lot.CurrentCount {
				return domain.NewInvalidQuantity("quantity %d exceeds current count %d of lot %s", in.Quantity, lot.CurrentCount, lot.Code)
			}

			from := lot.Subsystem
			if in.Quantity == lot.CurrentCount {
				updated, err := tx.UpdateLot(lot.ID, func(l *Lot) error {
					l.History = closeOpenStay(l.History, today)
					l.History = append(l.History, SystemStay{Subsystem: in.To, EnteredOn: today})
					l.Subsystem = in.To
					return nil
				})
				if err != nil {
					return err
				}
				outcome.Source = updated
			} else {
				subCode, err := lotcode.NextSub(lot.Code, tx.Snapshot().ListLots())
				if err != nil {
					return err
				}
				updated, err := tx.UpdateLot(lot.ID, func(l *Lot) error {
					l.CurrentCount -= in.Quantity
					l.TotalSplitOff += in.Quantity
					return nil
				})
				if err != nil {
					return err
				}
				outcome.Source = updated

				history := closeOpenStay(cloneHistory(lot.History), today)
				history = append(history, SystemStay{Subsystem: in.To, EnteredOn: today})
				originID := lot.ID
				split, err := tx.CreateLot(Lot{
					Code:         subCode,
					Variety:      lot.Variety,
					State:        LotStateActive,
					Subsystem:    in.To,
					PlantedOn:    lot.PlantedOn,
					InitialCount: in.Quantity,
					CurrentCount: in.Quantity,
					OriginLotID:  &originID,
					History:      history,
					CreatedBy:    in.Operator,
				})
				if err != nil {
					return err
				}
				outcome.Split = &split
			}

			qty := in.Quantity
			to := in.To
			activity := Activity{
				LotID:         lot.ID,
				LotCode:       lot.Code,
				Kind:          domain.ActivityTransplant,
				OccurredAt:    s.clock(),
				Quantity:      &qty,
				FromSubsystem: &from,
				ToSubsystem:   &to,
				CreatedBy:     in.Operator,
			}
			if in.Notes != "" {
				activity.Notes = &in.Notes
			}
			appended, err := tx.AppendActivity(activity)
			if err != nil {
				return err
			}
			outcome.Activity = appended
			return nil
		})
		return in.LotID, txErr
	})
	return outcome, res, err
}

// Harvest removes harvested plants from a lot and records weight samples.
// The lot's running average weight prefers without-root measurements; the
// with-root figure is only kept when no without-root weight was taken.
func (s *Service) Harvest(ctx context.Context, in HarvestInput) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.instrument(ctx, "harvest_lot", in.Operator, EntityLot, func(ctx context.Context) (string, error) {
		if in.Operator == "" {
			return in.LotID, domain.NewInvalidInput("operator is required")
		}

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(in.LotID)
			if !ok {
				return domain.NewNotFound(EntityLot, in.LotID)
			}
			if lot.State != LotStateActive {
				return domain.NewInvalidInput("lot %s is closed", lot.Code)
			}
			if in.Quantity <= 0 {
				return domain.NewInvalidQuantity("quantity must be positive, got %d", in.Quantity)
			}
			if in.Quantity > lot.CurrentCount {
				return domain.NewInvalidQuantity("quantity %d exceeds current count %d of lot %s", in.Quantity, lot.CurrentCount, lot.Code)
			}

			plantWithRoot := perPlant(in.LotWeightWithRoot, in.Quantity)
			plantWithoutRoot := perPlant(in.LotWeightWithoutRoot, in.Quantity)
			avgWithout := coalesce(plantWithoutRoot, in.ControlWeightWithoutRoot)
			avgWith := coalesce(plantWithRoot, in.ControlWeightWithRoot)

			var err error
			updated, err = tx.UpdateLot(lot.ID, func(l *Lot) error {
				l.CurrentCount -= in.Quantity
				l.TotalHarvested += in.Quantity
				switch {
				case avgWithout != nil:
					l.AvgWeightGrams = avgWithout
					l.WeightWithRoot = false
				case avgWith != nil:
					l.AvgWeightGrams = avgWith
					l.WeightWithRoot = true
				}
				return nil
			})
			if err != nil {
				return err
			}

			qty := in.Quantity
			activity := Activity{
				LotID:                    lot.ID,
				LotCode:                  lot.Code,
				Kind:                     domain.ActivityHarvest,
				OccurredAt:               s.clock(),
				Quantity:                 &qty,
				ControlWeightWithRoot:    in.ControlWeightWithRoot,
				ControlWeightWithoutRoot: in.ControlWeightWithoutRoot,
				LotWeightWithRoot:        in.LotWeightWithRoot,
				LotWeightWithoutRoot:     in.LotWeightWithoutRoot,
				PlantWeightWithRoot:      plantWithRoot,
				PlantWeightWithoutRoot:   plantWithoutRoot,
				CreatedBy:                in.Operator,
			}
			if in.Notes != "" {
				activity.Notes = &in.Notes
			}
			_, err = tx.AppendActivity(activity)
			return err
		})
		return in.LotID, txErr
	})
	return updated, res, err
}

// RecordMortality deducts dead plants from a lot's current count.
func (s *Service) RecordMortality(ctx context.Context, in MortalityInput) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.instrument(ctx, "record_mortality", in.Operator, EntityLot, func(ctx context.Context) (string, error) {
		if in.Operator == "" {
			return in.LotID, domain.NewInvalidInput("operator is required")
		}

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(in.LotID)
			if !ok {
				return domain.NewNotFound(EntityLot, in.LotID)
			}
			if lot.State != LotStateActive {
				return domain.NewInvalidInput("lot %s is closed", lot.Code)
			}
			if in.Quantity <= 0 {
				return domain.NewInvalidQuantity("quantity must be positive, got %d", in.Quantity)
			}
			if in.Quantity > lot.CurrentCount {
				return domain.NewInvalidQuantity("quantity %d exceeds current count %d of lot %s", in.Quantity, lot.CurrentCount, lot.Code)
			}

			var err error
			updated, err = tx.UpdateLot(lot.ID, func(l *Lot) error {
				l.CurrentCount -= in.Quantity
				l.TotalMortality += in.Quantity
				return nil
			})
			if err != nil {
				return err
			}

			qty := in.Quantity
			activity := Activity{
				LotID:      lot.ID,
				LotCode:    lot.Code,
				Kind:       domain.ActivityMortality,
				OccurredAt: s.clock(),
				Quantity:   &qty,
				CreatedBy:  in.Operator,
			}
			if in.Cause != "" {
				activity.Notes = &in.Cause
			}
			_, err = tx.AppendActivity(activity)
			return err
		})
		return in.LotID, txErr
	})
	return updated, res, err
}

// LogEvolution appends an observation activity with optional photos. Photos
// go to the configured blob store; without one they are embedded as base64
// data URLs, matching what small single-node deployments expect.
func (s *Service) LogEvolution(ctx context.Context, in EvolutionInput) (Activity, Result, error) {
	var appended Activity
	var res Result
	err := s.instrument(ctx, "log_evolution", in.Operator, EntityActivity, func(ctx context.Context) (string, error) {
		if in.Operator == "" {
			return "", domain.NewInvalidInput("operator is required")
		}
		if in.Notes == "" && len(in.Images) == 0 {
			return "", domain.NewInvalidInput("evolution entry needs notes or at least one photo")
		}
		lot, ok := s.store.GetLot(in.LotID)
		if !ok {
			return "", domain.NewNotFound(EntityLot, in.LotID)
		}
		if lot.State != LotStateActive {
			return "", domain.NewInvalidInput("lot %s is closed", lot.Code)
		}

		images, err := s.storeImages(ctx, lot.ID, in.Images)
		if err != nil {
			return "", err
		}

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			activity := Activity{
				LotID:      lot.ID,
				LotCode:    lot.Code,
				Kind:       domain.ActivityEvolution,
				OccurredAt: s.clock(),
				Images:     images,
				CreatedBy:  in.Operator,
			}
			if in.Notes != "" {
				activity.Notes = &in.Notes
			}
			var err error
			appended, err = tx.AppendActivity(activity)
			return err
		})
		return appended.ID, txErr
	})
	return appended, res, err
}

// CloseLot retires a lot. Its code stays on record and is never reissued to
// the lot again, but it stops counting toward active-code uniqueness.
func (s *Service) CloseLot(ctx context.Context, lotID, operator string) (Lot, Result, error) {
	var updated Lot
	var res Result
	err := s.instrument(ctx, "close_lot", operator, EntityLot, func(ctx context.Context) (string, error) {
		if operator == "" {
			return lotID, domain.NewInvalidInput("operator is required")
		}
		today := s.today()

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			lot, ok := tx.FindLot(lotID)
			if !ok {
				return domain.NewNotFound(EntityLot, lotID)
			}
			if lot.State == LotStateClosed {
				return domain.NewInvalidInput("lot %s is already closed", lot.Code)
			}
			var err error
			updated, err = tx.UpdateLot(lotID, func(l *Lot) error {
				l.State = LotStateClosed
				l.History = closeOpenStay(l.History, today)
				return nil
			})
			return err
		})
		return lotID, txErr
	})
	return updated, res, err
}

func (s *Service) storeImages(ctx context.Context, lotID string, images []EvolutionImage) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(images))
	for i, img := range images {
		if len(img.Data) == 0 {
			return nil, domain.NewInvalidInput("photo %d is empty", i)
		}
		if s.blobs == nil {
			ct := img.ContentType
			if ct == "" {
				ct = "image/jpeg"
			}
			keys = append(keys, "data:"+ct+";base64,"+base64.StdEncoding.EncodeToString(img.Data))
			continue
		}
		key := fmt.Sprintf("lots/%s/evolution/%d-%02d", lotID, s.clock().UnixNano(), i)
		if _, err := s.blobs.Put(ctx, key, bytes.NewReader(img.Data), blob.PutOptions{ContentType: img.ContentType}); err != nil {
			return nil, fmt.Errorf("store photo %s: %w", img.Name, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func closeOpenStay(history []SystemStay, on time.Time) []SystemStay {
	for i := range history {
		if history[i].Open() {
			exited := on
			history[i].ExitedOn = &exited
		}
	}
	return history
}

func cloneHistory(history []SystemStay) []SystemStay {
	out := make([]SystemStay, len(history))
	for i, stay := range history {
		if stay.ExitedOn != nil {
			exited := *stay.ExitedOn
			stay.ExitedOn = &exited
		}
		out[i] = stay
	}
	return out
}

func perPlant(total *float64, quantity int) *float64 {
	if total == nil || quantity <= 0 {
		return nil
	}
	v := *total / float64(quantity)
	return &v
}

func coalesce(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
