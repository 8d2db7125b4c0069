package core

import (
	"context"

	"raizcore/pkg/domain"
)

// LevelsInput records a nutrient solution measurement for a sub-system.
// PH, Conductivity, and Temperature are mandatory; Battery is the optional
// sensor charge percentage.
type LevelsInput struct {
	Subsystem    Subsystem
	PH           *float64
	Conductivity *float64
	Temperature  *float64
	Battery      *float64
	Notes        string
	Operator     string
}

// RecordLevels appends a level reading to the append-only measurement log.
func (s *Service) RecordLevels(ctx context.Context, in LevelsInput) (LevelReading, Result, error) {
	var appended LevelReading
	var res Result
	err := s.instrument(ctx, "record_levels", in.Operator, EntityLevelReading, func(ctx context.Context) (string, error) {
		if err := validateLevels(in); err != nil {
			return "", err
		}

		var txErr error
		res, txErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			reading := LevelReading{
				Subsystem:    in.Subsystem,
				OccurredAt:   s.clock(),
				PH:           *in.PH,
				Conductivity: *in.Conductivity,
				Temperature:  *in.Temperature,
				Battery:      in.Battery,
				CreatedBy:    in.Operator,
			}
			if in.Notes != "" {
				reading.Notes = &in.Notes
			}
			var err error
			appended, err = tx.AppendLevelReading(reading)
			return err
		})
		return appended.ID, txErr
	})
	return appended, res, err
}

func validateLevels(in LevelsInput) error {
	if in.Operator == "" {
		return domain.NewInvalidInput("operator is required")
	}
	if !in.Subsystem.Valid() {
		return domain.NewInvalidInput("unknown subsystem %q", in.Subsystem)
	}
	if in.PH == nil {
		return domain.NewInvalidInput("ph is required")
	}
	if *in.PH < 0 || *in.PH > 14 {
		return domain.NewInvalidInput("ph %v is outside 0..14", *in.PH)
	}
	if in.Conductivity == nil {
		return domain.NewInvalidInput("conductivity is required")
	}
	if *in.Conductivity < 0 {
		return domain.NewInvalidInput("conductivity must not be negative")
	}
	if in.Temperature == nil {
		return domain.NewInvalidInput("temperature is required")
	}
	if in.Battery != nil && (*in.Battery < 0 || *in.Battery > 100) {
		return domain.NewInvalidInput("battery %v is outside 0..100", *in.Battery)
	}
	return nil
}
