package core

import (
	"sort"
	"time"

	"raizcore/pkg/domain"
)

// GetLot returns a single lot by id.
func (s *Service) GetLot(id string) (Lot, bool) {
	return s.store.GetLot(id)
}

// Lots returns every lot, active and closed, ordered by creation time.
func (s *Service) Lots() []Lot {
	return s.store.ListLots()
}

// ActiveLots returns active lots ordered oldest planting first, the order the
// dashboard presents them in.
func (s *Service) ActiveLots() []Lot {
	return sortByPlanting(filterLots(s.store.ListLots(), func(l Lot) bool {
		return l.State == LotStateActive
	}))
}

// ClosedLots returns closed lots ordered oldest planting first.
func (s *Service) ClosedLots() []Lot {
	return sortByPlanting(filterLots(s.store.ListLots(), func(l Lot) bool {
		return l.State == LotStateClosed
	}))
}

// LotsBySubsystem returns the active lots currently sitting in the given
// sub-system, oldest planting first.
func (s *Service) LotsBySubsystem(subsystem Subsystem) []Lot {
	return sortByPlanting(filterLots(s.store.ListLots(), func(l Lot) bool {
		return l.State == LotStateActive && l.Subsystem == subsystem
	}))
}

// SubsystemCounts sums the current plant count of active lots per sub-system.
func (s *Service) SubsystemCounts() map[Subsystem]int {
	counts := make(map[Subsystem]int, len(domain.Subsystems()))
	for _, subsystem := range domain.Subsystems() {
		counts[subsystem] = 0
	}
	for _, lot := range s.store.ListLots() {
		if lot.State == LotStateActive {
			counts[lot.Subsystem] += lot.CurrentCount
		}
	}
	return counts
}

// Activities returns the whole activity log ordered by occurrence time.
func (s *Service) Activities() []Activity {
	return s.store.ListActivities()
}

// ActivitiesForLot returns the activity trail of one lot.
func (s *Service) ActivitiesForLot(lotID string) []Activity {
	out := make([]Activity, 0, 8)
	for _, a := range s.store.ListActivities() {
		if a.LotID == lotID {
			out = append(out, a)
		}
	}
	return out
}

// ActivitiesOn returns the activities recorded on the given calendar date.
func (s *Service) ActivitiesOn(date time.Time) []Activity {
	out := make([]Activity, 0, 8)
	for _, a := range s.store.ListActivities() {
		if domain.SameDay(a.OccurredAt, date) {
			out = append(out, a)
		}
	}
	return out
}

// LevelReadings returns level readings most recent first, optionally filtered
// by sub-system. An empty subsystem matches all.
func (s *Service) LevelReadings(subsystem Subsystem) []LevelReading {
	readings := s.store.ListLevelReadings()
	out := make([]LevelReading, 0, len(readings))
	for _, r := range readings {
		if subsystem == "" || r.Subsystem == subsystem {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

// LevelReadingsOn returns the level readings recorded on the given date, in
// chronological order.
func (s *Service) LevelReadingsOn(date time.Time) []LevelReading {
	out := make([]LevelReading, 0, 8)
	for _, r := range s.store.ListLevelReadings() {
		if domain.SameDay(r.OccurredAt, date) {
			out = append(out, r)
		}
	}
	return out
}

func filterLots(lots []Lot, keep func(Lot) bool) []Lot {
	out := make([]Lot, 0, len(lots))
	for _, l := range lots {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func sortByPlanting(lots []Lot) []Lot {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PlantedOn.Equal(lots[j].PlantedOn) {
			return lots[i].PlantedOn.Before(lots[j].PlantedOn)
		}
		return lots[i].Code < lots[j].Code
	})
	return lots
}
