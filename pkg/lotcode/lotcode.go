// Package lotcode implements the lot identifier scheme: month-scoped
// sequential codes such as "Jun-01" and letter-suffixed sub-lot codes such as
// "Jun-01-A". All functions are pure; callers pass the lot population the
// code must be unique within.
package lotcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"raizcore/pkg/domain"
)

// Spanish month abbreviations used as lot code prefixes. March is "Mzo" to
// avoid colliding with May ("May").
var monthAbbrev = [12]string{"Ene", "Feb", "Mzo", "Abr", "May", "Jun", "Jul", "Ago", "Sep", "Oct", "Nov", "Dic"}

const subLotLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MonthAbbrev returns the Spanish abbreviation for m.
func MonthAbbrev(m time.Month) string {
	return monthAbbrev[int(m)-1]
}

// Next computes the code for a new root lot planted on plantedOn. The
// sequence number is the lowest positive integer not taken by an active root
// lot of the same planting month and year, so a freed gap (01, 03 active)
// yields 02. Codes of closed lots are never reclaimed by callers because
// uniqueness is checked against active lots only; the same numeral may
// therefore reappear across seasons but never among concurrently active lots
// of one month cohort.
func Next(plantedOn time.Time, lots []domain.Lot) string {
	prefix := MonthAbbrev(plantedOn.Month()) + "-"
	taken := make(map[int]bool)
	for _, lot := range lots {
		if lot.State != domain.LotStateActive {
			continue
		}
		if lot.PlantedOn.Year() != plantedOn.Year() || lot.PlantedOn.Month() != plantedOn.Month() {
			continue
		}
		suffix, ok := strings.CutPrefix(lot.Code, prefix)
		if !ok || strings.Contains(suffix, "-") {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil && n > 0 {
			taken[n] = true
		}
	}
	n := 1
	for taken[n] {
		n++
	}
	return fmt.Sprintf("%s%02d", prefix, n)
}

// NextSub computes the code for a sub-lot split off from the lot identified
// by rootCode. Letters are assigned in order A through Z; the first letter
// whose code is not carried by any existing lot wins. Sub-lots of sub-lots
// chain suffixes, so splitting "Jun-01-A" yields "Jun-01-A-A". The letter
// space is capped at 26 per parent.
func NextSub(rootCode string, lots []domain.Lot) (string, error) {
	existing := make(map[string]bool, len(lots))
	for _, lot := range lots {
		existing[lot.Code] = true
	}
	for _, letter := range subLotLetters {
		candidate := rootCode + "-" + string(letter)
		if !existing[candidate] {
			return candidate, nil
		}
	}
	return "", domain.NewExhausted(rootCode, "all 26 sub-lot letters of %s are taken", rootCode)
}

// PlantingDateForAge derives the planting date of purchased seedlings from
// their age in days, relative to now. The result carries no time component.
func PlantingDateForAge(ageDays int, now time.Time) time.Time {
	return domain.DateOf(now).AddDate(0, 0, -ageDays)
}
