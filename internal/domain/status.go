package domain

import (
	"fmt"
	"sort"
)

// Status is the traffic-light verdict stored on every summary.
type Status string

const (
	// StatusGrey marks a period with no measured days.
	StatusGrey Status = "grey"
	// StatusNeutral marks a period with data but no target (or no bands).
	StatusNeutral Status = "neutral"
	StatusRed     Status = "red"
	StatusYellow  Status = "yellow"
	StatusGreen   Status = "green"
)

// rank orders the banded statuses; a higher rank is a better band.
func (s Status) rank() int {
	switch s {
	case StatusRed:
		return 1
	case StatusYellow:
		return 2
	case StatusGreen:
		return 3
	}
	return 0
}

// Banded reports whether s can appear in a BandSet.
func (s Status) Banded() bool { return s.rank() > 0 }

// Band maps every achievement percentage >= MinAchievement to Status.
type Band struct {
	MinAchievement float64 `json:"min_achievement" yaml:"min_achievement"`
	Status         Status  `json:"status" yaml:"status"`
}

// BandSet is an ordered list of bands. Cut points are configuration; the
// engine only relies on the mapping being monotonic.
type BandSet []Band

// Normalize returns a copy sorted by MinAchievement, highest first.
func (b BandSet) Normalize() BandSet {
	out := make(BandSet, len(b))
	copy(out, b)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinAchievement > out[j].MinAchievement
	})
	return out
}

// Validate checks that every status is bandable, cut points are distinct and
// a higher cut point never maps to a worse status.
func (b BandSet) Validate() error {
	sorted := b.Normalize()
	for i, band := range sorted {
		if !band.Status.Banded() {
			return fmt.Errorf("band %d: status %q cannot be used in a band", i, band.Status)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.MinAchievement == band.MinAchievement {
			return fmt.Errorf("duplicate band cut point %.2f", band.MinAchievement)
		}
		if band.Status.rank() > prev.Status.rank() {
			return fmt.Errorf("band at %.2f (%s) ranks above band at %.2f (%s)",
				band.MinAchievement, band.Status, prev.MinAchievement, prev.Status)
		}
	}
	return nil
}

// Classify returns the first band (highest cut point first) whose cut point
// is not above achievement. Values below every cut point fall into the
// lowest band. An empty set classifies everything as neutral.
func (b BandSet) Classify(achievement float64) Status {
	sorted := b.Normalize()
	if len(sorted) == 0 {
		return StatusNeutral
	}
	for _, band := range sorted {
		if achievement >= band.MinAchievement {
			return band.Status
		}
	}
	return sorted[len(sorted)-1].Status
}

// ResolveStatus applies the ordered status rules: grey without data, neutral
// without a target, otherwise the band for the achievement percentage.
func ResolveStatus(completedDays int, hasTarget bool, achievement float64, bands BandSet) Status {
	if completedDays == 0 {
		return StatusGrey
	}
	if !hasTarget {
		return StatusNeutral
	}
	return bands.Classify(achievement)
}

// Achievement returns actual/planned*100 and whether it is defined.
func Achievement(actual, planned float64, hasPlan bool) (float64, bool) {
	if !hasPlan || planned == 0 {
		return 0, false
	}
	return actual / planned * 100, true
}

// ChangeVerdict compares a value against a reference period.
type ChangeVerdict string

const (
	ChangeBetter ChangeVerdict = "better"
	ChangeWorse  ChangeVerdict = "worse"
	ChangeSame   ChangeVerdict = "same"
)

// CompareTo returns the percent change from reference to current (0 when the
// reference is not positive) and the direction of the change.
func CompareTo(current, reference float64) (float64, ChangeVerdict) {
	diff := current - reference
	verdict := ChangeSame
	if diff > 0 {
		verdict = ChangeBetter
	} else if diff < 0 {
		verdict = ChangeWorse
	}
	if reference <= 0 {
		return 0, verdict
	}
	return diff / reference * 100, verdict
}
