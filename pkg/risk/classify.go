package risk

import (
	"fmt"
	"strings"
	"time"
)

// Score thresholds shared by priority and review time. Both are inclusive
// lower bounds.
const (
	MediumThreshold = 5
	HighThreshold   = 10
)

// Priority is the review priority tier of a patient.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Priorities lists all tiers from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) String() string {
	return string(p)
}

// PriorityFor maps a score to its tier.
func PriorityFor(score int) Priority {
	switch {
	case score >= HighThreshold:
		return PriorityHigh
	case score >= MediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ReviewTime is the estimated time a clinician should set aside for a review.
// Its text form is e.g. "20 minutes".
type ReviewTime time.Duration

const (
	ReviewTimeShort    = ReviewTime(10 * time.Minute)
	ReviewTimeStandard = ReviewTime(20 * time.Minute)
	ReviewTimeExtended = ReviewTime(40 * time.Minute)
)

// ReviewTimeFor maps a score to its review time bucket.
func ReviewTimeFor(score int) ReviewTime {
	switch {
	case score >= HighThreshold:
		return ReviewTimeExtended
	case score >= MediumThreshold:
		return ReviewTimeStandard
	default:
		return ReviewTimeShort
	}
}

// Classify returns both the tier and the review time for a score.
func Classify(score int) (Priority, ReviewTime) {
	return PriorityFor(score), ReviewTimeFor(score)
}

// Minutes returns the whole number of minutes.
func (r ReviewTime) Minutes() int {
	return int(time.Duration(r) / time.Minute)
}

func (r ReviewTime) String() string {
	return fmt.Sprintf("%d minutes", r.Minutes())
}

func (r ReviewTime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *ReviewTime) UnmarshalText(b []byte) error {
	var m int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(b)), "%d minutes", &m); err != nil {
		return fmt.Errorf("invalid review time %q: %w", string(b), err)
	}
	*r = ReviewTime(time.Duration(m) * time.Minute)
	return nil
}
