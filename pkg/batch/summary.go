package batch

import (
	"time"

	"github.com/mchmarny/triage/pkg/risk"
)

// Summary aggregates a scored batch for the review queue.
type Summary struct {
	Patients          int                   `json:"patients" yaml:"patients"`
	ByPriority        map[risk.Priority]int `json:"by_priority" yaml:"byPriority"`
	ReviewMinutes     int                   `json:"review_minutes" yaml:"reviewMinutes"`
	UnknownConditions int                   `json:"unknown_conditions" yaml:"unknownConditions"`
	MaxScore          int                   `json:"max_score" yaml:"maxScore"`
}

// ReviewDuration returns the total estimated review time.
func (s *Summary) ReviewDuration() time.Duration {
	return time.Duration(s.ReviewMinutes) * time.Minute
}

// Summarize counts tiers and review time across scored records. Every tier
// is present in ByPriority, even when zero.
func Summarize(scored []ScoredRecord) *Summary {
	s := &Summary{
		Patients:   len(scored),
		ByPriority: make(map[risk.Priority]int, len(risk.Priorities)),
	}
	for _, p := range risk.Priorities {
		s.ByPriority[p] = 0
	}

	for _, r := range scored {
		s.ByPriority[r.Priority]++
		s.ReviewMinutes += r.ReviewTime.Minutes()
		if len(r.Unknown) > 0 {
			s.UnknownConditions++
		}
		if r.Score > s.MaxScore {
			s.MaxScore = r.Score
		}
	}

	return s
}
