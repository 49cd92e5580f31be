package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/triage/pkg/risk"
	"golang.org/x/sync/errgroup"
)

// PatientRecord is one input row.
type PatientRecord struct {
	PatientID     string   `json:"patient_id" yaml:"patientId"`
	RawConditions string   `json:"raw_conditions" yaml:"rawConditions"`
	Conditions    []string `json:"conditions" yaml:"conditions"`
}

// NewPatientRecord derives the normalized conditions from raw.
func NewPatientRecord(id, raw string) PatientRecord {
	return PatientRecord{
		PatientID:     id,
		RawConditions: raw,
		Conditions:    risk.ParseConditions(raw),
	}
}

// ScoredRecord is a PatientRecord with its derived classification.
type ScoredRecord struct {
	PatientRecord `yaml:",inline"`
	Score         int             `json:"score" yaml:"score"`
	Priority      risk.Priority   `json:"priority" yaml:"priority"`
	ReviewTime    risk.ReviewTime `json:"estimated_review_time" yaml:"estimatedReviewTime"`
	Unknown       []string        `json:"unknown_conditions,omitempty" yaml:"unknownConditions,omitempty"`
}

// ScoreRecord scores a single record. Conditions are re-derived from the raw
// field when the record was built without them.
func ScoreRecord(p PatientRecord, idx *risk.Index) ScoredRecord {
	if p.Conditions == nil {
		p.Conditions = risk.ParseConditions(p.RawConditions)
	}

	score := risk.Score(p.Conditions, idx)
	priority, review := risk.Classify(score)

	return ScoredRecord{
		PatientRecord: p,
		Score:         score,
		Priority:      priority,
		ReviewTime:    review,
		Unknown:       risk.Unknown(p.Conditions, idx),
	}
}

// Process scores every record in order. The result has the same length and
// order as patients and is never nil.
func Process(patients []PatientRecord, idx *risk.Index) []ScoredRecord {
	list := make([]ScoredRecord, len(patients))
	for i, p := range patients {
		list[i] = ScoreRecord(p, idx)
	}
	return list
}

// ProcessConcurrent is Process spread over up to workers goroutines.
// Output order matches input order. Workers below 2 fall back to Process.
func ProcessConcurrent(ctx context.Context, patients []PatientRecord, idx *risk.Index, workers int) ([]ScoredRecord, error) {
	if workers < 2 || len(patients) < 2 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("processing canceled: %w", err)
		}
		return Process(patients, idx), nil
	}

	slog.Debug("processing patients concurrently", "patients", len(patients), "workers", workers)

	list := make([]ScoredRecord, len(patients))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range patients {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// each goroutine owns exactly one slot
			list[i] = ScoreRecord(patients[i], idx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("processing canceled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("processing canceled: %w", err)
	}

	return list, nil
}
