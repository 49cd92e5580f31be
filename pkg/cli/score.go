package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/triage/pkg/batch"
	"github.com/mchmarny/triage/pkg/net"
	"github.com/mchmarny/triage/pkg/risk"
	"github.com/mchmarny/triage/pkg/table"
	"github.com/urfave/cli/v3"
)

const (
	inputFlagName   = "input"
	outputFlagName  = "output"
	workersFlagName = "workers"
	summaryFlagName = "summary"

	stdStream = "-"
	fileMode  = 0600
)

func newScoreCmd() *cli.Command {
	return &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score and prioritise a patient CSV (patient_id and conditions columns)",
		UsageText: `triage score --input patients.csv                        # score with default weights
   triage score --input patients.csv --set diabetes=7        # override a weight
   triage score --input patients.csv --profile winter        # use a saved weight profile
   cat patients.csv | triage score --input - --format json   # read stdin, write JSON`,
		Action: cmdScore,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     inputFlagName,
				Aliases:  []string{"i"},
				Usage:    "Path or http(s) URL of the patient CSV file (- for stdin)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    outputFlagName,
				Aliases: []string{"o"},
				Usage:   fmt.Sprintf("Output file or directory (directory gets %s, default: stdout)", table.DefaultFileName),
			},
			&cli.IntFlag{
				Name:  workersFlagName,
				Usage: "Number of concurrent scoring workers (default: from config, 1)",
			},
			&cli.BoolFlag{
				Name:  summaryFlagName,
				Usage: "Log a per-priority summary after scoring",
			},
		}, weightFlags()...),
	}
}

// ScoreResult is the structured (JSON/YAML) output of the score command.
type ScoreResult struct {
	RunID    string          `json:"run_id" yaml:"runId"`
	Duration string          `json:"duration" yaml:"duration"`
	Weights  map[string]int  `json:"weights" yaml:"weights"`
	Summary  *batch.Summary  `json:"summary" yaml:"summary"`
	Patients []*table.Record `json:"patients" yaml:"patients"`
}

func cmdScore(ctx context.Context, c *cli.Command) error {
	start := time.Now()
	cfg := getConfig(c)
	runID := uuid.NewString()
	log := slog.With("run", runID)

	idx, err := resolveIndex(cfg, c)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(ctx, c, c.String(inputFlagName))
	if err != nil {
		return err
	}
	defer closeIn()

	tbl, err := table.ReadCSV(in)
	if err != nil {
		return fmt.Errorf("reading patient table: %w", err)
	}
	log.Debug("patient table loaded", "rows", tbl.Len(), "columns", len(tbl.Header))

	workers := cfg.Config.Workers
	if c.IsSet(workersFlagName) {
		workers = c.Int(workersFlagName)
	}

	scored, err := batch.ProcessConcurrent(ctx, tbl.Patients(), idx, workers)
	if err != nil {
		return fmt.Errorf("scoring patients: %w", err)
	}

	summary := batch.Summarize(scored)
	if c.Bool(summaryFlagName) || cfg.Debug {
		log.Info("patient scoring complete",
			"patients", summary.Patients,
			"high", summary.ByPriority[risk.PriorityHigh],
			"medium", summary.ByPriority[risk.PriorityMedium],
			"low", summary.ByPriority[risk.PriorityLow],
			"review_time", summary.ReviewDuration().String(),
			"unknown_conditions", summary.UnknownConditions,
		)
	}

	out, closeOut, err := openOutput(c, c.String(outputFlagName))
	if err != nil {
		return err
	}

	if err := writeScored(out, cfg.Format, tbl, scored, &ScoreResult{
		RunID:    runID,
		Duration: since(start),
		Weights:  idx.Weights(),
		Summary:  summary,
	}); err != nil {
		closeOut() //nolint:errcheck // reporting the write error
		return err
	}

	if err := closeOut(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	return nil
}

func writeScored(w io.Writer, format string, tbl *table.Table, scored []batch.ScoredRecord, res *ScoreResult) error {
	if format == formatCSV {
		if err := table.WriteCSV(w, tbl, scored); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}
		return nil
	}

	records, err := table.Records(tbl, scored)
	if err != nil {
		return fmt.Errorf("building results: %w", err)
	}
	res.Patients = records

	if err := encode(w, format, res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	return nil
}

func openInput(ctx context.Context, c *cli.Command, path string) (io.Reader, func(), error) {
	if path == stdStream {
		return getReader(c), func() {}, nil
	}

	if net.IsURL(path) {
		rc, err := net.Open(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening input: %w", err)
		}
		return rc, func() { rc.Close() }, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening input %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func openOutput(c *cli.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == stdStream {
		return getWriter(c), func() error { return nil }, nil
	}

	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, table.DefaultFileName)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("checking output %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output %s: %w", path, err)
	}
	slog.Debug("writing results", "path", path)
	return f, f.Close, nil
}
