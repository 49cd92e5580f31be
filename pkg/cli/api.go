package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mchmarny/triage/pkg/batch"
	"github.com/mchmarny/triage/pkg/config"
	"github.com/mchmarny/triage/pkg/data"
	"github.com/mchmarny/triage/pkg/risk"
	"github.com/mchmarny/triage/pkg/table"
)

const (
	maxUploadBytes       = 32 << 20
	uploadFieldName      = "file"
	weightFieldPrefix    = "w."
	profileQueryParam    = "profile"
	formatQueryParam     = "format"
	contentTypeCSV       = "text/csv"
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
	contentDisposition   = "attachment; filename=\"%s\""
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps a request error to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, data.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, risk.ErrConfiguration),
		errors.Is(err, config.ErrInvalidOverride),
		errors.Is(err, table.ErrMissingColumn),
		errors.Is(err, table.ErrEmpty),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// weightOverrides collects `w.<condition>=N` form or query values.
func weightOverrides(r *http.Request) []string {
	list := make([]string, 0)
	for k, vals := range r.Form {
		if !strings.HasPrefix(k, weightFieldPrefix) || len(vals) == 0 {
			continue
		}
		list = append(list, strings.TrimPrefix(k, weightFieldPrefix)+"="+vals[len(vals)-1])
	}
	sort.Strings(list)
	return list
}

func requestIndex(cfg *appConfig, r *http.Request) (*risk.Index, error) {
	layers, err := overrideLayers(cfg.DB, cfg.Config, "", r.Form.Get(profileQueryParam), weightOverrides(r))
	if err != nil {
		return nil, err
	}
	return buildIndex(layers)
}

// requestCSV returns the uploaded CSV from a multipart `file` field or the
// raw request body. Url-encoded form bodies are rejected. Form values are
// parsed as a side effect.
func requestCSV(r *http.Request) (io.Reader, func(), error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == contentTypeForm {
		return nil, nil, fmt.Errorf("%w: unsupported content type %q, send text/csv or multipart/form-data", errBadRequest, mt)
	}
	if mt == contentTypeMultipart {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, nil, fmt.Errorf("%w: invalid multipart form: %w", errBadRequest, err)
		}
		f, _, err := r.FormFile(uploadFieldName)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: missing %q upload: %w", errBadRequest, uploadFieldName, err)
		}
		return f, func() { f.Close() }, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid query: %w", errBadRequest, err)
	}
	return r.Body, func() {}, nil
}

func weightsAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid query")
			return
		}

		idx, err := requestIndex(cfg, r)
		if err != nil {
			slog.Error("failed to resolve weights", "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, indexItems(idx))
	}
}

func scoreAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		runID := uuid.NewString()
		log := slog.With("run", runID)

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

		in, closeIn, err := requestCSV(r)
		if err != nil {
			log.Error("failed to read upload", "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}
		defer closeIn()

		format, err := parseFormat(r.Form.Get(formatQueryParam), formatCSV)
		if err != nil || format == formatYAML {
			writeError(w, http.StatusBadRequest, "unsupported format, valid: csv, json")
			return
		}

		idx, err := requestIndex(cfg, r)
		if err != nil {
			log.Error("failed to resolve weights", "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}

		tbl, err := table.ReadCSV(in)
		if err != nil {
			log.Error("failed to read patient table", "error", err)
			status := errorStatus(err)
			if status == http.StatusInternalServerError {
				// anything else the CSV reader rejects is malformed input
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}

		scored, err := batch.ProcessConcurrent(r.Context(), tbl.Patients(), idx, cfg.Config.Workers)
		if err != nil {
			log.Error("failed to score patients", "error", err)
			writeError(w, http.StatusInternalServerError, "scoring canceled")
			return
		}

		summary := batch.Summarize(scored)
		log.Info("patient scoring complete", "patients", summary.Patients, "high", summary.ByPriority[risk.PriorityHigh])

		if format == formatCSV {
			w.Header().Set("Content-Type", contentTypeCSV)
			w.Header().Set("Content-Disposition", fmt.Sprintf(contentDisposition, table.DefaultFileName))
			if err := table.WriteCSV(w, tbl, scored); err != nil {
				log.Error("failed to write results", "error", err)
			}
			return
		}

		records, err := table.Records(tbl, scored)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, &ScoreResult{
			RunID:    runID,
			Duration: since(start),
			Weights:  idx.Weights(),
			Summary:  summary,
			Patients: records,
		})
	}
}
