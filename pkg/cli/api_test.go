package cli

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mchmarny/triage/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, csv string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(uploadFieldName, "patients.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestScoreAPI_MultipartCSV(t *testing.T) {
	cfg := testAppConfig(t)
	router := makeRouter(cfg)

	body, ct := multipartBody(t, testPatients, map[string]string{"w.asthma": "2"})
	req := httptest.NewRequest(http.MethodPost, "/api/score", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeCSV, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "prioritised_patients.csv")
	assert.Contains(t, w.Body.String(), "patient_id,conditions,site,score,priority,estimated_review_time\n")
	assert.Contains(t, w.Body.String(), "P1,\"Diabetes, asthma, Diabetes \",north,12,High,40 minutes\n")
}

func TestScoreAPI_RawBodyJSON(t *testing.T) {
	cfg := testAppConfig(t)
	router := makeRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/score?format=json&w.gout=7", strings.NewReader(testPatients))
	req.Header.Set("Content-Type", contentTypeCSV)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))

	var res ScoreResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Patients, 4)
	assert.Equal(t, 7, res.Patients[2].Score)
	assert.Equal(t, 7, res.Weights["gout"])
	assert.Equal(t, 0, res.Summary.UnknownConditions)
}

func TestScoreAPI_Profile(t *testing.T) {
	cfg := testAppConfig(t)
	require.NoError(t, data.SaveProfile(cfg.DB, &data.Profile{
		Name:    "winter",
		Weights: map[string]int{"asthma": 6},
	}))
	router := makeRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/score?profile=winter", strings.NewReader("patient_id,conditions\nP1,asthma\n"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "patient_id,conditions,score,priority,estimated_review_time\nP1,asthma,6,Medium,20 minutes\n", w.Body.String())
}

func TestScoreAPI_Errors(t *testing.T) {
	cfg := testAppConfig(t)
	router := makeRouter(cfg)

	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"missing column", "/api/score", "patient_id,notes\nP1,x\n", http.StatusBadRequest},
		{"empty body", "/api/score", "", http.StatusBadRequest},
		{"negative weight", "/api/score?w.asthma=-2", testPatients, http.StatusBadRequest},
		{"bad override", "/api/score?w.asthma=lots", testPatients, http.StatusBadRequest},
		{"unknown profile", "/api/score?profile=nope", testPatients, http.StatusNotFound},
		{"yaml format", "/api/score?format=yaml", testPatients, http.StatusBadRequest},
		{"too many fields", "/api/score", "patient_id,conditions\nP1,asthma,extra\n", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", contentTypeCSV)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			var res map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.NotEmpty(t, res["error"])
		})
	}
}

func TestScoreAPI_MissingUpload(t *testing.T) {
	cfg := testAppConfig(t)
	router := makeRouter(cfg)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("w.asthma", "3"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/score", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreAPI_FormEncodedBody(t *testing.T) {
	router := makeRouter(testAppConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/score", strings.NewReader("patient_id=P1&conditions=asthma"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var res map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Contains(t, res["error"], "unsupported content type")
}

func TestScoreAPI_MethodNotAllowed(t *testing.T) {
	router := makeRouter(testAppConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/api/score", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWeightsAPI(t *testing.T) {
	router := makeRouter(testAppConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/api/weights?w.diabetes=9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var items []*WeightItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 7)
	assert.Equal(t, "diabetes", items[2].Condition)
	assert.Equal(t, 9, items[2].Weight)

	req = httptest.NewRequest(http.MethodGet, "/api/weights?profile=nope", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHomeView(t *testing.T) {
	router := makeRouter(testAppConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `name="w.diabetes"`)
	assert.Contains(t, body, `name="file"`)

	req = httptest.NewRequest(http.MethodGet, "/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, errorStatus(data.ErrProfileNotFound))
	assert.Equal(t, http.StatusBadRequest, errorStatus(errBadRequest))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(assert.AnError))
}
