package net

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/p.csv"))
	assert.True(t, IsURL("http://localhost:8080/p.csv"))
	assert.False(t, IsURL("patients.csv"))
	assert.False(t, IsURL("-"))
}

func TestGetHTTPClient(t *testing.T) {
	client, err := GetHTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client.Jar)
}

func TestOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patients.csv":
			assert.Equal(t, clientAgent, r.UserAgent())
			w.Write([]byte("patient_id,conditions\nP1,asthma\n"))
		case "/broken.csv":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	rc, err := Open(ctx, srv.URL+"/patients.csv")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "patient_id,conditions\nP1,asthma\n", string(b))

	_, err = Open(ctx, srv.URL+"/missing.csv")
	assert.ErrorIs(t, err, ErrorURLNotFound)

	_, err = Open(ctx, srv.URL+"/broken.csv")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrorURLNotFound)
}

func TestPrintHTTPResponse_Nil(t *testing.T) {
	PrintHTTPResponse(nil)
}
