package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mchmarny/triage/pkg/config"
	"github.com/mchmarny/triage/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPatients = `patient_id,conditions,site
P1,"Diabetes, asthma, Diabetes ",north
P2,,south
P3,"gout",north
P4,"hypertension,asthma",east
`

func TestMain(m *testing.M) {
	initLogging(os.Stderr, false)
	os.Exit(m.Run())
}

// runApp runs the CLI against a temp config dir and returns stdout.
func runApp(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.Reader = strings.NewReader(stdin)

	full := append([]string{appName, "--config", dir}, args...)
	err := app.Run(context.Background(), full)
	return out.String(), err
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func testAppConfig(t *testing.T) *appConfig {
	t.Helper()
	dir := t.TempDir()
	conf, err := config.ReadOrCreate(dir)
	require.NoError(t, err)

	dbPath := filepath.Join(dir, data.DataFileName)
	require.NoError(t, data.Init(dbPath))
	db, err := data.GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &appConfig{Dir: dir, DBPath: dbPath, Format: formatCSV, Config: conf, DB: db}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		flag, conf, want string
		wantErr          bool
	}{
		{"", "", formatCSV, false},
		{"", "json", formatJSON, false},
		{"yaml", "json", formatYAML, false},
		{"yml", "", formatYAML, false},
		{"xml", "", "", true},
	}

	for _, tt := range tests {
		got, err := parseFormat(tt.flag, tt.conf)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestApp_CreatesConfigAndDB(t *testing.T) {
	dir := t.TempDir()
	_, err := runApp(t, dir, "", "weights", "list")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, config.ConfigFileName))
	assert.FileExists(t, filepath.Join(dir, data.DataFileName))
}

func TestApp_InvalidFormat(t *testing.T) {
	_, err := runApp(t, t.TempDir(), "", "--format", "xml", "weights", "list")
	assert.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
