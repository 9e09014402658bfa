package suite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSuite = `
name: integration
defaults:
  timeout: 30s
  complexity: 1.5
tests:
  - id: db_setup
    source: tests/test_db.py::test_setup
    complexity: 8
    timeout: 2m
  - id: db_query
    source: tests/test_db.py::test_query
    depends_on: [db_setup]
  - id: api_ping
    source: tests/test_api.py::test_ping
`

func TestParse_AppliesDefaults(t *testing.T) {
	suite, err := Parse([]byte(sampleSuite), log.New())
	require.NoError(t, err)

	assert.Equal(t, "integration", suite.Name)
	require.Len(t, suite.Cases, 3)

	setup := suite.Cases[0]
	assert.Equal(t, "db_setup", setup.ID)
	assert.Equal(t, "tests/test_db.py::test_setup", setup.Source)
	assert.Equal(t, 8.0, setup.Complexity)
	assert.Equal(t, 2*time.Minute, setup.Timeout)

	query := suite.Cases[1]
	assert.Equal(t, 30*time.Second, query.Timeout, "suite default applies when unset")
	assert.Equal(t, 1.5, query.Complexity)
	assert.Equal(t, []string{"db_setup"}, query.DependsOn)

	assert.Empty(t, suite.Cases[2].DependsOn)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errText string
	}{
		{
			name:    "not yaml",
			yaml:    "{{{",
			errText: "failed to parse suite file",
		},
		{
			name:    "missing name",
			yaml:    "tests:\n  - id: a\n",
			errText: "missing a name",
		},
		{
			name:    "no tests",
			yaml:    "name: empty\n",
			errText: "contains no tests",
		},
		{
			name:    "empty id",
			yaml:    "name: s\ntests:\n  - source: x\n",
			errText: "empty id",
		},
		{
			name:    "duplicate id",
			yaml:    "name: s\ntests:\n  - id: a\n  - id: a\n",
			errText: `duplicate test id "a"`,
		},
		{
			name:    "negative timeout",
			yaml:    "name: s\ntests:\n  - id: a\n    timeout: -5s\n",
			errText: "negative timeout",
		},
		{
			name:    "malformed duration",
			yaml:    "name: s\ntests:\n  - id: a\n    timeout: soon\n",
			errText: "invalid duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), log.New())
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.errText)
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSuite), 0o644))

	suite, err := Load(path, log.New())
	require.NoError(t, err)
	assert.Len(t, suite.Cases, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), log.New())
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to read suite file")
}
