package dedup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := DefaultRegistry()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Version)
	assert.Len(t, r.Tables, 23)
	for _, tbl := range r.Tables {
		assert.Equal(t, "patient_id", tbl.Column)
	}
	assert.Equal(t, DependentTable{Table: "protocols", Column: "patient_id"}, r.Tables[0])
	assert.Equal(t, "hrt_monthly_periods", r.Tables[22].Table)
}

func TestLoadRegistry_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 3
tables:
  - table: visits
  - table: invoices
    column: billed_patient_id
`), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Version)
	assert.Equal(t, []DependentTable{
		{Table: "visits", Column: "patient_id"},
		{Table: "invoices", Column: "billed_patient_id"},
	}, r.Tables)
}

func TestLoadRegistry_EmptyPathUsesDefault(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Len(t, r.Tables, 23)
}

func TestParseRegistry_Invalid(t *testing.T) {
	tests := map[string]string{
		"no version": "tables:\n  - table: visits\n",
		"no tables":  "version: 1\ntables: []\n",
		"bad table":  "version: 1\ntables:\n  - table: \"visits; DROP TABLE patients\"\n",
		"bad column": "version: 1\ntables:\n  - table: visits\n    column: \"patient id\"\n",
		"duplicate":  "version: 1\ntables:\n  - table: visits\n  - table: visits\n    column: patient_id\n",
		"self":       "version: 1\ntables:\n  - table: patients\n",
		"not yaml":   "version: [",
	}
	for name, doc := range tests {
		doc := doc
		t.Run(name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(doc))
			assert.Error(t, err)
		})
	}
}
