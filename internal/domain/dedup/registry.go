package dedup

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clinicops/identity/internal/platform/db"
)

const defaultColumn = "patient_id"

//go:embed dependents.yaml
var defaultRegistry []byte

// DependentTable is a table whose Column references patients.id.
type DependentTable struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column,omitempty" json:"column"`
}

func (t DependentTable) String() string { return t.Table + "." + t.Column }

// Registry is the versioned list of dependent tables the merge repoints.
type Registry struct {
	Version int              `yaml:"version" json:"version"`
	Tables  []DependentTable `yaml:"tables" json:"tables"`
}

// DefaultRegistry returns the registry compiled into the binary.
func DefaultRegistry() (*Registry, error) {
	return ParseRegistry(defaultRegistry)
}

// LoadRegistry reads a registry file, or the default when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	r, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return r, nil
}

func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for i := range r.Tables {
		if r.Tables[i].Column == "" {
			r.Tables[i].Column = defaultColumn
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Registry) Validate() error {
	if r.Version < 1 {
		return errors.New("registry version must be >= 1")
	}
	if len(r.Tables) == 0 {
		return errors.New("registry lists no tables")
	}
	seen := make(map[DependentTable]bool, len(r.Tables))
	for _, t := range r.Tables {
		if !db.ValidIdentifier(t.Table) {
			return fmt.Errorf("invalid table name %q", t.Table)
		}
		if !db.ValidIdentifier(t.Column) {
			return fmt.Errorf("invalid column name %q for table %s", t.Column, t.Table)
		}
		if t.Table == "patients" {
			return errors.New("patients cannot be its own dependent")
		}
		if seen[t] {
			return fmt.Errorf("duplicate entry %s", t)
		}
		seen[t] = true
	}
	return nil
}
