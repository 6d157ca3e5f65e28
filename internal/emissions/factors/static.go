package factors

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"carbon-scribe/esg-backoffice/accounting-backend/internal/emissions"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the on-disk layout of a factor catalog
type catalogFile struct {
	Version string           `yaml:"version"`
	Factors []EmissionFactor `yaml:"factors"`
}

// StaticCatalog is an immutable, validated set of emission factors
type StaticCatalog struct {
	version string
	factors map[Key]EmissionFactor
}

// DefaultCatalog returns the catalog embedded in the binary
func DefaultCatalog() (*StaticCatalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalogFile reads a catalog from a YAML file on disk
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open factor catalog: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read factor catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog
func ParseCatalog(data []byte) (*StaticCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse factor catalog: %w", err)
	}
	return NewStaticCatalog(file.Version, file.Factors)
}

// NewStaticCatalog validates factors and indexes them by key.
// Duplicate keys are rejected rather than silently overwritten.
func NewStaticCatalog(version string, list []EmissionFactor) (*StaticCatalog, error) {
	c := &StaticCatalog{
		version: version,
		factors: make(map[Key]EmissionFactor, len(list)),
	}
	for i, f := range list {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("factor %d (%s): %w", i, f.ID, err)
		}
		key := f.Key()
		if existing, dup := c.factors[key]; dup {
			return nil, fmt.Errorf("factor %d (%s): duplicate key %s already defined by %s", i, f.ID, key, existing.ID)
		}
		c.factors[key] = f
	}
	return c, nil
}

// Lookup implements FactorSource
func (c *StaticCatalog) Lookup(scope emissions.Scope, category, activityType string) (EmissionFactor, error) {
	key := NewKey(scope, category, activityType)
	f, ok := c.factors[key]
	if !ok {
		return EmissionFactor{}, fmt.Errorf("%w: %s", ErrFactorNotFound, key)
	}
	return f, nil
}

// Version returns the catalog version string
func (c *StaticCatalog) Version() string {
	return c.version
}

// Len returns the number of factors
func (c *StaticCatalog) Len() int {
	return len(c.factors)
}

// List returns every factor ordered by key
func (c *StaticCatalog) List() []EmissionFactor {
	out := make([]EmissionFactor, 0, len(c.factors))
	for _, f := range c.factors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// ForTenant chains a tenant's overrides in front of the static catalog
func (c *StaticCatalog) ForTenant(overrides *OverrideSource) FactorSource {
	if overrides == nil || overrides.Len() == 0 {
		return c
	}
	return Chain(overrides, c)
}
