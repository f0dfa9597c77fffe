package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/cohortgraph/internal/config"
)

// CatalogFile is the on-disk shape of a standalone rule catalog.
type CatalogFile struct {
	Concepts []config.ConceptConfig `yaml:"concepts"`
	Rules    []config.RuleConfig    `yaml:"rules"`
}

// ParseFile decodes a rule catalog document. Unknown keys are rejected.
func ParseFile(r io.Reader) (*CatalogFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f CatalogFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rule catalog is empty")
		}
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	if len(f.Concepts) == 0 {
		return nil, fmt.Errorf("rule catalog declares no concepts")
	}
	return &f, nil
}

// LoadFile reads and compiles the rule catalog at path.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog %s: %w", path, err)
	}
	f, err := ParseFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return New(f.Concepts, f.Rules)
}

// FromConfig compiles the effective rule set: the rules_file when one is configured,
// otherwise the concepts and rules sections of the main configuration.
func FromConfig(cfg config.Interface) (*Set, error) {
	if path := cfg.RulesFile(); path != "" {
		return LoadFile(path)
	}
	return New(cfg.Concepts(), cfg.Rules())
}

// Marshal renders the compiled set back into the catalog file format.
func (s *Set) Marshal() ([]byte, error) {
	f := CatalogFile{}
	for _, c := range s.catalog.Concepts() {
		f.Concepts = append(f.Concepts, config.ConceptConfig{ID: int(c.ID), Name: c.Name})
	}
	for _, r := range s.rules {
		f.Rules = append(f.Rules, config.RuleConfig{
			Name:      r.Name,
			Source:    string(r.Source),
			Field:     string(r.Field),
			Op:        string(r.Op),
			Threshold: r.Threshold,
			Concept:   s.catalog.Name(r.Concept),
			Relation:  string(r.Relation),
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
