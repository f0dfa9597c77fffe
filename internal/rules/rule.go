// File: internal/rules/rule.go
package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/cohort"
	"github.com/xkilldash9x/cohortgraph/internal/config"
)

// Comparator is the binary test a rule applies between a raw value and its threshold.
type Comparator string

const (
	LessThan       Comparator = "<"
	LessOrEqual    Comparator = "<="
	GreaterThan    Comparator = ">"
	GreaterOrEqual Comparator = ">="
	Equal          Comparator = "=="
	NotEqual       Comparator = "!="
)

// ParseComparator accepts the symbolic operators and their short word forms (lt, le, ...).
func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "<", "lt":
		return LessThan, nil
	case "<=", "le", "lte":
		return LessOrEqual, nil
	case ">", "gt":
		return GreaterThan, nil
	case ">=", "ge", "gte":
		return GreaterOrEqual, nil
	case "==", "=", "eq":
		return Equal, nil
	case "!=", "ne":
		return NotEqual, nil
	}
	return "", fmt.Errorf("unknown comparator %q", s)
}

// Holds reports whether v <op> threshold.
func (c Comparator) Holds(v, threshold float64) bool {
	switch c {
	case LessThan:
		return v < threshold
	case LessOrEqual:
		return v <= threshold
	case GreaterThan:
		return v > threshold
	case GreaterOrEqual:
		return v >= threshold
	case Equal:
		return v == threshold
	case NotEqual:
		return v != threshold
	}
	return false
}

// Rule is a compiled bridge rule. It always reads the raw, pre-normalization value.
type Rule struct {
	Name      string
	Source    schemas.NodeType
	Field     cohort.Field
	Op        Comparator
	Threshold float64
	Concept   schemas.ConceptID
	Relation  schemas.RelationType
}

// Key is the typed relation the rule's edges belong to.
func (r Rule) Key() schemas.EdgeKey {
	return schemas.EdgeKey{Src: r.Source, Relation: r.Relation, Dst: schemas.NodeConcept}
}

// Firing is one rule that held for a record.
type Firing struct {
	Rule    string
	Key     schemas.EdgeKey
	Concept schemas.ConceptID
}

// Set is the compiled rule list together with the catalog its rules point into.
type Set struct {
	catalog *Catalog
	rules   []Rule
}

// New compiles the configured catalog and rules.
func New(concepts []config.ConceptConfig, rules []config.RuleConfig) (*Set, error) {
	catalog, err := NewCatalog(concepts)
	if err != nil {
		return nil, err
	}

	s := &Set{catalog: catalog, rules: make([]Rule, 0, len(rules))}
	seen := make(map[string]bool, len(rules))
	for i, rc := range rules {
		r, err := compile(rc, catalog)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rc.Name, err)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rule %d: duplicate rule name %q", i, r.Name)
		}
		seen[r.Name] = true
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// Default compiles the reference catalog and rule set.
func Default() *Set {
	s, err := New(config.DefaultConcepts(), config.DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("reference rule set does not compile: %v", err))
	}
	return s
}

// relationPattern restricts relation names to identifiers usable as property graph
// relationship types.
var relationPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func compile(rc config.RuleConfig, catalog *Catalog) (Rule, error) {
	name := strings.TrimSpace(rc.Name)
	if name == "" {
		return Rule{}, errors.New("name is required")
	}

	var source schemas.NodeType
	var relation schemas.RelationType
	switch schemas.NodeType(strings.ToLower(strings.TrimSpace(rc.Source))) {
	case schemas.NodePatient:
		source, relation = schemas.NodePatient, schemas.RelationHasRisk
	case schemas.NodeVisit:
		source, relation = schemas.NodeVisit, schemas.RelationShowsSignsOf
	default:
		return Rule{}, fmt.Errorf("source must be %q or %q, got %q", schemas.NodePatient, schemas.NodeVisit, rc.Source)
	}
	if rel := strings.TrimSpace(rc.Relation); rel != "" {
		relation = schemas.RelationType(rel)
	}
	if !relationPattern.MatchString(string(relation)) {
		return Rule{}, fmt.Errorf("relation %q must be lower snake case", relation)
	}
	if relation == schemas.RelationHasVisit || relation == schemas.RelationNextVisit {
		return Rule{}, fmt.Errorf("relation %q is reserved for the temporal structure", relation)
	}

	field := cohort.Field(strings.TrimSpace(rc.Field))
	if !cohort.IsNumeric(field) {
		return Rule{}, fmt.Errorf("field %q is not a numeric column", rc.Field)
	}

	op, err := ParseComparator(rc.Op)
	if err != nil {
		return Rule{}, err
	}

	concept, ok := catalog.Lookup(strings.TrimSpace(rc.Concept))
	if !ok {
		return Rule{}, fmt.Errorf("concept %q is not in the catalog", rc.Concept)
	}

	return Rule{
		Name:      name,
		Source:    source,
		Field:     field,
		Op:        op,
		Threshold: rc.Threshold,
		Concept:   concept,
		Relation:  relation,
	}, nil
}

// Catalog returns the concept catalog the rules resolve against.
func (s *Set) Catalog() *Catalog { return s.catalog }

// Rules returns the compiled rules in configuration order.
func (s *Set) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// EdgeKeys lists the distinct relations the rules can produce, in rule order.
func (s *Set) EdgeKeys() []schemas.EdgeKey {
	var keys []schemas.EdgeKey
	seen := make(map[schemas.EdgeKey]bool)
	for _, r := range s.rules {
		k := r.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Evaluate applies every rule declared for source to row. A rule whose field is empty
// does not fire; a field that is present but not a finite number is an error.
func (s *Set) Evaluate(source schemas.NodeType, row cohort.Row) ([]Firing, error) {
	var firings []Firing
	for _, r := range s.rules {
		if r.Source != source {
			continue
		}
		v, err := row.Float(r.Field)
		if err != nil {
			if errors.Is(err, cohort.ErrMissingValue) {
				continue
			}
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		if r.Op.Holds(v, r.Threshold) {
			firings = append(firings, Firing{Rule: r.Name, Key: r.Key(), Concept: r.Concept})
		}
	}
	return firings, nil
}

func (r Rule) String() string {
	return fmt.Sprintf("%s: %s.%s %s %s -> %s", r.Name, r.Source, r.Field, r.Op,
		strconv.FormatFloat(r.Threshold, 'g', -1, 64), r.Relation)
}
