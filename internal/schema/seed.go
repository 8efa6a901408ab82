package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the YAML form of the schema catalog, loaded by the init command and
// written into the backing store as meta-nodes. After seeding, the store is
// the single source of truth; this file format exists only to bootstrap it.
type Seed struct {
	Version string `yaml:"version"`

	Types []SeedType `yaml:"types"`

	Hierarchies []SeedHierarchy `yaml:"hierarchies"`

	Categories []SeedCategory `yaml:"categories"`
	Questions  []SeedQuestion `yaml:"questions"`

	ConceptTypes []SeedConceptType `yaml:"concept_types"`

	PatternFlags []SeedPatternFlag `yaml:"pattern_flags"`
	Patterns     []SeedPattern     `yaml:"patterns"`

	ExtractionSpecs []SeedExtractionSpec `yaml:"extraction_specs"`
}

type SeedType struct {
	Name       string          `yaml:"name"`
	Kind       TypeKind        `yaml:"kind"`
	Supertype  string          `yaml:"supertype,omitempty"`
	Attributes []SeedAttribute `yaml:"attributes,omitempty"`
}

type SeedAttribute struct {
	Name        string `yaml:"name"`
	ValueKind   string `yaml:"value_kind"`
	Cardinality string `yaml:"cardinality,omitempty"`
	ConceptType string `yaml:"concept_type,omitempty"`
	EntityType  string `yaml:"entity_type,omitempty"`
	NaturalKey  bool   `yaml:"natural_key,omitempty"`
}

type SeedHierarchy struct {
	Name          string `yaml:"name"`
	BaseType      string `yaml:"base_type"`
	AttachmentRel string `yaml:"attachment_rel"`
	ParentType    string `yaml:"parent_type"`
}

type SeedCategory struct {
	Name          string `yaml:"name"`
	Order         int    `yaml:"order"`
	ProvisionType string `yaml:"provision_type"`
}

type SeedQuestion struct {
	QuestionID      string `yaml:"question_id"`
	Text            string `yaml:"text"`
	Category        string `yaml:"category"`
	QuestionOrder   int    `yaml:"question_order"`
	TargetAttribute string `yaml:"target_attribute"`
}

type SeedConceptType struct {
	Name     string        `yaml:"name"`
	Concepts []SeedConcept `yaml:"concepts"`
}

type SeedConcept struct {
	ConceptID string `yaml:"concept_id"`
	Label     string `yaml:"label,omitempty"`
}

type SeedPatternFlag struct {
	Name      string `yaml:"name"`
	PatternID string `yaml:"pattern_id"`
}

type SeedPattern struct {
	PatternID string    `yaml:"pattern_id"`
	Label     string    `yaml:"label"`
	Severity  string    `yaml:"severity"`
	Condition yaml.Node `yaml:"condition"`
}

type SeedExtractionSpec struct {
	MetadataID       string `yaml:"metadata_id"`
	TargetEntityType string `yaml:"target_entity_type"`
	TargetAttribute  string `yaml:"target_attribute,omitempty"`
	Prompt           string `yaml:"prompt"`
	SectionHint      string `yaml:"section_hint,omitempty"`
	Priority         int    `yaml:"priority,omitempty"`
	RequiresContext  bool   `yaml:"requires_context,omitempty"`
}

// LoadSeedDir reads every *.yaml file in dir in lexical order and merges them
// into one Seed. Files are split by concern (types, ontology, patterns) the
// way the original schema was split across TQL files.
func LoadSeedDir(dir string) (*Seed, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("schema: read seed dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("schema: no seed files in %s", dir)
	}

	merged := &Seed{}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("schema: read seed %s: %w", name, err)
		}
		var part Seed
		if err := yaml.Unmarshal(raw, &part); err != nil {
			return nil, fmt.Errorf("schema: parse seed %s: %w", name, err)
		}
		merged.merge(&part)
	}
	if merged.Version == "" {
		return nil, fmt.Errorf("schema: seed is missing a version")
	}
	return merged, nil
}

func (s *Seed) merge(other *Seed) {
	if other.Version != "" {
		s.Version = other.Version
	}
	s.Types = append(s.Types, other.Types...)
	s.Hierarchies = append(s.Hierarchies, other.Hierarchies...)
	s.Categories = append(s.Categories, other.Categories...)
	s.Questions = append(s.Questions, other.Questions...)
	s.ConceptTypes = append(s.ConceptTypes, other.ConceptTypes...)
	s.PatternFlags = append(s.PatternFlags, other.PatternFlags...)
	s.Patterns = append(s.Patterns, other.Patterns...)
	s.ExtractionSpecs = append(s.ExtractionSpecs, other.ExtractionSpecs...)
}

// ConditionJSON renders a seed pattern's condition node as JSON for storage
// on the pattern meta-node.
func (p SeedPattern) ConditionJSON() (string, error) {
	var v interface{}
	if err := p.Condition.Decode(&v); err != nil {
		return "", fmt.Errorf("schema: pattern %s condition: %w", p.PatternID, err)
	}
	return marshalJSON(v)
}
