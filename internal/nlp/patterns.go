package nlp

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var patternsYAML []byte

type patternTable struct {
	Entities []entitySpec `yaml:"entities"`
}

type entitySpec struct {
	Type           string   `yaml:"type"`
	BaseConfidence float64  `yaml:"base_confidence"`
	Markers        []string `yaml:"markers"`
	Patterns       []string `yaml:"patterns"`
}

// entityMatcher holds the compiled recognition patterns for one entity type.
type entityMatcher struct {
	entityType     string
	baseConfidence float64
	markers        []string
	patterns       []*regexp.Regexp
}

// loadMatchers parses and compiles the embedded pattern table. The
// resulting slice preserves table order, which fixes extraction order
// and keeps the processor deterministic.
func loadMatchers() ([]entityMatcher, error) {
	var table patternTable
	if err := yaml.Unmarshal(patternsYAML, &table); err != nil {
		return nil, fmt.Errorf("parse pattern table: %w", err)
	}

	matchers := make([]entityMatcher, 0, len(table.Entities))
	for _, spec := range table.Entities {
		m := entityMatcher{
			entityType:     spec.Type,
			baseConfidence: spec.BaseConfidence,
			markers:        spec.Markers,
		}
		for _, p := range spec.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile pattern %q for %s: %w", p, spec.Type, err)
			}
			m.patterns = append(m.patterns, re)
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

// hasMarker reports whether any type-specific marker word appears in
// the lowercased query.
func (m *entityMatcher) hasMarker(lowerQuery string) bool {
	for _, marker := range m.markers {
		if containsWord(lowerQuery, marker) {
			return true
		}
	}
	return false
}

// containsWord matches whole words only, so "assignment" does not count
// as "assign".
func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
