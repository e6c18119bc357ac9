// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package textfilter matches user-chosen text (usernames, save names) against
// configurable phrase sets.
package textfilter

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Severity controls when a phrase applies.
type Severity string

// Phrase severities.
const (
	// SeverityInstaMute phrases are always filtered.
	SeverityInstaMute Severity = "instamute"
	// SeverityStrict phrases are filtered only in strict mode.
	SeverityStrict Severity = "strict"
)

// Phrase is a single filtered pattern. Pattern is a case-insensitive glob;
// patterns containing spaces match whole word sequences.
type Phrase struct {
	Pattern  string   `yaml:"pattern"`
	Severity Severity `yaml:"severity"`
	Reason   string   `yaml:"reason,omitempty"`
}

// PhraseSet groups phrases sharing a reason.
type PhraseSet struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Reason      string   `yaml:"reason,omitempty"`
	Phrases     []Phrase `yaml:"phrases"`
}

type document struct {
	Sets []PhraseSet `yaml:"sets"`
}

// Match describes the phrase that caused text to be filtered.
type Match struct {
	Set      string
	Pattern  string
	Reason   string
	Severity Severity
}

type rule struct {
	match    Match
	multi    bool
	compiled glob.Glob
}

// Filter holds compiled phrase sets. It is immutable and safe for concurrent use.
type Filter struct {
	rules []rule
}

//go:embed default_phrases.yaml
var defaultPhrases []byte

// Default returns the filter built from the embedded phrase sets.
func Default() *Filter {
	f, err := Parse(defaultPhrases)
	if err != nil {
		panic(fmt.Sprintf("textfilter: embedded phrase sets are invalid: %v", err))
	}
	return f
}

// LoadFile reads phrase sets from a YAML file.
func LoadFile(path string) (*Filter, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase file: %w", err)
	}
	return Parse(data)
}

// Parse builds a filter from a YAML document with a top-level "sets" list.
func Parse(data []byte) (*Filter, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return New(doc.Sets...)
}

// New compiles the given phrase sets.
func New(sets ...PhraseSet) (*Filter, error) {
	f := &Filter{}
	for _, set := range sets {
		if set.Name == "" {
			return nil, fmt.Errorf("phrase set name is required")
		}
		for i, p := range set.Phrases {
			r, err := compile(set, p)
			if err != nil {
				return nil, fmt.Errorf("set %q phrase %d: %w", set.Name, i, err)
			}
			f.rules = append(f.rules, r)
		}
	}
	return f, nil
}

func compile(set PhraseSet, p Phrase) (rule, error) {
	pattern := strings.Join(strings.Fields(strings.ToLower(p.Pattern)), " ")
	if pattern == "" {
		return rule{}, fmt.Errorf("pattern is empty")
	}

	switch p.Severity {
	case SeverityInstaMute, SeverityStrict:
	case "":
		p.Severity = SeverityInstaMute
	default:
		return rule{}, fmt.Errorf("unknown severity %q", p.Severity)
	}

	reason := p.Reason
	if reason == "" {
		reason = set.Reason
	}

	multi := strings.Contains(pattern, " ")
	expr := pattern
	if multi {
		expr = "* " + pattern + " *"
	}
	compiled, err := glob.Compile(expr)
	if err != nil {
		return rule{}, fmt.Errorf("invalid pattern %q: %w", p.Pattern, err)
	}

	return rule{
		match: Match{
			Set:      set.Name,
			Pattern:  p.Pattern,
			Reason:   reason,
			Severity: p.Severity,
		},
		multi:    multi,
		compiled: compiled,
	}, nil
}

// IsFiltered reports whether text contains a filtered phrase.
func (f *Filter) IsFiltered(text string, strict bool) bool {
	_, ok := f.Find(text, strict)
	return ok
}

// Find returns the first phrase that filters text. Strict mode adds
// strict-severity phrases and also checks the words of text run together.
func (f *Filter) Find(text string, strict bool) (Match, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return Match{}, false
	}
	joined := " " + strings.Join(words, " ") + " "
	collapsed := strings.Join(words, "")

	for _, r := range f.rules {
		if r.match.Severity == SeverityStrict && !strict {
			continue
		}
		if r.multi {
			if r.compiled.Match(joined) {
				return r.match, true
			}
			continue
		}
		for _, w := range words {
			if r.compiled.Match(w) {
				return r.match, true
			}
		}
		if strict && len(words) > 1 && r.compiled.Match(collapsed) {
			return r.match, true
		}
	}
	return Match{}, false
}

// Len returns the number of compiled phrases.
func (f *Filter) Len() int {
	return len(f.rules)
}
