package voice

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"sidekick/internal/checklist"
)

const (
	DefaultMinClauseLength = 3
	DefaultSourceTag       = "Voice"
)

// Severity is the fixed order in which status keywords are checked. The first
// category with a hit wins, so a later OK word never downgrades a detected
// REPAIR or ATTENTION.
var Severity = []checklist.Status{checklist.StatusRepair, checklist.StatusAttention, checklist.StatusOK}

// rank is a status's position in Severity; lower is more severe.
func rank(s checklist.Status) int {
	for i, v := range Severity {
		if v == s {
			return i
		}
	}
	return len(Severity)
}

// Synonym maps spoken component words onto label fragments: a clause that
// mentions any trigger matches every item whose label contains Fragment.
type Synonym struct {
	Triggers []string `json:"triggers" yaml:"triggers"`
	Fragment string   `json:"fragment" yaml:"fragment"`
}

// Rules is the single table of keywords and synonyms used by the interpreter.
type Rules struct {
	Keywords        map[checklist.Status][]string `json:"keywords"`
	Synonyms        []Synonym                     `json:"synonyms"`
	Conjunctions    []string                      `json:"conjunctions"`
	MinClauseLength int                           `json:"min_clause_length"`
	SourceTag       string                        `json:"source_tag"`
}

// DefaultRules returns the stock rule table.
func DefaultRules() Rules {
	return Rules{
		Keywords: map[checklist.Status][]string{
			checklist.StatusRepair:    {"repair", "bad", "fail", "broken"},
			checklist.StatusAttention: {"caution", "loose", "attention"},
			checklist.StatusOK:        {"ok", "good", "pass"},
		},
		Synonyms: []Synonym{
			{Triggers: []string{"hoist"}, Fragment: "hoist"},
			{Triggers: []string{"trolley"}, Fragment: "trolley"},
			{Triggers: []string{"bridge"}, Fragment: "bridge"},
			{Triggers: []string{"structure", "column"}, Fragment: "column"},
		},
		Conjunctions:    []string{"and", "also", "but"},
		MinClauseLength: DefaultMinClauseLength,
		SourceTag:       DefaultSourceTag,
	}
}

// Validate rejects tables the interpreter cannot use.
func (r Rules) Validate() error {
	for status, words := range r.Keywords {
		if !status.Valid() {
			return fmt.Errorf("keywords for unknown status %q", status)
		}
		for _, w := range words {
			if strings.TrimSpace(w) == "" {
				return fmt.Errorf("empty keyword for status %s", status)
			}
		}
	}
	for i, syn := range r.Synonyms {
		if strings.TrimSpace(syn.Fragment) == "" {
			return fmt.Errorf("synonym %d has empty fragment", i)
		}
		if len(syn.Triggers) == 0 {
			return fmt.Errorf("synonym %q has no triggers", syn.Fragment)
		}
		for _, t := range syn.Triggers {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("synonym %q has empty trigger", syn.Fragment)
			}
		}
	}
	for _, c := range r.Conjunctions {
		if strings.TrimSpace(c) == "" {
			return errors.New("empty conjunction")
		}
	}
	if r.MinClauseLength < 0 {
		return errors.New("min_clause_length must not be negative")
	}
	return nil
}

// compiled holds the regular expressions derived from a rule table.
type compiled struct {
	splitter *regexp.Regexp
	keywords map[checklist.Status]*regexp.Regexp
}

func compile(r Rules) (compiled, error) {
	c := compiled{keywords: map[checklist.Status]*regexp.Regexp{}}
	pattern := `[.,;:!?\n]+`
	if len(r.Conjunctions) > 0 {
		pattern = `(?i)\b(?:` + alternation(r.Conjunctions) + `)\b|` + pattern
	}
	splitter, err := regexp.Compile(pattern)
	if err != nil {
		return c, fmt.Errorf("compile clause splitter: %w", err)
	}
	c.splitter = splitter
	for _, status := range Severity {
		words := r.Keywords[status]
		if len(words) == 0 {
			continue
		}
		// Keywords match at the start of a word so "failed" hits "fail" while "look" misses "ok".
		re, err := regexp.Compile(`(?i)\b(?:` + alternation(words) + `)`)
		if err != nil {
			return c, fmt.Errorf("compile %s keywords: %w", status, err)
		}
		c.keywords[status] = re
	}
	return c, nil
}

func alternation(words []string) string {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(w))))
	}
	return strings.Join(quoted, "|")
}
