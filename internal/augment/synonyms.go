package augment

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// synonymsFile is the on-disk expansion format:
//
//	synonyms:
//	  authentication: [login, oauth, sso]
type synonymsFile struct {
	Synonyms map[string][]string `yaml:"synonyms"`
}

// Expander injects known related terms for recognized domain phrases
// before retrieval. Expansion is bounded per matched phrase so a short
// query cannot balloon into something the embedding no longer represents.
type Expander struct {
	groups   []synonymGroup
	maxTerms int
}

type synonymGroup struct {
	phrase string
	terms  []string
}

// defaultSynonyms covers phrases common in assistant prompts. A loaded
// file extends or overrides these per phrase.
func defaultSynonyms() map[string][]string {
	return map[string][]string{
		"authentication": {"login", "oauth", "credentials"},
		"database":       {"sql", "schema", "query"},
		"deploy":         {"deployment", "release", "rollout"},
		"error":          {"failure", "exception", "bug"},
		"kubernetes":     {"k8s", "cluster", "pod"},
		"performance":    {"latency", "slow", "optimization"},
		"refactor":       {"restructure", "cleanup", "rewrite"},
		"test":           {"testing", "unit test", "coverage"},
	}
}

// NewExpander builds an expander from the built-in synonym groups.
func NewExpander(maxTerms int) *Expander {
	return newExpander(defaultSynonyms(), maxTerms)
}

// LoadExpander merges a yaml synonyms file over the built-in groups. A
// missing file is not an error; the defaults apply alone.
func LoadExpander(path string, maxTerms int) (*Expander, error) {
	groups := defaultSynonyms()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("read synonyms file: %w", err)
		default:
			var file synonymsFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("parse synonyms file: %w", err)
			}
			for phrase, terms := range file.Synonyms {
				groups[strings.ToLower(phrase)] = terms
			}
		}
	}
	return newExpander(groups, maxTerms), nil
}

func newExpander(groups map[string][]string, maxTerms int) *Expander {
	if maxTerms <= 0 {
		maxTerms = 4
	}
	phrases := make([]string, 0, len(groups))
	for phrase := range groups {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	e := &Expander{maxTerms: maxTerms}
	for _, phrase := range phrases {
		terms := make([]string, 0, len(groups[phrase]))
		for _, t := range groups[phrase] {
			t = strings.TrimSpace(strings.ToLower(t))
			if t != "" && t != phrase {
				terms = append(terms, t)
			}
		}
		if len(terms) > 0 {
			e.groups = append(e.groups, synonymGroup{phrase: strings.ToLower(phrase), terms: terms})
		}
	}
	return e
}

// Expand appends related terms for each phrase found in the query. Terms
// already present are skipped, and each matched phrase contributes at
// most maxTerms additions. The original query text is never altered, only
// suffixed.
func (e *Expander) Expand(query string) string {
	if e == nil || strings.TrimSpace(query) == "" {
		return query
	}
	lower := strings.ToLower(query)
	var additions []string
	for _, g := range e.groups {
		if !strings.Contains(lower, g.phrase) {
			continue
		}
		added := 0
		for _, term := range g.terms {
			if added == e.maxTerms {
				break
			}
			if strings.Contains(lower, term) {
				continue
			}
			additions = append(additions, term)
			lower += " " + term
			added++
		}
	}
	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}
