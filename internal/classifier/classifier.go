package classifier

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"sidebyside-backend/internal/model"
	"sidebyside-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// minimum Jaro-Winkler similarity for a connector name suggestion
const suggestionThreshold = 0.75

type compiledRule struct {
	connector string
	patterns  []*regexp.Regexp
}

// Classifier assigns a canonical connector to every change with an ordered
// rule table, the first matching rule wins and changes matching nothing are
// "general". A Classifier is immutable and safe for concurrent use.
type Classifier struct {
	rules      []compiledRule
	connectors []string
}

// New compiles a rule table. Connector names are canonicalized to their
// kebab form, the same connector may appear in more than one rule.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{}
	seen := map[string]bool{}

	for i, rule := range rules {
		connector := textutil.Slug(rule.Connector)
		if connector == "" {
			return nil, fmt.Errorf("classifier rule %d: connector name is empty", i)
		}
		if connector == model.GeneralConnector {
			return nil, fmt.Errorf("classifier rule %d: %q is reserved", i, model.GeneralConnector)
		}
		if len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("classifier rule %d (%s): no patterns", i, connector)
		}

		compiled := compiledRule{connector: connector}
		for _, pattern := range rule.Patterns {
			re, err := compilePattern(pattern)
			if err != nil {
				return nil, fmt.Errorf("classifier rule %d (%s): %w", i, connector, err)
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		c.rules = append(c.rules, compiled)

		if !seen[connector] {
			seen[connector] = true
			c.connectors = append(c.connectors, connector)
		}
	}
	return c, nil
}

// NewDefault is New(DefaultRules()), which always compiles.
func NewDefault() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if raw, ok := strings.CutPrefix(pattern, "re:"); ok {
		return regexp.Compile("(?i)" + raw)
	}

	words := strings.Fields(strings.ToLower(pattern))
	if len(words) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	expr := strings.Join(quoted, `[\s_-]*`)

	phrase := strings.Join(words, " ")
	first, last := []rune(phrase)[0], []rune(phrase)[len([]rune(phrase))-1]
	if isWordRune(first) {
		expr = `\b` + expr
	}
	if isWordRune(last) {
		expr = expr + `\b`
	}
	return regexp.Compile("(?i)" + expr)
}

// Classify returns the connector of the first rule matching text, or
// "general".
func (c *Classifier) Classify(text string) string {
	for _, rule := range c.rules {
		for _, re := range rule.patterns {
			if re.MatchString(text) {
				return rule.connector
			}
		}
	}
	return model.GeneralConnector
}

// ClassifyFragment classifies by the section heading first, release pages
// usually group changes under a per connector heading, and falls back to the
// change text.
func (c *Classifier) ClassifyFragment(fragment model.ParsedFragment) string {
	if fragment.Section != "" {
		connector := c.Classify(fragment.Section)
		if connector != model.GeneralConnector {
			return connector
		}
	}
	return c.Classify(fragment.Text)
}

// Connectors returns every canonical connector name, in rule order.
func (c *Classifier) Connectors() []string {
	return append([]string{}, c.connectors...)
}

// Lookup resolves a user supplied connector name, such as "Delta Lake" or
// "postgres", to its canonical name.
func (c *Classifier) Lookup(name string) (string, bool) {
	slug := textutil.Slug(name)
	if slug == "" {
		return "", false
	}
	if slug == model.GeneralConnector {
		return slug, true
	}
	for _, connector := range c.connectors {
		if connector == slug {
			return connector, true
		}
	}
	connector := c.Classify(name)
	if connector != model.GeneralConnector {
		return connector, true
	}

	// "TPC_DS" or "LocalFile" name a connector without matching a pattern
	compact := textutil.NormalizeName(name)
	for _, connector := range c.connectors {
		if textutil.NormalizeName(connector) == compact {
			return connector, true
		}
	}
	return "", false
}

// Suggest returns the known connector most similar to name, or "" when
// nothing is close enough. extra names are considered next to the rule
// table, stored connectors from an older rule table for example.
func (c *Classifier) Suggest(name string, extra ...string) string {
	slug := textutil.Slug(name)
	if slug == "" {
		return ""
	}

	candidates := append(c.Connectors(), model.GeneralConnector)
	candidates = append(candidates, extra...)

	var best string
	var bestSimilarity float64
	for _, candidate := range candidates {
		similarity := matchr.JaroWinkler(slug, candidate, false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = candidate
		}
	}
	if bestSimilarity < suggestionThreshold {
		return ""
	}
	return best
}
