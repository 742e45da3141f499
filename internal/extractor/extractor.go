package extractor

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"sidebyside-backend/internal/model"
	"sidebyside-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const DefaultMinLength = 3

// main content containers of the sphinx and mkdocs themes, most specific first
var contentSelectors = []string{
	`div[role="main"]`,
	"main article",
	"article",
	"main",
	"div.body",
	"div.md-content",
	"body",
}

var (
	breakingHeadingRegex = regexp.MustCompile(`(?i)(breaking|incompatib|\bremov(ed|als?)\b)`)
	breakingItemRegex    = regexp.MustCompile(`(?i)breaking[\s-]+change`)
	breakingMarkerRegex  = regexp.MustCompile(`(?i)(breaking|incompatib)`)
	issueRegex           = regexp.MustCompile(`\(#(\d+)\)`)
)

var defaultSkipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Trino \d+$`),
	regexp.MustCompile(`(?i)^Release \d+`),
	regexp.MustCompile(`(?i)^\d+-e(\.\d+)?\s+(initial\s+)?changes`),
	regexp.MustCompile(`(?i)^See\s+`),
	regexp.MustCompile(`(?i)^For\s+more\s+information`),
	regexp.MustCompile(`(?i)^This\s+release`),
}

// Result is everything Extract could read from a release page.
type Result struct {
	Title       string
	ReleaseDate *time.Time
	Fragments   []model.ParsedFragment
	// Warnings only carry Section and Reason, the caller knows the product
	// and version.
	Warnings []model.ParseWarning
}

// Extractor turns the HTML of a release page into an ordered list of
// change fragments. It is a pure function of its input.
type Extractor struct {
	minLength    int
	skipPatterns []*regexp.Regexp
}

type Option func(*Extractor)

// WithMinLength drops fragments shorter than n runes.
func WithMinLength(n int) Option {
	return func(e *Extractor) {
		e.minLength = n
	}
}

// WithSkipPatterns adds patterns whose matching fragments are dropped.
func WithSkipPatterns(patterns ...*regexp.Regexp) Option {
	return func(e *Extractor) {
		e.skipPatterns = append(e.skipPatterns, patterns...)
	}
}

func New(opts ...Option) Extractor {
	e := Extractor{
		minLength:    DefaultMinLength,
		skipPatterns: append([]*regexp.Regexp{}, defaultSkipPatterns...),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

type headingFrame struct {
	level    int
	text     string
	breaking bool
}

type section struct {
	heading    string
	kind       model.SectionKind
	anchor     string
	items      []token
	paragraphs []token
}

// Extract never fails, anything it cannot interpret becomes a warning.
func (e Extractor) Extract(doc string) Result {
	result := Result{}
	if strings.TrimSpace(doc) == "" {
		result.Warnings = append(result.Warnings, model.ParseWarning{Reason: "empty document"})
		return result
	}

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		result.Warnings = append(result.Warnings, model.ParseWarning{Reason: "unparseable document: " + err.Error()})
		return result
	}
	content := mainContent(root)
	tokens := tokenize(content)

	sections := e.interpret(tokens, &result)
	result.Fragments = e.fragments(sections)

	result.ReleaseDate = ParseReleaseDate(result.Title)
	if result.ReleaseDate == nil {
		body := textutil.CollapseWhitespace(goquery.NewDocumentFromNode(content).Text())
		result.ReleaseDate = ParseReleaseDate(body)
	}

	if len(result.Fragments) == 0 {
		result.Warnings = append(result.Warnings, model.ParseWarning{Reason: "no release notes found"})
	}
	return result
}

func mainContent(root *html.Node) *html.Node {
	doc := goquery.NewDocumentFromNode(root)
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() > 0 {
			return sel.Nodes[0]
		}
	}
	return root
}

// interpret groups the token stream into sections. The first h1 is the page
// title, every later heading opens a section that inherits the breaking
// kind of its enclosing headings.
func (e Extractor) interpret(tokens []token, result *Result) []section {
	current := section{kind: model.SectionTitle}
	var sections []section
	var stack []headingFrame
	sawTitle := false

	for _, tok := range tokens {
		switch tok.kind {
		case tokenHeading:
			if !sawTitle && tok.level == 1 {
				sawTitle = true
				result.Title = tok.text
				if current.anchor == "" {
					current.anchor = tok.anchor
				}
				continue
			}
			sections = append(sections, current)

			for len(stack) > 0 && stack[len(stack)-1].level >= tok.level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingFrame{
				level:    tok.level,
				text:     tok.text,
				breaking: breakingHeadingRegex.MatchString(tok.text),
			})

			kind := model.SectionRegular
			for _, frame := range stack {
				if frame.breaking {
					kind = model.SectionBreaking
				}
			}
			if tok.text == "" {
				result.Warnings = append(result.Warnings, model.ParseWarning{
					Section: tok.anchor,
					Reason:  "heading without text",
				})
			}
			current = section{heading: tok.text, kind: kind, anchor: tok.anchor}
		case tokenItem:
			current.items = append(current.items, tok)
		case tokenParagraph:
			current.paragraphs = append(current.paragraphs, tok)
		}
	}
	return append(sections, current)
}

// fragments emits the list items of every section, sections without any
// list contribute their paragraphs instead. Paragraphs before the first
// section heading are an introduction unless the page has no sections.
func (e Extractor) fragments(sections []section) []model.ParsedFragment {
	var out []model.ParsedFragment
	seen := map[string]bool{}

	for _, s := range sections {
		candidates := s.items
		if len(candidates) == 0 && (s.kind != model.SectionTitle || len(sections) == 1) {
			candidates = s.paragraphs
		}

		for _, tok := range candidates {
			text := textutil.CollapseWhitespace(tok.text)
			if !e.keep(text) {
				continue
			}
			key := textutil.NormalizeText(text)
			if seen[key] {
				continue
			}
			seen[key] = true

			anchor := s.anchor
			if anchor == "" {
				anchor = tok.anchor
			}
			fragment := model.ParsedFragment{
				Text:         text,
				Section:      s.heading,
				SectionKind:  s.kind,
				Anchor:       anchor,
				BreakingHint: breakingItemRegex.MatchString(text) || breakingMarkerRegex.MatchString(tok.emphasis),
			}
			if match := issueRegex.FindStringSubmatch(text); match != nil {
				fragment.IssueNumber = match[1]
			}
			out = append(out, fragment)
		}
	}
	return out
}

func (e Extractor) keep(text string) bool {
	if utf8.RuneCountInString(text) < e.minLength {
		return false
	}
	for _, pattern := range e.skipPatterns {
		if pattern.MatchString(text) {
			return false
		}
	}
	return true
}
