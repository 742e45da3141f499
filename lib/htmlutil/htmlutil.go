package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"sidebyside-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tracer = otel.Tracer("sidebyside.lib.htmlutil")

// GetText returns the raw concatenation of every text node under node.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, false)
	return buffer.String()
}

// GetBlockText is GetText but a space is inserted at every block element
// boundary, so "<li>a<ul><li>b</li></ul></li>" reads "a b" instead of "ab".
// The result is whitespace collapsed.
func GetBlockText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, true)
	return textutil.CollapseWhitespace(buffer.String())
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer, blocks bool) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if IsHidden(node) {
			return
		}
	}

	block := blocks && node.Type == html.ElementNode && IsBlock(node.DataAtom)
	if block {
		buffer.WriteByte(' ')
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer, blocks)
	}
	if block {
		buffer.WriteByte(' ')
	}
}

var blockAtoms = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figure: true, atom.Footer: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true,
	atom.Li: true, atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true,
	atom.Pre: true, atom.Section: true, atom.Table: true, atom.Td: true, atom.Th: true,
	atom.Tr: true, atom.Ul: true,
}

func IsBlock(a atom.Atom) bool {
	return blockAtoms[a]
}

// IsHidden reports elements that never carry readable text: scripts,
// styles and sphinx/mkdocs permalink anchors.
func IsHidden(node *html.Node) bool {
	switch node.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg:
		return true
	case atom.A:
		return HasClass(node, "headerlink")
	}
	return false
}

func Attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func HasClass(node *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(node, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

type Anchor struct {
	Name string
	Url  *url.URL
}

// GetAnchors collects every link in sel, resolving relative hrefs against
// base when it is non-nil.
func GetAnchors(ctx context.Context, base *url.URL, sel *goquery.Selection) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := Attr(n, "href")
		if href == "" {
			continue
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		name := textutil.CollapseWhitespace(GetText(n))
		anchors = append(anchors, Anchor{
			Name: name,
			Url:  link,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", link.String()),
		))
	}

	return anchors
}
