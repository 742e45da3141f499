package extractor

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"sidebyside-backend/lib/htmlutil"
)

type tokenKind int

const (
	tokenHeading tokenKind = iota
	tokenItem
	tokenParagraph
)

// token is one structural element of a release page, in document order.
type token struct {
	kind   tokenKind
	level  int
	text   string
	anchor string
	// leading bold or emphasized text of an item, "Breaking change:" in
	// "<li><strong>Breaking change:</strong> ...</li>"
	emphasis string
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// tokenize flattens the content under root into a stream of headings, top
// level list items and paragraphs outside of lists. Nested lists are folded
// into the text of the item that contains them.
func tokenize(root *html.Node) []token {
	var out []token
	walk(root, htmlutil.Attr(root, "id"), &out)
	return out
}

func walk(node *html.Node, anchor string, out *[]token) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || htmlutil.IsHidden(child) {
			continue
		}

		switch child.DataAtom {
		case atom.Nav, atom.Header, atom.Footer, atom.Aside, atom.Form, atom.Button, atom.Table, atom.Pre:
			continue
		}

		if level, ok := headingLevels[child.DataAtom]; ok {
			headingAnchor := htmlutil.Attr(child, "id")
			if headingAnchor == "" {
				headingAnchor = anchor
			}
			*out = append(*out, token{
				kind:   tokenHeading,
				level:  level,
				text:   htmlutil.GetBlockText(child),
				anchor: headingAnchor,
			})
			continue
		}

		switch child.DataAtom {
		case atom.Ul, atom.Ol:
			for li := child.FirstChild; li != nil; li = li.NextSibling {
				if li.Type != html.ElementNode || li.DataAtom != atom.Li {
					continue
				}
				itemAnchor := htmlutil.Attr(li, "id")
				if itemAnchor == "" {
					itemAnchor = anchor
				}
				*out = append(*out, token{
					kind:     tokenItem,
					text:     htmlutil.GetBlockText(li),
					anchor:   itemAnchor,
					emphasis: leadingEmphasis(li),
				})
			}
		case atom.P:
			*out = append(*out, token{
				kind:   tokenParagraph,
				text:   htmlutil.GetBlockText(child),
				anchor: anchor,
			})
		default:
			childAnchor := anchor
			if id := htmlutil.Attr(child, "id"); id != "" && (child.DataAtom == atom.Section || child.DataAtom == atom.Div) {
				childAnchor = id
			}
			walk(child, childAnchor, out)
		}
	}
}

// leadingEmphasis returns the text of the strong, b or em element wrapping
// the first visible text of item, if any.
func leadingEmphasis(item *html.Node) string {
	first := firstText(item)
	if first == nil {
		return ""
	}
	for parent := first.Parent; parent != nil && parent != item; parent = parent.Parent {
		switch parent.DataAtom {
		case atom.Strong, atom.B, atom.Em:
			return htmlutil.GetBlockText(parent)
		}
	}
	return ""
}

func firstText(node *html.Node) *html.Node {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.TextNode:
			if htmlutil.GetBlockText(child) != "" {
				return child
			}
		case html.ElementNode:
			if htmlutil.IsHidden(child) {
				continue
			}
			if found := firstText(child); found != nil {
				return found
			}
		}
	}
	return nil
}
