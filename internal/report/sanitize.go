package report

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// strippedAttrs are presentation-only and never part of a fingerprint.
var strippedAttrs = map[string]struct{}{
	"style": {},
	"title": {},
	"href":  {},
}

// Sanitize reduces an HTML fragment to a stable fingerprint input. Script and
// style elements, comments, presentation attributes and event handlers are
// dropped, the remaining attributes are sorted, and whitespace (including
// NBSP) is collapsed. Markup that differs only in those respects yields the
// same string.
func Sanitize(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), bodyNode())
	if err != nil {
		return collapseSpace(fragment)
	}
	root := bodyNode()
	for _, n := range nodes {
		root.AppendChild(n)
	}

	goquery.NewDocumentFromNode(root).Find("script, style").Remove()
	cleanChildren(root)

	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&b, c); err != nil {
			return collapseSpace(fragment)
		}
	}
	return b.String()
}

func bodyNode() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func cleanChildren(parent *html.Node) {
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			parent.RemoveChild(c)
		case html.TextNode:
			c.Data = collapseRuns(c.Data)
			if strings.TrimSpace(c.Data) == "" {
				parent.RemoveChild(c)
			}
		case html.ElementNode:
			c.Attr = cleanAttrs(c.Attr)
			cleanChildren(c)
		}
		c = next
	}
	if first := parent.FirstChild; first != nil && first.Type == html.TextNode {
		first.Data = strings.TrimLeft(first.Data, " ")
	}
	if last := parent.LastChild; last != nil && last.Type == html.TextNode {
		last.Data = strings.TrimRight(last.Data, " ")
	}
}

func cleanAttrs(attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if _, drop := strippedAttrs[key]; drop || strings.HasPrefix(key, "on") {
			continue
		}
		a.Key = key
		a.Val = collapseSpace(a.Val)
		kept = append(kept, a)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Namespace != kept[j].Namespace {
			return kept[i].Namespace < kept[j].Namespace
		}
		return kept[i].Key < kept[j].Key
	})
	return kept
}

// collapseRuns maps NBSP to a space and squeezes whitespace runs to one space.
func collapseRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\u00a0' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func collapseSpace(s string) string {
	return strings.TrimSpace(collapseRuns(strings.ReplaceAll(s, "&nbsp;", " ")))
}
