package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// The in-memory document understands the selector subset the engine's
// targets are written in:
//   - tag: "aside", "div"
//   - .class, .a.b: ".Layout-sidebar"
//   - #id: "#repoboard-similar"
//   - tag[attr], tag[attr=val]: "div[data-pjax]"
//   - descendant combinator: ".Layout-sidebar .BorderGrid-row"

type compound struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrVal string
	hasAttr bool
}

func parseCompound(sel string) compound {
	var c compound

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attr := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		c.hasAttr = true
		if eq := strings.IndexByte(attr, '='); eq >= 0 {
			c.attrKey = attr[:eq]
			c.attrVal = strings.Trim(attr[eq+1:], `"'`)
		} else {
			c.attrKey = attr
		}
	}

	// Split on '.' and '#' while keeping the leading tag.
	for sel != "" {
		next := strings.IndexAny(sel[1:], ".#")
		var part string
		if next < 0 {
			part, sel = sel, ""
		} else {
			part, sel = sel[:next+1], sel[next+1:]
		}
		switch part[0] {
		case '#':
			c.id = part[1:]
		case '.':
			c.classes = append(c.classes, part[1:])
		default:
			c.tag = strings.ToLower(part)
		}
	}
	return c
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && n.Data != c.tag {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	if c.hasAttr {
		v, ok := lookupAttr(n, c.attrKey)
		if !ok {
			return false
		}
		if c.attrVal != "" && v != c.attrVal {
			return false
		}
	}
	return true
}

// querySelector returns the first element under root (root excluded) that
// matches sel in document order, or nil.
func querySelector(root *html.Node, sel string) *html.Node {
	all := querySelectorAll(root, sel)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// querySelectorAll returns every element under root matching sel, in
// document order, without duplicates.
func querySelectorAll(root *html.Node, sel string) []*html.Node {
	parts := strings.Fields(sel)
	if len(parts) == 0 || root == nil {
		return nil
	}
	chain := make([]compound, len(parts))
	for i, p := range parts {
		chain[i] = parseCompound(p)
	}

	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n != root && chain[len(chain)-1].matches(n) && ancestorsMatch(n, root, chain[:len(chain)-1]) {
			out = append(out, n)
		}
	})
	return out
}

// ancestorsMatch checks the descendant combinators right to left.
func ancestorsMatch(n, root *html.Node, chain []compound) bool {
	i := len(chain) - 1
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if p == root {
			break
		}
		if chain[i].matches(p) {
			i--
		}
	}
	return i < 0
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func elementByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
		}
	})
	return found
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
