package mount

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/augment/content"
)

// summaryRunes is the visible length of a summary before the ellipsis.
const summaryRunes = 100

// Remote names and summaries are untrusted: the strict policy strips every
// tag, and the html renderer escapes what is left.
var textPolicy = bluemonday.StrictPolicy()

const stylesheet = `
.repoboard-repo-item {
  padding: 8px 0;
  border-bottom: 1px solid #e1e4e8;
}
.repoboard-repo-item:last-child {
  border-bottom: none;
}
.repoboard-repo-item a {
  text-decoration: none;
}
.repoboard-repo-item a:hover {
  text-decoration: underline;
}
`

// renderPanel builds the panel markup for at most max items and returns the
// number of rows rendered.
func renderPanel(markerID, serviceURL string, items []content.SearchResult, max int) (string, int, error) {
	if len(items) > max {
		items = items[:max]
	}

	root := el("div", "id", markerID, "class", "BorderGrid-row")
	cell := el("div", "class", "BorderGrid-cell")
	root.AppendChild(cell)

	h := el("h2", "class", "h4 mb-3")
	h.AppendChild(text("🔍 Similar Repositories"))
	cell.AppendChild(h)

	list := el("div", "class", "repoboard-repos")
	cell.AppendChild(list)

	for _, it := range items {
		list.AppendChild(renderItem(it))
	}

	if link, ok := safeHref(serviceLink(serviceURL)); ok {
		a := el("a", "href", link, "target", "_blank", "rel", "noopener noreferrer", "class", "btn btn-sm mt-2")
		a.AppendChild(text("View on RepoBoard →"))
		cell.AppendChild(a)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", 0, err
	}
	return buf.String(), len(items), nil
}

func renderItem(it content.SearchResult) *html.Node {
	row := el("div", "class", "repoboard-repo-item")

	name := plainText(it.Repo.FullName)
	if name == "" {
		name = plainText(it.Repo.Name)
	}

	var label *html.Node
	if href, ok := safeHref(it.Repo.URL); ok {
		label = el("a", "href", href, "target", "_blank", "rel", "noopener noreferrer", "class", "text-bold")
	} else {
		label = el("span", "class", "text-bold")
	}
	label.AppendChild(text(name))
	row.AppendChild(label)

	if it.Summary != nil {
		if s := plainText(it.Summary.Summary); s != "" {
			p := el("p", "class", "text-small color-fg-muted")
			p.AppendChild(text(truncate(s, summaryRunes)))
			row.AppendChild(p)
		}
	}
	return row
}

// plainText reduces untrusted input to text content.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}

// safeHref accepts absolute http(s) URLs only.
func safeHref(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return "", false
}

// serviceLink points at the web front of the service: the API base without
// its trailing /api segment.
func serviceLink(base string) string {
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, "/api")
}

func el(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}
