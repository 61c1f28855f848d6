package mount

import (
	"net/url"
	"regexp"
	"strings"
)

// Defaults matching the GitHub repository sidebar.
const (
	DefaultHostSelector   = ".Layout-sidebar"
	DefaultAnchorSelector = ".BorderGrid-row"
	DefaultMarkerID       = "repoboard-similar"
	DefaultStyleID        = "repoboard-styles"
	DefaultMaxItems       = 5
)

// DefaultPathPattern matches "/owner/repo" and nothing deeper.
var DefaultPathPattern = regexp.MustCompile(`^/[\w.-]+/[\w.-]+$`)

// Target describes where in the host DOM the panel lives and how an
// existing mount is recognised. A MarkerID present in the live DOM always
// means "mounted for the current page".
type Target struct {
	// HostSelector locates the host subtree the panel is mounted into.
	HostSelector string
	// MarkerID is the id of the panel container; its presence is the only
	// idempotency signal.
	MarkerID string
	// InsertionAnchorSelector, when it matches inside the host, receives the
	// panel immediately before it. Empty or unmatched means append.
	InsertionAnchorSelector string
	// StyleID marks the stylesheet injected once per document.
	StyleID string
	// PathPattern filters page shapes the panel applies to.
	PathPattern *regexp.Regexp
	// MaxItems caps both the fetch and the rendered rows.
	MaxItems int
}

// GitHubSidebar returns the target used on GitHub repository pages.
func GitHubSidebar() Target {
	return Target{}.withDefaults()
}

func (t Target) withDefaults() Target {
	if t.HostSelector == "" {
		t.HostSelector = DefaultHostSelector
	}
	if t.MarkerID == "" {
		t.MarkerID = DefaultMarkerID
	}
	if t.StyleID == "" {
		t.StyleID = DefaultStyleID
	}
	if t.PathPattern == nil {
		t.PathPattern = DefaultPathPattern
	}
	if t.MaxItems <= 0 {
		t.MaxItems = DefaultMaxItems
	}
	return t
}

// Query derives the search query for a page: its path without the leading
// slash. ok is false when the page shape does not qualify.
func (t Target) Query(pageURL string) (query string, ok bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}
	path := u.Path
	if t.PathPattern != nil && !t.PathPattern.MatchString(path) {
		return "", false
	}
	query = strings.TrimPrefix(path, "/")
	return query, query != ""
}
