package dom

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/augment/navwatch"
)

// notificationBuffer bounds notifications waiting for the watcher.
const notificationBuffer = 256

// Memory is a Document backed by an x/net/html tree. It is also a
// navwatch.Feed: every mutation (host-side or engine-side) publishes a
// notification carrying the current location, like a MutationObserver on
// the document subtree would.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	root      *html.Node
	location  string
	mutations int
	notes     chan navwatch.Notification
}

var _ Document = (*Memory)(nil)
var _ navwatch.Feed = (*Memory)(nil)

// NewMemory parses markup as a full document located at location.
func NewMemory(location, markup string) (*Memory, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Memory{
		root:     root,
		location: location,
		notes:    make(chan navwatch.Notification, notificationBuffer),
	}, nil
}

// Location implements Document.
func (m *Memory) Location(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location, nil
}

// HasElement implements Document.
func (m *Memory) HasElement(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return elementByID(m.root, id) != nil, nil
}

// HasSelector implements Document.
func (m *Memory) HasSelector(ctx context.Context, selector string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return querySelector(m.root, selector) != nil, nil
}

// Mount implements Document.
func (m *Memory) Mount(ctx context.Context, f Fragment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	host := querySelector(m.root, f.HostSelector)
	if host == nil {
		return ErrNoHost
	}
	nodes, err := html.ParseFragment(strings.NewReader(f.HTML), host)
	if err != nil {
		return fmt.Errorf("dom: parse fragment: %w", err)
	}

	var anchor *html.Node
	if f.AnchorSelector != "" {
		anchor = querySelector(host, f.AnchorSelector)
	}
	for _, n := range nodes {
		if anchor != nil {
			anchor.Parent.InsertBefore(n, anchor)
		} else {
			host.AppendChild(n)
		}
	}
	m.changedLocked()
	return nil
}

// InjectStyle implements Document.
func (m *Memory) InjectStyle(ctx context.Context, id, css string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	head := m.headLocked()
	if head == nil {
		return fmt.Errorf("dom: document has no <head>")
	}
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: "id", Val: id}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(style)
	m.changedLocked()
	return nil
}

// Notifications implements navwatch.Feed.
func (m *Memory) Notifications() <-chan navwatch.Notification {
	return m.notes
}

// Navigate changes the location without a page load, the way a SPA router
// calls history.pushState, and notifies observers.
func (m *Memory) Navigate(location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.location = location
	m.publishLocked()
}

// SetInner replaces the children of the first element matching selector
// with markup, simulating a host re-render. It reports whether a match was
// found.
func (m *Memory) SetInner(selector, markup string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := querySelector(m.root, selector)
	if n == nil {
		return false, nil
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return true, fmt.Errorf("dom: parse fragment: %w", err)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	m.publishLocked()
	return true, nil
}

// Remove detaches the element with the given id, if any.
func (m *Memory) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := elementByID(m.root, id)
	if n == nil || n.Parent == nil {
		return false
	}
	n.Parent.RemoveChild(n)
	m.publishLocked()
	return true
}

// Count returns the number of elements matching selector.
func (m *Memory) Count(selector string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(querySelectorAll(m.root, selector))
}

// Attrs returns the value of key for every element matching selector.
func (m *Memory) Attrs(selector, key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, n := range querySelectorAll(m.root, selector) {
		out = append(out, attr(n, key))
	}
	return out
}

// Texts returns the concatenated text content of every element matching
// selector.
func (m *Memory) Texts(selector string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, n := range querySelectorAll(m.root, selector) {
		var sb strings.Builder
		walk(n, func(c *html.Node) {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		})
		out = append(out, strings.TrimSpace(sb.String()))
	}
	return out
}

// Mutations returns how many mutations the engine applied (Mount and
// InjectStyle calls). Host-side changes are not counted.
func (m *Memory) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutations
}

// HTML serialises the whole document.
func (m *Memory) HTML() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var buf bytes.Buffer
	if err := html.Render(&buf, m.root); err != nil {
		return ""
	}
	return buf.String()
}

func (m *Memory) headLocked() *html.Node {
	var head *html.Node
	walk(m.root, func(n *html.Node) {
		if head == nil && n.Type == html.ElementNode && n.DataAtom == atom.Head {
			head = n
		}
	})
	return head
}

func (m *Memory) changedLocked() {
	m.mutations++
	m.publishLocked()
}

// publishLocked never blocks. A full buffer sheds its oldest notification
// so the latest location is always the last one delivered.
func (m *Memory) publishLocked() {
	n := navwatch.Notification{Location: m.location, At: time.Now()}
	for {
		select {
		case m.notes <- n:
			return
		default:
		}
		select {
		case <-m.notes:
		default:
		}
	}
}
