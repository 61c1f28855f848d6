package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/augment/dom"
)

const (
	jsLocation    = `() => location.href`
	jsHasElement  = `(id) => document.getElementById(id) !== null`
	jsHasSelector = `(sel) => document.querySelector(sel) !== null`

	// Parsing through a <template> keeps the fragment inert until inserted.
	jsMount = `(host, anchor, html) => {
	const h = document.querySelector(host);
	if (!h) return false;
	const tpl = document.createElement('template');
	tpl.innerHTML = html;
	const a = anchor ? h.querySelector(anchor) : null;
	if (a && a.parentNode) {
		a.parentNode.insertBefore(tpl.content, a);
	} else {
		h.appendChild(tpl.content);
	}
	return true;
}`

	jsInjectStyle = `(id, css) => {
	if (document.getElementById(id)) return;
	const s = document.createElement('style');
	s.id = id;
	s.textContent = css;
	(document.head || document.documentElement).appendChild(s);
}`
)

// Document is a dom.Document backed by a live Rod page.
type Document struct {
	page *rod.Page
}

var _ dom.Document = (*Document)(nil)

// NewDocument wraps page.
func NewDocument(page *rod.Page) *Document { return &Document{page: page} }

func (d *Document) Location(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(jsLocation)
	if err != nil {
		return "", fmt.Errorf("browser: location: %w", err)
	}
	return res.Value.Str(), nil
}

func (d *Document) HasElement(ctx context.Context, id string) (bool, error) {
	res, err := d.page.Context(ctx).Eval(jsHasElement, id)
	if err != nil {
		return false, fmt.Errorf("browser: has element %s: %w", id, err)
	}
	return res.Value.Bool(), nil
}

func (d *Document) HasSelector(ctx context.Context, selector string) (bool, error) {
	res, err := d.page.Context(ctx).Eval(jsHasSelector, selector)
	if err != nil {
		return false, fmt.Errorf("browser: has selector %s: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

func (d *Document) Mount(ctx context.Context, f dom.Fragment) error {
	res, err := d.page.Context(ctx).Eval(jsMount, f.HostSelector, f.AnchorSelector, f.HTML)
	if err != nil {
		return fmt.Errorf("browser: mount: %w", err)
	}
	if !res.Value.Bool() {
		return dom.ErrNoHost
	}
	return nil
}

func (d *Document) InjectStyle(ctx context.Context, id, css string) error {
	if _, err := d.page.Context(ctx).Eval(jsInjectStyle, id, css); err != nil {
		return fmt.Errorf("browser: inject style: %w", err)
	}
	return nil
}
