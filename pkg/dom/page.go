package dom

import (
	"context"
)

// Node is a flattened view of a matched DOM element: its text content and
// attribute map. Engines never see browser-native node types.
type Node struct {
	Text  string
	Attrs map[string]string
}

// Attr returns a named attribute value, "" when absent.
func (n Node) Attr(name string) string {
	return n.Attrs[name]
}

// Page is the narrow surface the engines drive the rendered site through.
// The chromedp implementation attaches to a real browser; tests use a fake.
type Page interface {
	// Navigate loads a URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Location returns the current document URL.
	Location(ctx context.Context) (string, error)

	// Nodes returns all elements matching a CSS selector. An empty result is
	// not an error.
	Nodes(ctx context.Context, selector string) ([]Node, error)

	// Click clicks the first element matching a CSS selector.
	Click(ctx context.Context, selector string) error

	// ScrollBy scrolls the viewport down by a pixel delta.
	ScrollBy(ctx context.Context, pixels int) error

	// ScrollHeight returns the current document scroll height.
	ScrollHeight(ctx context.Context) (int, error)

	// Eval evaluates a JavaScript expression and decodes its result.
	Eval(ctx context.Context, expr string, out any) error

	// CookieHeader returns the site cookies as a Cookie header value.
	CookieHeader(ctx context.Context) (string, error)
}
