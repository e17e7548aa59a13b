package dom

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
)

// ChromePage drives a real browser tab over the DevTools protocol. It attaches
// to an already-running, already-authenticated browser via its remote
// debugging URL rather than launching its own, so the site sees the user's
// normal session and fingerprint.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
}

// Connect attaches to a browser's remote debugging endpoint and binds to its
// active tab. Close releases the connection without closing the browser.
func Connect(ctx context.Context, debugURL string, log logger.Logger) (*ChromePage, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if debugURL == "" {
		return nil, fmt.Errorf("no browser debug URL configured")
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Exercise the connection so a bad URL fails here, not mid-scan.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to attach to browser at %s: %w", debugURL, err)
	}

	log.DebugWithFields("attached to browser", map[string]interface{}{
		"debug_url": debugURL,
	})

	cancel := func() {
		tabCancel()
		allocCancel()
	}
	return &ChromePage{ctx: tabCtx, cancel: cancel, logger: log}, nil
}

// Close detaches from the browser.
func (p *ChromePage) Close() {
	p.cancel()
}

// Navigate loads a URL and waits for the document body.
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Location returns the current document URL.
func (p *ChromePage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

// Nodes returns all elements matching a CSS selector, flattened to text plus
// attributes.
func (p *ChromePage) Nodes(ctx context.Context, selector string) ([]Node, error) {
	expr := fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(e => ({
		text: e.textContent,
		attrs: Object.fromEntries(Array.from(e.attributes).map(a => [a.name, a.value]))
	}))`, selector)

	var raw []struct {
		Text  string            `json:"text"`
		Attrs map[string]string `json:"attrs"`
	}
	if err := p.Eval(ctx, expr, &raw); err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(raw))
	for _, r := range raw {
		nodes = append(nodes, Node{Text: r.Text, Attrs: r.Attrs})
	}
	return nodes, nil
}

// Click clicks the first visible element matching a CSS selector.
func (p *ChromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// ScrollBy scrolls the viewport down by a pixel delta.
func (p *ChromePage) ScrollBy(ctx context.Context, pixels int) error {
	return p.Eval(ctx, fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil)
}

// ScrollHeight returns the current document scroll height.
func (p *ChromePage) ScrollHeight(ctx context.Context) (int, error) {
	var height int
	err := p.Eval(ctx, "document.documentElement.scrollHeight", &height)
	return height, err
}

// Eval evaluates a JavaScript expression, decoding the result into out when
// out is non-nil.
func (p *ChromePage) Eval(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

// CookieHeader reads the site's cookies, HttpOnly ones included, as a Cookie
// header value. This is what makes browser attachment a viable session
// source: auth_token never appears in document.cookie.
func (p *ChromePage) CookieHeader(ctx context.Context) (string, error) {
	var header string
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		var parts []string
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		header = strings.Join(parts, "; ")
		return nil
	}))
	return header, err
}

// ScriptURLs lists the resource URLs the current page has loaded. Implements
// the script source used by endpoint discovery.
func (p *ChromePage) ScriptURLs(ctx context.Context) ([]string, error) {
	var urls []string
	if err := p.Eval(ctx, scriptURLsExpr, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// run executes chromedp actions under both the caller's context and the tab's.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(p.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
