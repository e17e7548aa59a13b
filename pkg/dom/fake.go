package dom

import (
	"context"
	"sync"
)

// FakePage is an in-memory Page for tests. Selectors map to canned node
// lists; scroll heights play back a scripted sequence so scroll loops can be
// exercised without a browser.
type FakePage struct {
	mu sync.Mutex

	// NodesBySelector maps a selector to the nodes it returns. Replaced
	// wholesale by tests to simulate new content appearing.
	NodesBySelector map[string][]Node

	// Heights is played back by ScrollHeight; the last value repeats.
	Heights []int
	heightI int

	// EvalResults maps an expression to a function filling the out value.
	EvalResults map[string]func(out any) error

	// Cookies is returned by CookieHeader.
	Cookies string

	// ClickErr fails Click calls when set.
	ClickErr error

	// OnScroll runs after each ScrollBy, letting tests reveal more content.
	OnScroll func(scrolls int)

	Navigated []string
	Clicked   []string
	Scrolls   int
}

// NewFakePage creates an empty fake page.
func NewFakePage() *FakePage {
	return &FakePage{
		NodesBySelector: make(map[string][]Node),
		EvalResults:     make(map[string]func(out any) error),
	}
}

// SetNodes replaces the nodes a selector returns.
func (f *FakePage) SetNodes(selector string, nodes []Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NodesBySelector[selector] = nodes
}

func (f *FakePage) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigated = append(f.Navigated, url)
	return nil
}

func (f *FakePage) Location(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Navigated) == 0 {
		return "about:blank", nil
	}
	return f.Navigated[len(f.Navigated)-1], nil
}

func (f *FakePage) Nodes(ctx context.Context, selector string) ([]Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.NodesBySelector[selector], nil
}

func (f *FakePage) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClickErr != nil {
		return f.ClickErr
	}
	f.Clicked = append(f.Clicked, selector)
	return nil
}

func (f *FakePage) ScrollBy(ctx context.Context, pixels int) error {
	f.mu.Lock()
	f.Scrolls++
	scrolls := f.Scrolls
	onScroll := f.OnScroll
	f.mu.Unlock()
	if onScroll != nil {
		onScroll(scrolls)
	}
	return nil
}

func (f *FakePage) ScrollHeight(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Heights) == 0 {
		return 0, nil
	}
	h := f.Heights[f.heightI]
	if f.heightI < len(f.Heights)-1 {
		f.heightI++
	}
	return h, nil
}

func (f *FakePage) Eval(ctx context.Context, expr string, out any) error {
	f.mu.Lock()
	fn := f.EvalResults[expr]
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(out)
}

func (f *FakePage) CookieHeader(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Cookies, nil
}
