package twitter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hernaezTlon/x-following-cleaner/pkg/logger"
)

// ScriptSource discovers candidate script bundle URLs from the live page
// (loaded/preloaded script tags plus performance entries). Swappable so drift
// in the site's bundling can be handled without touching engine logic.
type ScriptSource interface {
	ScriptURLs(ctx context.Context) ([]string, error)
}

// StaticScriptSource serves a fixed URL list. Used in tests and when the
// bundle locations are known ahead of time.
type StaticScriptSource []string

// ScriptURLs returns the fixed list.
func (s StaticScriptSource) ScriptURLs(context.Context) ([]string, error) {
	return s, nil
}

// Resolver keeps the endpoint registry current by scanning site-delivered
// script bundles for operation-name-to-queryId associations. Resolution
// failure is a normal, recoverable condition, never an exceptional one.
type Resolver struct {
	client   *Client
	registry *Registry
	source   ScriptSource
	logger   logger.Logger

	minInterval time.Duration

	mu          sync.Mutex
	lastRefresh time.Time
	lastResult  bool
	inflight    chan struct{}
}

// NewResolver creates a resolver over the given registry and script source.
func NewResolver(client *Client, registry *Registry, source ScriptSource, minInterval time.Duration, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		client:      client,
		registry:    registry,
		source:      source,
		logger:      log,
		minInterval: minInterval,
	}
}

// Resolve returns the GraphQL path for an operation name, embedding its
// current query id.
func (r *Resolver) Resolve(operation string) (string, bool) {
	return r.registry.Path(operation)
}

// Refresh re-scans the site bundles, best effort. Concurrent callers share a
// single in-flight refresh, and a minimum-interval guard prevents refresh
// storms. Returns true when at least one of the two logical operations was
// resolved.
func (r *Resolver) Refresh(ctx context.Context) bool {
	r.mu.Lock()
	if ch := r.inflight; ch != nil {
		r.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
		r.mu.Lock()
		result := r.lastResult
		r.mu.Unlock()
		return result
	}
	if !r.lastRefresh.IsZero() && time.Since(r.lastRefresh) < r.minInterval {
		result := r.lastResult
		r.mu.Unlock()
		return result
	}
	ch := make(chan struct{})
	r.inflight = ch
	r.mu.Unlock()

	ok := r.refresh(ctx)

	r.mu.Lock()
	r.lastRefresh = time.Now()
	r.lastResult = ok
	r.inflight = nil
	close(ch)
	r.mu.Unlock()
	return ok
}

func (r *Resolver) refresh(ctx context.Context) bool {
	urls, err := r.source.ScriptURLs(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Script bundle discovery failed")
		return false
	}

	identityOK := false
	timelineOK := false

	for _, u := range urls {
		if !strings.Contains(u, ScriptHost) {
			continue
		}
		text, err := r.client.GetText(ctx, u)
		if err != nil {
			r.logger.WithError(err).WithField("url", u).Debug("Bundle fetch failed")
			continue
		}

		if id, name, ok := ScanBundle(text, r.registry.OpName(OpIdentity)); ok {
			r.registry.SetQueryID(name, id)
			r.registry.SetOpName(OpIdentity, name)
			identityOK = true
		} else if id, name, ok := inferIdentityOp(text); ok {
			// The expected operation name is gone; adopt whichever operation
			// manipulates the screen_name marker variable.
			r.logger.WarnWithFields("Identity operation renamed upstream", map[string]interface{}{
				"new_operation": name,
			})
			r.registry.SetQueryID(name, id)
			r.registry.SetOpName(OpIdentity, name)
			identityOK = true
		}

		if id, name, ok := ScanBundle(text, r.registry.OpName(OpTimeline)); ok {
			r.registry.SetQueryID(name, id)
			r.registry.SetOpName(OpTimeline, name)
			timelineOK = true
		}

		if identityOK && timelineOK {
			break
		}
	}

	r.logger.InfoWithFields("Endpoint registry refresh finished", map[string]interface{}{
		"identity_resolved": identityOK,
		"timeline_resolved": timelineOK,
		"bundles":           len(urls),
	})
	return identityOK || timelineOK
}

// Bundle text comes from different bundler generations: keys may or may not
// be quoted, the queryId can precede or follow the operation name, and
// either quoting style appears.
var bundlePatterns = []string{
	`"%s"\s*:\s*\{\s*"queryId"\s*:\s*"([\w-]+)"`,
	`["']?queryId["']?\s*:\s*["']([\w-]+)["']\s*,\s*["']?operationName["']?\s*:\s*["']%s["']`,
	`["']?operationName["']?\s*:\s*["']%s["']\s*,\s*["']?queryId["']?\s*:\s*["']([\w-]+)["']`,
}

// ScanBundle searches bundle text for the query id associated with an
// operation name. Returns the id, the operation name, and whether a match was
// found.
func ScanBundle(text, operation string) (id, name string, ok bool) {
	for _, p := range bundlePatterns {
		re, err := regexp.Compile(fmt.Sprintf(p, regexp.QuoteMeta(operation)))
		if err != nil {
			continue
		}
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], operation, true
		}
	}
	return "", "", false
}

// pairPattern matches any queryId/operationName association regardless of the
// operation's name.
var pairPattern = regexp.MustCompile(`["']?queryId["']?\s*:\s*["']([\w-]+)["']\s*,\s*["']?operationName["']?\s*:\s*["'](\w+)["']`)

// inferIdentityOp looks for an operation, whatever its name, whose definition
// sits next to a screen_name marker. A resilience measure against upstream
// renames of the identity lookup.
func inferIdentityOp(text string) (id, name string, ok bool) {
	const window = 500
	for _, loc := range pairPattern.FindAllStringSubmatchIndex(text, -1) {
		end := loc[1] + window
		if end > len(text) {
			end = len(text)
		}
		if strings.Contains(text[loc[1]:end], "screen_name") {
			return text[loc[2]:loc[3]], text[loc[4]:loc[5]], true
		}
	}
	return "", "", false
}
