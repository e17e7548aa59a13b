package twitter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
)

const (
	// BaseURL is the base URL for X
	BaseURL = "https://x.com"

	// graphqlPrefix is the path prefix for opaque-queryId GraphQL operations
	graphqlPrefix = "/i/api/graphql"

	// restPrefix is the path prefix for legacy 1.1 REST endpoints
	restPrefix = "/i/api/1.1"

	// scriptHostPattern matches the host that serves X's script bundles
	ScriptHost = "abs.twimg.com"
)

// Logical operations the engine depends on. The concrete operation names
// behind them can drift upstream, so the registry tracks a current best name
// per logical op.
type LogicalOp string

const (
	OpIdentity LogicalOp = "identity"
	OpTimeline LogicalOp = "timeline"
)

// Default operation names and their last known query ids, used until a
// refresh observes newer ones in the site bundles.
const (
	DefaultIdentityOp = "UserByScreenName"
	DefaultTimelineOp = "UserTweets"
)

var defaultQueryIDs = map[string]string{
	DefaultIdentityOp: "1VOOyvKkiI3FMmkeDNxM9A",
	DefaultTimelineOp: "HeWHY26ItCfUmm1e6ITjeA",
}

// Registry maps operation names to their current opaque query ids and tracks
// the current best operation name per logical operation. It lives in memory
// only; a fresh process starts from the seeded defaults.
type Registry struct {
	mu      sync.RWMutex
	ids     map[string]string
	current map[LogicalOp]string
}

// NewRegistry creates a registry seeded with the last known query ids.
func NewRegistry() *Registry {
	ids := make(map[string]string, len(defaultQueryIDs))
	for k, v := range defaultQueryIDs {
		ids[k] = v
	}
	return &Registry{
		ids: ids,
		current: map[LogicalOp]string{
			OpIdentity: DefaultIdentityOp,
			OpTimeline: DefaultTimelineOp,
		},
	}
}

// QueryID returns the registered query id for an operation name.
func (r *Registry) QueryID(operation string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[operation]
	return id, ok
}

// SetQueryID records a resolved query id for an operation name.
func (r *Registry) SetQueryID(operation, id string) {
	r.mu.Lock()
	r.ids[operation] = id
	r.mu.Unlock()
}

// OpName returns the current best operation name for a logical operation.
func (r *Registry) OpName(op LogicalOp) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current[op]
}

// SetOpName updates the current best operation name for a logical operation.
func (r *Registry) SetOpName(op LogicalOp, name string) {
	r.mu.Lock()
	r.current[op] = name
	r.mu.Unlock()
}

// Path returns the GraphQL path for an operation name, embedding its query
// id, or false when the operation is unresolved.
func (r *Registry) Path(operation string) (string, bool) {
	id, ok := r.QueryID(operation)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s/%s/%s", graphqlPrefix, id, operation), true
}

// graphqlURL builds a full GraphQL GET URL with encoded variables and
// feature flags.
func graphqlURL(base, path string, variables, features map[string]any) string {
	params := url.Values{}
	if v, err := json.Marshal(variables); err == nil {
		params.Set("variables", string(v))
	}
	if f, err := json.Marshal(features); err == nil {
		params.Set("features", string(f))
	}
	return base + path + "?" + params.Encode()
}

// restURL builds a full 1.1 REST URL with query parameters.
func restURL(base, endpoint string, params url.Values) string {
	return base + restPrefix + endpoint + "?" + params.Encode()
}

// gqlFeatures returns the minimum GraphQL feature flags the web endpoints
// insist on. Unknown flags are rejected upstream, so the set is kept small.
func gqlFeatures() map[string]any {
	return map[string]any{
		"creator_subscriptions_tweet_preview_api_enabled":                         true,
		"freedom_of_speech_not_reach_fetch_enabled":                               true,
		"graphql_is_translatable_rweb_tweet_is_translatable_enabled":              true,
		"longform_notetweets_consumption_enabled":                                 true,
		"longform_notetweets_inline_media_enabled":                                true,
		"longform_notetweets_rich_text_read_enabled":                              true,
		"responsive_web_edit_tweet_api_enabled":                                   true,
		"responsive_web_enhance_cards_enabled":                                    false,
		"responsive_web_graphql_exclude_directive_enabled":                        true,
		"responsive_web_graphql_skip_user_profile_image_extensions_enabled":       false,
		"responsive_web_graphql_timeline_navigation_enabled":                      true,
		"standardized_nudges_misinfo":                                             true,
		"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled": true,
		"tweetypie_unmention_optimization_enabled":                                true,
		"verified_phone_label_enabled":                                            false,
		"view_counts_everywhere_api_enabled":                                      true,
	}
}
