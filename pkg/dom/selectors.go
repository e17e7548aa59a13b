package dom

// X.com DOM selectors.
// These are isolated here because X changes their DOM frequently.
// Update these when the fallback path breaks.

const (
	// Following page selectors
	UserCell     = `[data-testid="UserCell"]`
	UserCellLink = `[data-testid="UserCell"] a[href^="/"]`

	// Profile page selectors
	TweetArticle   = `article[data-testid="tweet"]`
	TweetTimestamp = `article[data-testid="tweet"] time`

	// Unfollow flow selectors
	FollowingButton = `[data-testid$="-unfollow"]`
	FollowButton    = `[data-testid$="-follow"]`
	ConfirmUnfollow = `[data-testid="confirmationSheetConfirm"]`

	// Logged-in state indicators
	ProfileLink   = `[data-testid="AppTabBar_Profile_Link"]`
	HomeIndicator = `[data-testid="SideNav_NewTweet_Button"]`
	LoginForm     = `[data-testid="loginButton"]`
)

// scriptURLsExpr lists every resource URL the page has loaded, script bundles
// included. Feeds endpoint discovery.
const scriptURLsExpr = `performance.getEntriesByType('resource').map(e => e.name)`
