package config

import "time"

// Default values for configuration options.
const (
	// DefaultGraphEndpoint is the base URL for the remote repository API.
	DefaultGraphEndpoint = "https://graph.microsoft.com/v1.0"

	// DefaultAuthority is the token-issuer URL template; %s is the tenant ID.
	DefaultAuthority = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

	// DefaultScope is the scope requested during the client-credential exchange.
	DefaultScope = "https://graph.microsoft.com/.default"

	// DefaultCacheTTL bounds how long a cached site index stays fresh.
	DefaultCacheTTL = time.Hour

	// DefaultCacheMaxSize is the maximum number of cached site indexes.
	DefaultCacheMaxSize = 1000

	// DefaultPageSize is the page size for listing endpoints.
	DefaultPageSize = 50

	// DefaultMaxPageSize is the largest page size a caller may request.
	DefaultMaxPageSize = 500

	// DefaultRequestTimeout wraps every individual remote request attempt.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultFolderTimeout caps fetching the contents of a single folder.
	DefaultFolderTimeout = 120 * time.Second

	// DefaultSiteTimeout caps indexing a single site.
	DefaultSiteTimeout = time.Hour

	// DefaultRetries is the attempt budget for remote requests.
	DefaultRetries = 3

	// DefaultMaxDepth bounds folder tree recursion.
	DefaultMaxDepth = 50

	// DefaultMaxFoldersPerLevel bounds sibling fan-out at one tree level.
	DefaultMaxFoldersPerLevel = 1000

	// DefaultThrottleDelay is the pause between folder fetches to respect
	// the shared rate limit.
	DefaultThrottleDelay = 100 * time.Millisecond

	// DefaultListenAddr is the HTTP API listen address.
	DefaultListenAddr = ":8000"
)
