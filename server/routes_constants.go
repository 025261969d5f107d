package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Azure AD authorization code flow
	RouteLogin    = "/azure/oauth2/login"
	RouteCallback = "/azure/oauth2/callback"

	// Operations
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
