package forwardauth

// HTTP header constants used by the gateway. The reverse proxy's forwarding
// headers are defined in the returnurl package.
const (
	// Header from the upstream authenticator in front of the login route
	HeaderAuthorization = "Authorization"
	// Request ID echoed on every response
	HeaderRequestID = "X-Request-Id"
)

// Routes served by the gateway. The login route is derived from the base URL
// and LOGIN_PATH at startup.
const (
	RouteValidate   = "/auth/validate"
	RouteLogout     = "/logout"
	RouteLogoutCSRF = "/logout/csrf"
	RouteHealth     = "/health"
	RouteMetrics    = "/metrics"
)
