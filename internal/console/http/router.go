package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openconsole/authgate/internal/console/service"
	"github.com/openconsole/authgate/pkg/httpx"
	"github.com/openconsole/authgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Optional: nil when running on the in-memory code store
	redis redis.UniversalClient

	Sessions *service.SessionManager
	SignIn   *service.SignInService
	Handoff  *service.HandoffService

	// CookieSecure marks browser cookies Secure. Set when the public URL
	// is served over https; plain-http deployments leave it off so user
	// agents still replay the cookies.
	CookieSecure bool
}

func NewRouter(buildVersion string, logger *slog.Logger, rdb redis.UniversalClient) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		redis:        rdb,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerHandoff()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	loginHandler := &LoginHandler{SignIn: r.SignIn, Secure: r.CookieSecure}
	callbackHandler := &CallbackHandler{SignIn: r.SignIn, Sessions: r.Sessions, Handoff: r.Handoff, Secure: r.CookieSecure}

	// GET /login - moderate limit, it only bounces to the provider
	r.Mux.Handle("GET /v1/auth/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /callback - strict limit (completes authentication)
	r.Mux.Handle("GET /v1/auth/callback",
		httpx.Chain(callbackHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	sessionHandler := &SessionHandler{Sessions: r.Sessions, Secure: r.CookieSecure}
	r.Mux.Handle("GET /v1/auth/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleGet),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerHandoff() {
	authorizeHandler := &AuthorizeHandler{Handoff: r.Handoff, Sessions: r.Sessions}
	r.Mux.Handle("GET /v1/auth/authorize",
		httpx.Chain(authorizeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /token - strict rate limit (single-use code brute force)
	tokenHandler := &TokenHandler{Handoff: r.Handoff}
	r.Mux.Handle("POST /v1/auth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.redis),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
