package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-azure-oauth2-client/auth"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/config"
)

type Server struct {
	env            string // Environment (e.g., "DEV", "production")
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	auth           *auth.AuthorizationService
	metricsHandler http.Handler
}

type ServerOption func(*Server)

// WithGatherer serves /metrics from the given gatherer instead of the default registry.
func WithGatherer(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
}

func New(config config.Config, authService *auth.AuthorizationService, options ...ServerOption) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("[Server New] config is required")
	}
	if authService == nil {
		return nil, fmt.Errorf("[Server New] authorization service is required")
	}

	s := &Server{
		env:            config.GetEnv(),
		mux:            http.NewServeMux(),
		config:         config,
		auth:           authService,
		metricsHandler: promhttp.Handler(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// CallbackURL is the absolute URL of the callback route, used as the redirect URI for
// registrations that do not declare their own.
func CallbackURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + RouteCallback
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
