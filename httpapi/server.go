// Package httpapi exposes the registry's operations over HTTP and serves
// the composed module surface under /api/.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
	"github.com/zebra-devops/MarketEdge-Platform-sub003/registry"
)

// ModulePrefix is where the composed module routers are served.
const ModulePrefix = "/api/"

var (
	errUnauthenticated = errors.New("requester identity required")
	errBadRequest      = errors.New("bad request")
)

// AuthContextProvider extracts the requester id from a request. It returns
// false when the request is not authenticated.
type AuthContextProvider interface {
	RequesterID(r *http.Request) (string, bool)
}

// HeaderAuth reads the requester id from a header set by an upstream
// authenticating proxy.
type HeaderAuth struct {
	Header string
}

// RequesterID implements AuthContextProvider.
func (h HeaderAuth) RequesterID(r *http.Request) (string, bool) {
	name := h.Header
	if name == "" {
		name = "X-User-ID"
	}
	id := strings.TrimSpace(r.Header.Get(name))
	return id, id != ""
}

// Server routes admin requests to a ModuleRegistry.
type Server struct {
	registry    *registry.ModuleRegistry
	auth        AuthContextProvider
	logger      modular.Logger
	waitTimeout time.Duration
	admin       chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithAuth sets how requester ids are obtained.
func WithAuth(a AuthContextProvider) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l modular.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWaitTimeout bounds how long a registration submitted with ?wait=true
// is awaited.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) { s.waitTimeout = d }
}

// New builds the admin server for reg.
func New(reg *registry.ModuleRegistry, opts ...Option) *Server {
	s := &Server{
		registry:    reg,
		auth:        HeaderAuth{},
		logger:      modular.NopLogger{},
		waitTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/admin", func(r chi.Router) {
		r.Post("/modules", s.handleRegister)
		r.Get("/modules", s.handleDiscover)
		r.Get("/modules/{id}", s.handleStatus)
		r.Delete("/modules/{id}", s.handleUnregister)
		r.Get("/requests/{id}", s.handleRequest)
		r.Get("/metrics/routes", s.handleRouteMetrics)
		r.Get("/history", s.handleHistory)
		r.Get("/memory", s.handleMemory)
	})
	s.admin = r
	return s
}

// ServeHTTP dispatches /api/ to the module surface and everything else to
// the admin router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, ModulePrefix) {
		s.registry.Routes().ServeHTTP(w, r)
		return
	}
	s.admin.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("Admin request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}

type registerResponse struct {
	RequestID string               `json:"request_id"`
	Status    modular.RequestState `json:"status"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.auth.RequesterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	var meta modular.ModuleMetadata
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&meta); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(errBadRequest, err))
		return
	}

	var opts []registry.RegisterOption
	if v := r.URL.Query().Get("auto_activate"); v != "" {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Join(errBadRequest, err))
			return
		}
		opts = append(opts, registry.WithAutoActivate(auto))
	}

	requestID, err := s.registry.RegisterModule(r.Context(), meta, requester, opts...)
	if err != nil {
		writeError(w, modular.ClassifyError(err).HTTPStatus(), err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		writeJSON(w, http.StatusAccepted, registerResponse{RequestID: requestID, Status: modular.StatePending})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.waitTimeout)
	defer cancel()
	res, err := s.registry.WaitForRequest(ctx, requestID)
	if err != nil {
		// Still processing; the caller can poll the request.
		writeJSON(w, http.StatusAccepted, registerResponse{RequestID: requestID, Status: modular.StatePending})
		return
	}
	status := http.StatusCreated
	if !res.Success {
		status = res.Kind.HTTPStatus()
	}
	writeJSON(w, status, res)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if req, ok := s.registry.RequestStatus(id); ok {
		writeJSON(w, http.StatusOK, req)
		return
	}
	// Terminal requests answer immediately.
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	res, err := s.registry.WaitForRequest(ctx, id)
	if err != nil {
		writeError(w, modular.ClassifyError(err).HTTPStatus(), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.registry.DiscoverModules(registry.DiscoveryQuery{
		Search: q.Get("q"),
		Tags:   q["tag"],
		Type:   modular.ModuleType(q.Get("type")),
	}))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, ok := s.registry.GetModuleStatus(id)
	if !ok {
		writeError(w, http.StatusNotFound, modular.ErrModuleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	requester, ok := s.auth.RequesterID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		var err error
		if force, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, errors.Join(errBadRequest, err))
			return
		}
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.DeregisterModule(r.Context(), id, requester, force); err != nil {
		writeError(w, modular.ClassifyError(err).HTTPStatus(), err)
		return
	}
	writeJSON(w, http.StatusOK, registry.UnregisterResult{Success: true, Message: "module " + id + " unregistered"})
}

func (s *Server) handleRouteMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetRouteMetrics(r.URL.Query().Get("module")))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.Join(errBadRequest, errors.New("limit must be a non-negative integer")))
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.registry.GetRegistrationHistory(limit))
}

func (s *Server) handleMemory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetMemoryStats())
}

type errorResponse struct {
	Error string            `json:"error"`
	Kind  modular.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	kind := modular.ClassifyError(err)
	if kind == modular.ErrorKindInternal && status < http.StatusInternalServerError {
		kind = modular.ErrorKindNone
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
