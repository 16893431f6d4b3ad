// Package httpapi serves the web API the mailbox frontends talk to:
// message listing and detail fetch for stored and caller-supplied accounts,
// account CRUD with bulk import/export, and a token-guarded admin surface.
// Responses use the `{success, data, message}` envelope the original
// frontend was built against, with meaningful HTTP status codes on top.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hatomail/hato/auth"
	"github.com/hatomail/hato/consts"
	"github.com/hatomail/hato/logger"
	"github.com/hatomail/hato/mailbox"
	"github.com/hatomail/hato/pkg/metrics"
	"github.com/hatomail/hato/store"
)

// defaultListLimit is the number of messages returned when a request names
// no count of its own.
const defaultListLimit = 20

// Mailboxes is the retrieval surface the API serves. Implemented by
// *mailbox.SessionManager.
type Mailboxes interface {
	ListMessages(ctx context.Context, email, mailbox string, limit int) ([]*mailbox.Envelope, error)
	GetMessageDetail(ctx context.Context, email, id string) (*mailbox.Detail, error)
	ListMessagesEphemeral(ctx context.Context, creds auth.Credentials, mailbox string, limit int) ([]*mailbox.Envelope, error)
	GetMessageDetailEphemeral(ctx context.Context, creds auth.Credentials, id string) (*mailbox.Detail, error)
	Teardown(email string)
}

// Server is the HTTP API server.
type Server struct {
	addr            string
	adminToken      string
	allowedHosts    []string
	staticDir       string
	defaultClientID string

	store     store.Store
	mailboxes Mailboxes
	server    *http.Server

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

// Options holds configuration for the HTTP API server.
type Options struct {
	Addr         string
	AdminToken   string // plaintext or bcrypt hash
	AllowedHosts []string
	StaticDir    string // directory with the web frontend; empty disables it

	// DefaultClientID completes export rows and parsed legacy import lines
	// for accounts without a client ID of their own.
	DefaultClientID string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New creates a new HTTP API server.
func New(st store.Store, mailboxes Mailboxes, options Options) (*Server, error) {
	if options.Addr == "" {
		return nil, fmt.Errorf("listen address is required for HTTP API server")
	}
	if st == nil {
		return nil, fmt.Errorf("account store is required for HTTP API server")
	}
	if mailboxes == nil {
		return nil, fmt.Errorf("mailbox manager is required for HTTP API server")
	}
	if options.AdminToken == "" {
		logger.Warn("no admin token configured, admin endpoints will reject every request")
	}

	return &Server{
		addr:            options.Addr,
		adminToken:      options.AdminToken,
		allowedHosts:    options.AllowedHosts,
		staticDir:       options.StaticDir,
		defaultClientID: options.DefaultClientID,
		store:           st,
		mailboxes:       mailboxes,
		readTimeout:     options.ReadTimeout,
		writeTimeout:    options.WriteTimeout,
		idleTimeout:     options.IdleTimeout,
	}, nil
}

// Start builds and runs the HTTP API server, reporting startup and serve
// failures on errChan. It returns when the server stops.
func Start(ctx context.Context, st store.Store, mailboxes Mailboxes, options Options, errChan chan error) {
	server, err := New(st, mailboxes, options)
	if err != nil {
		errChan <- fmt.Errorf("failed to create HTTP API server: %w", err)
		return
	}

	logger.Infof("starting HTTP API server on %s", options.Addr)
	if err := server.start(ctx); err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		errChan <- fmt.Errorf("HTTP API server failed: %w", err)
	}
}

// start initializes and starts the HTTP server.
func (s *Server) start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("error shutting down HTTP API server: %v", err)
		}
	}()

	return s.server.ListenAndServe()
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)
	router.Use(s.allowedHostsMiddleware)

	// Message retrieval
	router.HandleFunc("/api/messages", s.handleListMessages).Methods("GET")
	router.HandleFunc("/api/message/{id}", s.handleGetMessageDetail).Methods("GET")
	router.HandleFunc("/api/temp-messages", s.handleTempMessages).Methods("POST")
	router.HandleFunc("/api/temp-message-detail", s.handleTempMessageDetail).Methods("POST")

	// Account management
	router.HandleFunc("/api/accounts", s.handleListAccounts).Methods("GET")
	router.HandleFunc("/api/account", s.handleAddAccount).Methods("POST")
	router.HandleFunc("/api/account/{email}", s.handleUpdateAccount).Methods("PUT")
	router.HandleFunc("/api/account/{email}", s.handleDeleteAccount).Methods("DELETE")
	router.HandleFunc("/api/import", s.handleImportAccounts).Methods("POST")
	router.HandleFunc("/api/export", s.handleExportAccounts).Methods("GET")
	router.HandleFunc("/api/parse-import-text", s.handleParseImportText).Methods("POST")

	// Token verification carries the candidate token in the body, so it
	// stays outside the guarded subrouter.
	router.HandleFunc("/api/admin/verify", s.handleAdminVerify).Methods("POST")

	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/accounts", s.handleAdminDeleteAccount).Methods("DELETE")
	admin.HandleFunc("/export", s.handleAdminExport).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.registerStatic(router)

	return router
}

// Middleware functions

// statusWriter records the response status for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		path := routePattern(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())
		logger.Debugf("HTTP API: %s %s from %s -> %d in %v", r.Method, r.URL.Path, getClientIP(r), sw.status, elapsed)
	})
}

// routePattern returns the matched route template so metric labels stay
// bounded regardless of path parameter values.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

func (s *Server) allowedHostsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedHosts) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)

		allowed := false
		for _, allowedHost := range s.allowedHosts {
			if allowedHost == clientIP {
				allowed = true
				break
			}
			if strings.Contains(allowedHost, "/") {
				if _, cidr, err := net.ParseCIDR(allowedHost); err == nil {
					if ip := net.ParseIP(clientIP); ip != nil && cidr.Contains(ip) {
						allowed = true
						break
					}
				}
			}
		}

		if !allowed {
			s.writeError(w, http.StatusForbidden, "host not allowed")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.writeError(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			s.writeError(w, http.StatusUnauthorized, "authorization header must be 'Bearer <token>'")
			return
		}

		if !s.verifyAdminToken(parts[1]) {
			s.writeError(w, http.StatusForbidden, "invalid admin token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware wraps the whole router so even preflight requests for
// unregistered method/path pairs get an answer. The frontends are served
// from arbitrary origins, hence the open policy.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, If-None-Match")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verifyAdminToken checks a candidate against the configured admin token.
// A token starting with a bcrypt version prefix is treated as a hash;
// anything else is compared in constant time. An unset token rejects all.
func (s *Server) verifyAdminToken(token string) bool {
	if token == "" || s.adminToken == "" {
		return false
	}
	if strings.HasPrefix(s.adminToken, "$2a$") || strings.HasPrefix(s.adminToken, "$2b$") || strings.HasPrefix(s.adminToken, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(s.adminToken), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
}

// Utility functions

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// apiResponse is the envelope every JSON endpoint speaks.
type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("HTTP API: error encoding JSON response: %v", err)
	}
}

func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}, message string) {
	s.writeJSON(w, status, apiResponse{Success: true, Data: data, Message: message})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, apiResponse{Success: false, Message: message})
}

// writeServiceError maps retrieval and store failures to a status code and
// an envelope the frontend can show. Authentication problems are checked
// first: the manager wraps them around the underlying connection error.
func (s *Server) writeServiceError(w http.ResponseWriter, operation string, err error) {
	var authErr *auth.Error
	var notFound *mailbox.NotFoundError
	var connErr *mailbox.ConnectError
	var protoErr *mailbox.ProtocolError

	switch {
	case errors.As(err, &authErr):
		s.writeError(w, http.StatusUnauthorized, authErr.Error())
	case errors.As(err, &notFound):
		s.writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &connErr):
		logger.Errorf("HTTP API: %s: %v", operation, err)
		s.writeError(w, http.StatusBadGateway, "mail server connection failed")
	case errors.As(err, &protoErr):
		logger.Errorf("HTTP API: %s: %v", operation, err)
		s.writeError(w, http.StatusBadGateway, "mail server request failed")
	case errors.Is(err, consts.ErrAccountNotFound):
		s.writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, consts.ErrAccountExists):
		s.writeError(w, http.StatusConflict, "account already exists")
	default:
		logger.Errorf("HTTP API: %s: %v", operation, err)
		s.writeError(w, http.StatusInternalServerError, operation+" failed")
	}
}
