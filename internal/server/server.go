// Package server exposes the portal's HTTP endpoints.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ragportal/internal/app"
	"ragportal/internal/auth"
	"ragportal/internal/util"
	"ragportal/pkg/domain"
)

const maxUploadBytes = 64 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App    *app.App
	Users  *auth.UserStore
	Tokens *auth.TokenIssuer
	Logger *slog.Logger
}

// Server routes authenticated portal requests to the app.
type Server struct {
	app    *app.App
	users  *auth.UserStore
	tokens *auth.TokenIssuer
	logger *slog.Logger
	mux    *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app:    cfg.App,
		users:  cfg.Users,
		tokens: cfg.Tokens,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/upload", s.withAuth(s.handleUpload))
	s.mux.Handle("/index-status/", s.withAuth(s.handleIndexStatus))
	s.mux.Handle("/chat", s.withAuth(s.handleChat))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.users.Register(req.Email, req.Password); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	email, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.tokens.Issue(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

func (s *Server) withAuth(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	if err := s.app.SubmitUpload(r.Context(), user, header.Filename, file, header.Size); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"filename": header.Filename,
		"state":    string(domain.StateQueued),
	})
}

type statusResponse struct {
	Filename  string    `json:"filename"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request, user string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	filename := strings.TrimPrefix(r.URL.Path, "/index-status/")
	if filename == "" || strings.Contains(filename, "/") {
		http.NotFound(w, r)
		return
	}
	record, err := s.app.QueryStatus(r.Context(), user, filename)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Filename:  record.Filename,
		State:     string(record.State),
		Detail:    record.Detail,
		UpdatedAt: record.UpdatedAt,
	})
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer  string          `json:"answer"`
	Sources []domain.Source `json:"sources"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, user string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	answer, err := s.app.Ask(r.Context(), user, req.Question)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	sources := answer.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Answer: answer.Text, Sources: sources})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Unavailable
// and unexpected errors keep their detail out of the response body.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrUnavailable):
		s.logger.Error("dependency unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "request failed")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "request failed")
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
