// Package server exposes the HTTP surface of the mediation layer. Handlers
// translate transport concerns (auth, multipart staging, status codes) and
// delegate every generation decision to the app core.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"craftai/internal/app"
	"craftai/internal/usertoken"
	"craftai/internal/util"
	"craftai/pkg/domain"
	"craftai/pkg/entitlement"
	"craftai/pkg/storage"
)

const defaultBlogTitleTokens = 100

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Resolver       entitlement.Resolver
	TokenVerifier  *usertoken.Verifier
	Staging        *storage.StagingStore
	MaxUploadBytes int64
}

// Server exposes HTTP endpoints for the generation mediation layer.
type Server struct {
	app            *app.App
	resolver       entitlement.Resolver
	tokenVerifier  *usertoken.Verifier
	staging        *storage.StagingStore
	mux            *http.ServeMux
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app core required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("entitlement resolver required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	if cfg.Staging == nil {
		return nil, errors.New("staging store required")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 * 1024 * 1024
	}
	s := &Server{
		app:            cfg.App,
		resolver:       cfg.Resolver,
		tokenVerifier:  cfg.TokenVerifier,
		staging:        cfg.Staging,
		mux:            http.NewServeMux(),
		maxUploadBytes: maxUploadBytes,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithCORS(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// generation
	s.mux.Handle("/api/ai/generate-article", s.withUser(s.handleGenerateArticle))
	s.mux.Handle("/api/ai/generate-blog-title", s.withUser(s.handleGenerateBlogTitle))
	s.mux.Handle("/api/ai/generate-image", s.withUser(s.handleGenerateImage))
	s.mux.Handle("/api/ai/remove-image-background", s.withUser(s.handleRemoveBackground))
	s.mux.Handle("/api/ai/remove-image-object", s.withUser(s.handleRemoveObject))
	s.mux.Handle("/api/ai/review-document", s.withUser(s.handleReviewDocument))

	// ledger reads
	s.mux.Handle("/api/user/creations", s.withUser(s.handleListCreations))
	s.mux.Handle("/api/user/published", s.withUser(s.handleListPublished))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			writeFailure(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, userID)
	})
}

type promptRequest struct {
	Prompt  string `json:"prompt"`
	Length  int    `json:"length"`
	Publish bool   `json:"publish"`
}

func (s *Server) handleGenerateArticle(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.generate(w, r, domain.GenerationRequest{
		UserID:     userID,
		Capability: domain.CapabilityTextCompletion,
		Prompt:     body.Prompt,
		MaxTokens:  body.Length,
	})
}

func (s *Server) handleGenerateBlogTitle(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Titles are short; the token budget is fixed regardless of the request.
	s.generate(w, r, domain.GenerationRequest{
		UserID:     userID,
		Capability: domain.CapabilityTextCompletion,
		Prompt:     body.Prompt,
		MaxTokens:  defaultBlogTitleTokens,
	})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body promptRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.generate(w, r, domain.GenerationRequest{
		UserID:     userID,
		Capability: domain.CapabilityImageSynthesis,
		Prompt:     body.Prompt,
		Publish:    body.Publish,
	})
}

func (s *Server) handleRemoveBackground(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, cleanup, ok := s.stageUpload(w, r, "image", domain.CapabilityBackgroundRemoval, userID)
	if !ok {
		return
	}
	defer cleanup()
	s.generate(w, r, req)
}

func (s *Server) handleRemoveObject(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, cleanup, ok := s.stageUpload(w, r, "image", domain.CapabilityObjectRemoval, userID)
	if !ok {
		return
	}
	defer cleanup()
	req.ObjectName = r.FormValue("object")
	s.generate(w, r, req)
}

func (s *Server) handleReviewDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	req, cleanup, ok := s.stageUpload(w, r, "document", domain.CapabilityDocumentReview, userID)
	if !ok {
		return
	}
	defer cleanup()
	s.generate(w, r, req)
}

// stageUpload parses the multipart form and copies the named file to local
// staging. The returned cleanup removes the staged copy on every path.
func (s *Server) stageUpload(w http.ResponseWriter, r *http.Request, field string, capability domain.Capability, userID string) (domain.GenerationRequest, func(), bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid form data")
		return domain.GenerationRequest{}, nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "file is required (field: "+field+")")
		return domain.GenerationRequest{}, nil, false
	}
	defer file.Close()

	requestID := util.RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = util.NewID()
	}
	path, err := s.staging.Save(requestID, header.Filename, file)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "failed to stage upload")
		return domain.GenerationRequest{}, nil, false
	}
	logger := util.LoggerFromContext(r.Context())
	cleanup := func() {
		if err := s.staging.Remove(requestID); err != nil {
			logger.Warn("failed to remove staged upload", "request_id", requestID, "err", err)
		}
	}
	return domain.GenerationRequest{
		UserID:     userID,
		Capability: capability,
		FilePath:   path,
		FileName:   header.Filename,
		FileSize:   header.Size,
	}, cleanup, true
}

// generate resolves a fresh entitlement snapshot, runs the request through
// the core, and maps the outcome onto the response envelope.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	ctx := r.Context()
	logger := util.LoggerFromContext(ctx)

	snapshot, err := s.resolver.Resolve(ctx, req.UserID)
	if err != nil {
		logger.Error("entitlement resolve failed", "user_id", req.UserID, "err", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}

	creation, err := s.app.Generate(ctx, snapshot, req)
	if err != nil {
		s.writeGenerateError(w, logger, req, err)
		return
	}
	logger.Info("generation completed",
		"user_id", req.UserID, "capability", string(req.Capability), "creation_id", creation.ID)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Content: creation.Content})
}

func (s *Server) writeGenerateError(w http.ResponseWriter, logger *slog.Logger, req domain.GenerationRequest, err error) {
	var validationErr *app.ValidationError
	var adapterErr *app.AdapterError
	var persistErr *app.PersistenceError
	switch {
	case errors.Is(err, app.ErrLimitReached):
		// Quota exhaustion is a normal outcome, reported in-band.
		writeJSON(w, http.StatusOK, failureResponse{Success: false, Message: err.Error()})
	case errors.Is(err, app.ErrPremiumRequired):
		writeFailure(w, http.StatusForbidden, err.Error())
	case errors.As(err, &validationErr):
		writeFailure(w, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &adapterErr):
		logger.Error("provider call failed",
			"capability", string(adapterErr.Capability), "timeout", adapterErr.Timeout, "err", err)
		writeFailure(w, http.StatusInternalServerError, "generation failed, please try again")
	case errors.As(err, &persistErr):
		logger.Error("generation not recorded", "user_id", req.UserID, "err", err)
		writeFailure(w, http.StatusInternalServerError, "generation could not be saved")
	default:
		logger.Error("generation failed", "user_id", req.UserID, "err", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListCreations(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	creations, err := s.app.ListCreations(userID, queryLimit(r))
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Creations: creations})
}

func (s *Server) handleListPublished(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	creations, err := s.app.ListPublished(queryLimit(r))
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Creations: creations})
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	limit := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0
		}
		limit = limit*10 + int(c-'0')
		if limit > 200 {
			return 200
		}
	}
	return limit
}

type successResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listResponse struct {
	Success   bool              `json:"success"`
	Creations []domain.Creation `json:"creations"`
}

func methodNotAllowed(w http.ResponseWriter) {
	writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, failureResponse{Success: false, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
