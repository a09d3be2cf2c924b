package http

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/custodia-labs/xpost/internal/core/ports/driving"
	"github.com/google/uuid"
	"github.com/swaggo/swag"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// pageView is the data rendered into the compose page.
type pageView struct {
	Message string
	Link    string
	Error   bool
	Text    string
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports each dependency check.
// @Description Readiness status with per-dependency results
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// CreatePostRequest is the JSON body of POST /api/v1/posts.
// @Description Post to publish
type CreatePostRequest struct {
	Text string `json:"text" example:"hello from xpost"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the service
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the configured flow store, token store and lock backends
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get version
// @Description  Returns the running build version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "api documentation is not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

// Compose form

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, pageView{})
}

// handleCompose takes the form submission. It either redirects the browser
// to the provider or renders the result of publishing.
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.render(w, http.StatusBadRequest, pageView{Message: "The upload could not be read.", Error: true})
		return
	}

	draft := &domain.PostDraft{Text: strings.TrimSpace(r.FormValue("text"))}

	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		if header.Size > 0 {
			path, err := s.stageUpload(file, header)
			if err != nil {
				s.logger.Error("failed to stage upload", "error", err)
				s.render(w, http.StatusInternalServerError, pageView{Message: "The image could not be saved.", Error: true, Text: draft.Text})
				return
			}
			draft.MediaPath = path
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		s.render(w, http.StatusBadRequest, pageView{Message: "The upload could not be read.", Error: true, Text: draft.Text})
		return
	}

	outcome, err := s.ensureAuthorized(r.Context(), draft)
	if err != nil {
		status, _, msg := describeError(err)
		s.render(w, status, pageView{Message: msg, Error: true, Text: draft.Text})
		return
	}
	if outcome.NeedsAuthorization() {
		http.Redirect(w, r, outcome.AuthorizationURL, http.StatusSeeOther)
		return
	}
	s.render(w, http.StatusOK, resultView(outcome))
}

// handleCallback receives the provider redirect.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome, err := s.authorization.CompleteAuthorization(r.Context(), driving.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		status, _, msg := describeError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("authorization callback failed", "error", err)
		}
		s.render(w, status, pageView{Message: msg, Error: true})
		return
	}
	s.render(w, http.StatusOK, resultView(outcome))
}

// JSON API

// handleCreatePost godoc
// @Summary      Publish a post
// @Description  Publishes text with the stored token, or starts an authorization and returns its URL
// @Tags         Posts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreatePostRequest  true  "Post to publish"
// @Success      200      {object}  driving.AuthorizationOutcome  "Post published"
// @Success      202      {object}  driving.AuthorizationOutcome  "Authorization required"
// @Failure      400      {object}  driving.OAuthError
// @Failure      429      {object}  driving.OAuthError
// @Failure      502      {object}  driving.OAuthError
// @Router       /posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	outcome, err := s.ensureAuthorized(r.Context(), &domain.PostDraft{Text: strings.TrimSpace(req.Text)})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeOutcome(w, outcome)
}

// handleAuthorize godoc
// @Summary      Start authorization
// @Description  Returns an authorization URL when no usable token is stored
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.AuthorizationOutcome  "Already authorized"
// @Success      202  {object}  driving.AuthorizationOutcome  "Authorization required"
// @Router       /oauth/authorize [post]
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.authorization.EnsureAuthorized(r.Context(), nil)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeOutcome(w, outcome)
}

// handleStatus godoc
// @Summary      Authorization status
// @Description  Reports the lifecycle state and stored token metadata
// @Tags         OAuth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  driving.AuthorizationStatus
// @Router       /oauth/status [get]
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.authorization.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSignOut godoc
// @Summary      Sign out
// @Description  Clears the stored token
// @Tags         OAuth
// @Security     BearerAuth
// @Success      204
// @Router       /oauth/token [delete]
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.authorization.SignOut(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ensureAuthorized encodes the draft and hands it to the orchestrator. A
// staged file is removed when the draft never made it into a flow.
func (s *Server) ensureAuthorized(ctx context.Context, draft *domain.PostDraft) (*driving.AuthorizationOutcome, error) {
	payload, err := draft.Encode()
	if err == nil {
		var outcome *driving.AuthorizationOutcome
		outcome, err = s.authorization.EnsureAuthorized(ctx, payload)
		if err == nil {
			return outcome, nil
		}
	}
	if draft.MediaPath != "" {
		if rmErr := os.Remove(draft.MediaPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("failed to remove staged media", "path", draft.MediaPath, "error", rmErr)
		}
	}
	return nil, err
}

// stageUpload copies an uploaded image into the upload directory under a
// fresh name, keeping only the original extension.
func (s *Server) stageUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o700); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if len(ext) > 8 {
		ext = ""
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+ext)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

func (s *Server) render(w http.ResponseWriter, status int, view pageView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, view); err != nil {
		s.logger.Error("failed to render page", "error", err)
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status, code, msg := describeError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, code, msg)
}

func resultView(outcome *driving.AuthorizationOutcome) pageView {
	if outcome.Result == nil {
		return pageView{Message: domain.AuthorizedMessage}
	}
	return pageView{Message: outcome.Result.Message, Link: outcome.Result.Link}
}

func writeOutcome(w http.ResponseWriter, outcome *driving.AuthorizationOutcome) {
	status := http.StatusOK
	if outcome.NeedsAuthorization() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, outcome)
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, driving.OAuthError{Code: code, Description: description})
}
