// Package server provides the HTTP server and handlers.
package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/bryan-buckman/podhost/internal/auth"
	"github.com/bryan-buckman/podhost/internal/database"
	"github.com/bryan-buckman/podhost/internal/feed"
	"github.com/bryan-buckman/podhost/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxMultipartMemory bounds how much of a multipart upload stays in memory
// before spooling to disk.
const maxMultipartMemory = 32 << 20

// maxUploadBody caps the JSON upload payload, which carries base64 audio.
const maxUploadBody = 32 << 20

// Server is the main HTTP server.
type Server struct {
	db       database.Store
	cache    *feed.Cache
	tokens   *auth.TokenStore
	uploader *upload.Orchestrator
	router   chi.Router
	logger   *slog.Logger
}

// New creates a new server.
func New(db database.Store, cache *feed.Cache, tokens *auth.TokenStore, uploader *upload.Orchestrator, logger *slog.Logger) *Server {
	s := &Server{
		db:       db,
		cache:    cache,
		tokens:   tokens,
		uploader: uploader,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health_check", s.handleHealthCheck)
	r.Get("/health_check_xml", s.handleHealthCheckXML)
	r.Post("/get_auth", s.handleGetAuth)
	r.Get("/channels", s.handleChannels)
	r.Get("/podcast/{channel}", s.handlePodcast)
	r.Post("/upload", s.handleUpload)
	r.Post("/upload_form", s.handleUploadForm)

	s.router = r
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the server.
func (s *Server) Start(addr string) error {
	s.logger.Info("server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// --- Handlers ---

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthCheckXML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><health>ok</health>`)
}

func (s *Server) handleGetAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	token, err := s.tokens.Issue(req.Password)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, token)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.db.ListChannels(r.Context())
	if err != nil {
		http.Error(w, "Failed to list channels", http.StatusInternalServerError)
		return
	}
	payload := make([]channelPayload, 0, len(channels))
	for _, ch := range channels {
		payload = append(payload, channelToPayload(&ch))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// handlePodcast serves a channel's rendered feed. The path segment is either
// the channel external id or its title with hyphens standing in for spaces.
func (s *Server) handlePodcast(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "channel")
	doc, err := s.cache.GetByID(key)
	if errors.Is(err, feed.ErrNotFound) {
		doc, err = s.cache.GetByTitle(key)
	}
	if err != nil {
		http.Error(w, "Unknown channel", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write(doc.XML)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	var req uploadPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	audio, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		http.Error(w, "Invalid audio encoding", http.StatusBadRequest)
		return
	}
	upReq := &upload.Request{
		Token:       req.Token,
		Channel:     req.Channel.toModel(),
		Episode:     req.Episode.toModel(),
		Audio:       bytes.NewReader(audio),
		AudioLength: int64(len(audio)),
		ContentType: req.ContentType,
	}
	s.finishUpload(w, r, upReq)
}

// handleUploadForm accepts a multipart upload: a "metadata" JSON part and an
// "audio" file part. The file is staged to disk so its size is known before
// the object write.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		http.Error(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}
	var req uploadPayload
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &req); err != nil {
		http.Error(w, "Invalid metadata", http.StatusBadRequest)
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "No audio file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	staged, err := os.CreateTemp("", "podhost-upload-*.mp3")
	if err != nil {
		http.Error(w, "Staging failed", http.StatusInternalServerError)
		return
	}
	defer os.Remove(staged.Name())
	if _, err := io.Copy(staged, file); err != nil {
		staged.Close()
		http.Error(w, "Staging failed", http.StatusInternalServerError)
		return
	}
	staged.Close()

	upReq := &upload.Request{
		Token:       req.Token,
		Channel:     req.Channel.toModel(),
		Episode:     req.Episode.toModel(),
		StagedPath:  staged.Name(),
		ContentType: req.ContentType,
	}
	s.finishUpload(w, r, upReq)
}

func (s *Server) finishUpload(w http.ResponseWriter, r *http.Request, req *upload.Request) {
	receipt, err := s.uploader.Do(r.Context(), req)
	if err != nil {
		status, msg := uploadStatus(err)
		s.logger.Warn("upload rejected", "status", status, "error", err)
		http.Error(w, msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// uploadStatus maps an orchestrator error onto an HTTP status and a short
// diagnostic body.
func uploadStatus(err error) (int, string) {
	var upErr *upload.Error
	if !errors.As(err, &upErr) {
		return http.StatusInternalServerError, "Upload failed"
	}
	switch upErr.Kind {
	case upload.KindUnauthorized:
		return http.StatusUnauthorized, "Invalid session token"
	case upload.KindValidation:
		return http.StatusBadRequest, "Invalid upload request"
	case upload.KindNotFound:
		return http.StatusNotFound, "Unknown channel"
	case upload.KindUpstream:
		return http.StatusBadGateway, "Upstream store failure"
	default:
		return http.StatusInternalServerError, "Upload failed"
	}
}
