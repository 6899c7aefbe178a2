package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/journal"
	"github.com/pbaille/retro/internal/normalize"
	"github.com/pbaille/retro/internal/reconcile"
)

// maxBackupSize caps import request bodies (10MB)
const maxBackupSize = 10 * 1024 * 1024

// Server handles HTTP requests for the journal
type Server struct {
	journal *journal.Journal
	addr    string
	log     zerolog.Logger
}

// New creates a new API server
func New(j *journal.Journal, addr string, log zerolog.Logger) *Server {
	return &Server{journal: j, addr: addr, log: log}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Entries
	mux.HandleFunc("GET /entries", s.listEntries)
	mux.HandleFunc("POST /entries", s.addEntry)
	mux.HandleFunc("PUT /entries/{id}", s.updateEntry)
	mux.HandleFunc("DELETE /entries/{id}", s.deleteEntry)

	// Views
	mux.HandleFunc("GET /questions", s.questionBank)
	mux.HandleFunc("GET /timeline", s.timeline)

	// Backup and year rollover
	mux.HandleFunc("GET /export", s.export)
	mux.HandleFunc("POST /import", s.importBackup)
	mux.HandleFunc("POST /rollover", s.rollover)

	mux.HandleFunc("GET /health", s.health)

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.addr).Msg("starting server")
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.Entries(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// AddEntryRequest is the request body for adding an entry
type AddEntryRequest struct {
	domain.Draft
	// Force adds even when the same year already has this question
	Force bool `json:"force,omitempty"`
}

func (s *Server) addEntry(w http.ResponseWriter, r *http.Request) {
	var req AddEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	add := s.journal.AddUnique
	if req.Force {
		add = s.journal.Add
	}

	entries, err := add(r.Context(), req.Draft)
	var dup *journal.DuplicateError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "this year already has that question",
			"existing": dup.Existing,
		})
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entries": entries})
}

func (s *Server) updateEntry(w http.ResponseWriter, r *http.Request) {
	var d domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entries, err := s.journal.Update(r.Context(), r.PathValue("id"), d)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) questionBank(w http.ResponseWriter, r *http.Request) {
	bank, err := s.journal.QuestionBank(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": bank})
}

func (s *Server) timeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	points, err := s.journal.Timeline(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"q": strings.TrimSpace(q), "timeline": points})
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	blob, err := s.journal.Export(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", journal.BackupMediaType)
	w.Header().Set("Content-Disposition", `attachment; filename="retro-backup.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(blob)
}

func (s *Server) importBackup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBackupSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read request body")
		return
	}

	entries, err := s.journal.Import(r.Context(), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// RolloverRequest is the request body for a year rollover
type RolloverRequest struct {
	Year float64 `json:"year"`
}

func (s *Server) rollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.journal.Rollover(r.Context(), req.Year)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail maps domain errors onto status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, normalize.ErrRejected),
		errors.Is(err, reconcile.ErrParse),
		errors.Is(err, reconcile.ErrShape):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
