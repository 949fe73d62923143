package server

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/harun/mnemo/internal/tracing"
	"github.com/harun/mnemo/pkg/memory"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// multipartMemory is how much of an upload is kept in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

type indexPage struct {
	Memories   []string
	SearchTerm string
	Degraded   bool
	Error      string
}

type voiceResponse struct {
	TranscribedText string `json:"transcribed_text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleIndex renders the search page on GET and adds a memory on POST.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.renderIndex(w, r)
	case http.MethodPost:
		s.addMemory(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) renderIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)
	searchTerm := r.URL.Query().Get("search_term")

	page := indexPage{SearchTerm: searchTerm}
	status := http.StatusOK

	result, err := s.service.Search(ctx, searchTerm)
	if err != nil {
		logger.Error().Err(err).Msg("Search failed")
		page.Error = "Search is unavailable right now."
		status = http.StatusServiceUnavailable
		if !errors.Is(err, memory.ErrEmbeddingUnavailable) {
			status = http.StatusInternalServerError
		}
	} else {
		page.Memories = result.Memories
		page.Degraded = result.Degraded
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, page); err != nil {
		logger.Error().Err(err).Msg("Failed to render page")
	}
}

func (s *Server) addMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if _, ok := r.PostForm["add_memory"]; ok {
		err := s.service.Append(ctx, r.PostFormValue("memory_text"))
		if err != nil && !errors.Is(err, memory.ErrEmptyMemory) {
			logger := tracing.LoggerFromContext(ctx, s.logger)
			logger.Error().Err(err).Msg("Failed to add memory")
			http.Error(w, "Failed to add memory", http.StatusInternalServerError)
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleAddVoiceMemory transcribes an uploaded recording and stores the text.
func (s *Server) handleAddVoiceMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	ip := s.clientIP(r)
	if ok, retryAfter := s.rateLimiter.Allow(ip); !ok {
		seconds := int((retryAfter + time.Second - 1) / time.Second)
		logger.Warn().
			Str("ip", ip).
			Int("retry_after", seconds).
			Msg("Voice upload rate limit exceeded")

		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Audio file too large", http.StatusRequestEntityTooLarge)
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio_data")
	if err != nil {
		http.Error(w, "No audio file found", http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "." || filename == string(filepath.Separator) {
		filename = "recording.webm"
	}

	text, err := s.service.AppendVoice(ctx, file, filename)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, voiceResponse{TranscribedText: text})
	case errors.Is(err, memory.ErrEmptyTranscription):
		writeJSON(w, http.StatusBadRequest, voiceResponse{TranscribedText: ""})
	case errors.Is(err, memory.ErrModelUnavailable):
		logger.Error().Err(err).Msg("Transcription model unavailable")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "transcription is unavailable"})
	default:
		logger.Error().Err(err).Msg("Failed to add voice memory")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to add voice memory"})
	}
}

// handleAPIMemories is the JSON form of the search page.
func (s *Server) handleAPIMemories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		logger := tracing.LoggerFromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("Search failed")
		status := http.StatusInternalServerError
		if errors.Is(err, memory.ErrEmbeddingUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	if result.Memories == nil {
		result.Memories = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.service.Status(r.Context())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"memory":    status,
		"timestamp": time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
