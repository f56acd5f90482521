package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/adapter"
	"opsvision/internal/infra/logging"
	"opsvision/internal/usecase"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInputNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrNotFinished):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRemoteGone):
		return http.StatusGone
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		writeError(w, code, http.StatusText(code))
		return
	}
	writeError(w, code, err.Error())
}

// createAnalysis stores the upload and queues it; processing is asynchronous.
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	mode, err := model.ParseAnalysisMode(r.FormValue("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown mode")
		return
	}
	question := r.FormValue("question")
	if mode == model.AnalysisModeQuestion && strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, "question is required for question mode")
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	path, err := s.storeUpload(file, hdr.Filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.videoUC.Enqueue(r.Context(), usecase.AnalysisRequest{Path: path, Mode: mode, Question: question})
	if err != nil {
		_ = os.Remove(path)
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/analyses/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) storeUpload(src io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o750); err != nil {
		return "", fmt.Errorf("upload dir: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 10 {
		ext = ""
	}
	path := filepath.Join(s.cfg.UploadDir, ulid.Make().String()+ext)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	job, err := s.videoUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs, err := s.videoUC.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*model.AnalysisJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

type followUpRequest struct {
	Question string `json:"question"`
}

// followUp asks a new question about a completed analysis without
// re-uploading the video.
func (s *Server) followUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := s.videoUC.FollowUp(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) listManuals(w http.ResponseWriter, r *http.Request) {
	sources, err := s.manuals.Sources(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

// searchManuals takes q, an optional k and any number of filter=key:value.
func (s *Server) searchManuals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	k := 0
	if v := q.Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = n
	}
	filter := map[string]string{}
	for _, f := range q["filter"] {
		key, val, ok := strings.Cut(f, ":")
		if !ok || key == "" {
			writeError(w, http.StatusBadRequest, "filter must be key:value")
			return
		}
		filter[key] = val
	}
	hits, err := s.manuals.Search(r.Context(), q.Get("q"), k, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if hits == nil {
		hits = []model.ManualHit{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": hits})
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []adapter.Message `json:"messages"`
}

type chatResponse struct {
	Reply string        `json:"reply"`
	Usage adapter.Usage `json:"usage"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reply, usage, err := s.chatUC.Chat(r.Context(), req.Model, req.Messages)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, Usage: usage})
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.chatUC.ListModels(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": models})
}
