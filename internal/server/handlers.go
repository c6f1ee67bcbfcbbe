package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/gateway"
	"github.com/hyperjump/geoint/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.analyst.Status(r.Context()))
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	confidence, err := s.confidence(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("detect request", zap.String("filename", img.Filename), zap.Float64("confidence", confidence))
	resp, err := s.analyst.Detect(r.Context(), img, confidence)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	prompt := r.FormValue("prompt")
	s.logger.Debug("analyze request", zap.String("filename", img.Filename), zap.Int("prompt_len", len(prompt)))
	resp, err := s.analyst.Analyze(r.Context(), img, prompt)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	confidence, err := s.confidence(r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp, err := s.analyst.Pipeline(r.Context(), img, confidence)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("chat request", zap.Int("message_len", len(req.Message)), zap.Int("context_window", req.ContextWindow))
	resp, err := s.analyst.Chat(r.Context(), req)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handlePublishDetections takes a detection payload pushed by an external producer.
func (s *Server) handlePublishDetections(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	resp, err := s.analyst.PublishDetections(body)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLatestDetections(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.analyst.Latest())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	resp, err := s.analyst.Summarize(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngestReport(w http.ResponseWriter, r *http.Request) {
	var input models.ReportInput
	if err := s.decodeJSON(w, r, &input); err != nil {
		s.respondErr(w, err)
		return
	}
	s.logger.Debug("ingest report request", zap.String("id", input.ID), zap.String("title", input.Title))
	res, err := s.analyst.IngestReport(r.Context(), input)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete report request", zap.String("id", id))
	if err := s.analyst.DeleteReport(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// readBody reads the whole request body, capped at the upload limit.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.maxUploadBytes()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, gateway.InvalidInput("request body exceeds %d bytes", limit)
		}
		return nil, gateway.InvalidInput("read request body: %v", err)
	}
	return data, nil
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	data, err := s.readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return gateway.InvalidInput("invalid request body")
	}
	return nil
}

// readImage parses the multipart form and returns the "image" file part.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (models.Image, error) {
	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Image{}, gateway.InvalidInput("upload exceeds %d bytes", limit)
		}
		return models.Image{}, gateway.InvalidInput("expected multipart form with an image field")
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		return models.Image{}, gateway.InvalidInput("image file is required")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return models.Image{}, gateway.InvalidInput("read image: %v", err)
	}
	if len(data) == 0 {
		return models.Image{}, gateway.InvalidInput("image is empty")
	}
	return models.Image{
		Filename:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// confidence reads the form or query value, falling back to the configured default.
func (s *Server) confidence(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.FormValue("confidence"))
	if raw == "" {
		return s.defaultConfidence, nil
	}
	c, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(c) || c < 0 || c > 1 {
		return 0, gateway.InvalidInput("confidence must be a number between 0 and 1")
	}
	return c, nil
}

// respondErr maps the error taxonomy to a status code.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidInput):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case gateway.IsUpstreamFailure(err):
		service := gateway.ServiceOf(err)
		if service == "" {
			service = "upstream"
		}
		s.logger.Warn("upstream failure", zap.String("service", service), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, service+" unavailable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
