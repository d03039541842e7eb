package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/NeuroMotion/internal/service"
	"github.com/himanishpuri/NeuroMotion/pkg/logger"
	"github.com/himanishpuri/NeuroMotion/pkg/models"
	"github.com/himanishpuri/NeuroMotion/pkg/neuromotion"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service neuromotion.Service
	config  *ServerConfig
	log     *logger.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	DBPath         string
	TempDir        string
	EnableCORS     bool
	AllowedOrigins []string
	StageTimeout   time.Duration
}

// NewServer creates a new server instance
func NewServer(service neuromotion.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMissingInput):
		return http.StatusNotFound
	case errors.Is(err, models.ErrShape):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNoVideoService):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "NeuroMotion API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":       "GET /health",
			"metrics":      "GET /api/health/metrics",
			"jobs":         "GET /api/jobs?stage={stage}",
			"forgetJob":    "DELETE /api/jobs/{stage}/{key}",
			"runStage":     "POST /api/stages/{fmri|audio|fuse}",
			"train":        "POST /api/train",
			"evaluate":     "POST /api/evaluate",
			"results":      "GET /api/results",
			"importMotion": "POST /api/motion",
			"video":        "POST /api/video",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		s.log.Errorf("Failed to get stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabasePath: s.config.DBPath,
		Jobs:         stats.Jobs,
		JobsByStage:  stats.JobsBy,
		Runs:         stats.Runs,
		ResultRows:   stats.Segments,
	})
}

// handleListJobs handles GET /api/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.Jobs(r.Context(), r.URL.Query().Get("stage"))
	if err != nil {
		s.log.Errorf("Failed to list jobs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}

	dtos := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		dtos[i] = JobDTO{Stage: j.Stage, Key: j.Key, Outputs: j.Outputs, CompletedAt: j.CompletedAt}
	}
	s.respondJSON(w, http.StatusOK, ListJobsResponse{Jobs: dtos, Count: len(dtos)})
}

// handleForgetJob handles DELETE /api/jobs/{stage}/{key...}
func (s *Server) handleForgetJob(w http.ResponseWriter, r *http.Request) {
	stage, key := r.PathValue("stage"), r.PathValue("key")
	if key == "" {
		s.respondError(w, http.StatusBadRequest, "Job key required")
		return
	}
	if err := s.service.Forget(r.Context(), stage, key); err != nil {
		s.log.Errorf("Failed to forget %s %s: %v", stage, key, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to forget job")
		return
	}

	s.log.Infof("Forgot job %s %s", stage, key)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunStage handles POST /api/stages/{stage}
func (s *Server) handleRunStage(w http.ResponseWriter, r *http.Request) {
	stage := r.PathValue("stage")
	var run func(context.Context) (*neuromotion.Report, error)
	switch stage {
	case service.StageFMRI:
		run = s.service.EmbedFMRI
	case service.StageAudio:
		run = s.service.EmbedAudio
	case service.StageFuse:
		run = s.service.Fuse
	default:
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("Unknown stage %q", stage))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.StageTimeout)
	defer cancel()

	s.log.Infof("Running %s stage", stage)
	rep, err := run(ctx)
	if err != nil {
		s.log.Errorf("%s stage failed: %v", stage, err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, StageResponse{
		Stage:     stage,
		Completed: rep.Completed,
		Skipped:   rep.Skipped,
		Missing:   rep.Missing,
		Failed:    rep.Failed,
		Failures:  rep.Failures,
	})
}

// handleTrain handles POST /api/train
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	modes, err := req.Modes()
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.StageTimeout)
	defer cancel()

	var resp TrainResponse
	for _, mode := range modes {
		sum, err := s.service.Train(ctx, mode)
		if err != nil {
			s.log.Errorf("Failed to train %s decoder: %v", mode, err)
			s.respondError(w, statusFor(err), fmt.Sprintf("Failed to train %s decoder: %v", mode, err))
			return
		}
		resp.Summaries = append(resp.Summaries, sum)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleEvaluate handles POST /api/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.StageTimeout)
	defer cancel()

	res, err := s.service.Evaluate(ctx)
	if err != nil {
		s.log.Errorf("Evaluation failed: %v", err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	dtos := newResultDTOs(res.Records)
	s.respondJSON(w, http.StatusOK, ResultsResponse{
		RunID:   res.RunID,
		Path:    res.Path,
		Cached:  res.Cached,
		Results: dtos,
		Count:   len(dtos),
	})
}

// handleResults handles GET /api/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.LatestResults()
	if err != nil {
		s.log.Warnf("No evaluation results: %v", err)
		s.respondError(w, http.StatusNotFound, "No evaluation results yet")
		return
	}

	dtos := newResultDTOs(records)
	s.respondJSON(w, http.StatusOK, ResultsResponse{Results: dtos, Count: len(dtos)})
}

// saveUpload copies a multipart file field into a temporary file.
func (s *Server) saveUpload(r *http.Request, field, prefix string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", fmt.Errorf("%s file is required", field)
	}
	defer file.Close()

	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), filepath.Base(header.Filename)))
	out, err := os.Create(tempFile)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(tempFile)
		return "", err
	}
	return tempFile, nil
}

// handleImportMotion handles POST /api/motion (multipart: motion, segment)
func (s *Server) handleImportMotion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	segment := r.FormValue("segment")
	if segment == "" {
		s.respondError(w, http.StatusBadRequest, "segment is required")
		return
	}

	tempFile, err := s.saveUpload(r, "motion", "motion")
	if err != nil {
		s.log.Errorf("Failed to save motion upload: %v", err)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.Remove(tempFile)

	out, err := s.service.ImportMotion(r.Context(), tempFile, segment)
	if err != nil {
		s.log.Errorf("Failed to import motion: %v", err)
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to import motion: %v", err))
		return
	}

	s.log.Infof("Imported motion for segment %s", segment)
	s.respondJSON(w, http.StatusCreated, ImportMotionResponse{
		Message: "Motion imported successfully",
		Segment: segment,
		Path:    out,
	})
}

// handleVideo handles POST /api/video (multipart: image, subject, segment)
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.StageTimeout)
	defer cancel()

	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}
	subject, segment := r.FormValue("subject"), r.FormValue("segment")
	if subject == "" || segment == "" {
		s.respondError(w, http.StatusBadRequest, "subject and segment are required")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	res, err := s.service.GenerateVideo(ctx, subject, segment, image)
	if err != nil {
		s.log.Errorf("Video generation failed for %s/%s: %v", subject, segment, err)
		s.respondError(w, statusFor(err), err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, VideoResponse{Seed: res.Seed, Frames: res.Frames, Count: len(res.Frames)})
}
