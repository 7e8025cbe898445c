// Package server exposes the polling HTTP surface over the pipeline:
// upload, status, logs, and result download. Handlers are thin; all state
// lives in the ledger and all processing happens in the orchestrator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdfreportflow/internal/ledger"
	"github.com/Lllllllleong/pdfreportflow/internal/models"
	"github.com/Lllllllleong/pdfreportflow/internal/workflow"
)

// DocumentUploader stores an uploaded stream and returns its URI.
type DocumentUploader interface {
	Upload(ctx context.Context, object string, r io.Reader, contentType string) (string, error)
}

// WorkflowStarter spawns a detached workflow for a task. The call returns
// before the workflow completes; completion is observed via the ledger only.
type WorkflowStarter interface {
	StartWorkflow(taskID, gcsURI string)
}

// Server routes HTTP requests to the ledger and the orchestrator.
type Server struct {
	store    ledger.Store
	tasks    *workflow.Service
	uploader DocumentUploader
	starter  WorkflowStarter
}

// New builds a Server over the given collaborators.
func New(store ledger.Store, tasks *workflow.Service, uploader DocumentUploader, starter WorkflowStarter) *Server {
	return &Server{store: store, tasks: tasks, uploader: uploader, starter: starter}
}

// Routes returns the configured request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/logs/{id}", s.handleLogs)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "message": "API is running."})
}

// handleUpload accepts a PDF, stores it, and starts the workflow. The
// response carries only the task id; the client polls for everything else.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Request must include a 'file' form field.")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		slog.Warn("Invalid file type uploaded.", "filename", filename)
		writeError(w, http.StatusBadRequest, "Invalid file type. Only PDF files are accepted.")
		return
	}

	taskID := uuid.NewString()
	logCtx := slog.With("taskId", taskID, "filename", filename)
	logCtx.Info("Received file upload.")

	if err := s.store.Create(taskID, filename); err != nil {
		logCtx.Error("Failed to create task.", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to register task.")
		return
	}

	object := fmt.Sprintf("%s_%s", taskID, filename)
	gcsURI, err := s.uploader.Upload(r.Context(), object, file, header.Header.Get("Content-Type"))
	if err != nil {
		logCtx.Error("Failed to upload document.", "error", err)
		_ = s.store.RecordError(taskID, fmt.Sprintf("upload failed: %v", err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to process file: %v", err))
		return
	}
	if err := s.store.SetSourceURI(taskID, gcsURI); err != nil {
		logCtx.Error("Failed to record source URI.", "error", err)
	}

	s.starter.StartWorkflow(taskID, gcsURI)
	logCtx.Info("Triggered background processing.", "gcsUri", gcsURI)

	writeJSON(w, http.StatusAccepted, models.UploadResponse{
		Message: "File received and processing started.",
		TaskID:  taskID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	view, err := s.tasks.GetStatus(taskID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task ID not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read task status.")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	view, err := s.tasks.GetStatus(taskID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Task ID not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read task logs.")
		return
	}
	writeJSON(w, http.StatusOK, models.LogsResponse{
		TaskID: taskID,
		Status: view.Status,
		Logs:   view.Log,
	})
}

// handleDownload serves the rendered report. Valid only once the task has
// completed; the download name derives from the original filename stem.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	resultPath, err := s.tasks.GetResultPath(taskID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			writeError(w, http.StatusNotFound, "Task ID not found.")
		case errors.Is(err, workflow.ErrNotReady):
			writeError(w, http.StatusBadRequest, "Processing not complete or result file not available.")
		default:
			writeError(w, http.StatusInternalServerError, "Failed to resolve result file.")
		}
		return
	}

	view, err := s.tasks.GetStatus(taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve result file.")
		return
	}
	stem := strings.TrimSuffix(view.Filename, filepath.Ext(view.Filename))
	downloadName := fmt.Sprintf("%s_extracted.xlsx", stem)

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, resultPath)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, models.ErrorResponse{Detail: detail})
}
