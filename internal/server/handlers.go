package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wujekbizon/wolfmed-progress/internal/rag"
)

// queryRequest is the body of POST /api/rag/query. The job id is generated
// by the browser so it can attach to the progress stream before, during, or
// after this request.
type queryRequest struct {
	JobID    string `json:"jobId"`
	Question string `json:"question"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func queryHandler(svc *rag.Service, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if svc == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "query pipeline not configured"}, logger)
			return
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"}, logger)
			return
		}
		if req.JobID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing jobId"}, logger)
			return
		}

		answer, err := svc.Query(r.Context(), req.JobID, req.Question)
		if err != nil {
			// The job's error event already carries the user-facing
			// message; this response is for callers not watching the
			// stream.
			logger.Warn("query failed", "job_id", req.JobID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "query failed"}, logger)
			return
		}

		writeJSON(w, http.StatusOK, answer, logger)
	})
}

// ingestRequest is the body of POST /api/rag/ingest. Like the query route,
// the job id comes from the caller so it can watch the progress stream.
type ingestRequest struct {
	JobID   string `json:"jobId"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

func ingestHandler(svc *rag.IngestService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if svc == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "ingest pipeline not configured"}, logger)
			return
		}

		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"}, logger)
			return
		}
		if req.JobID == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing jobId"}, logger)
			return
		}
		if req.Source == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing source"}, logger)
			return
		}

		result, err := svc.IngestMarkdown(r.Context(), req.JobID, req.Source, req.Content)
		if err != nil {
			logger.Warn("ingest failed", "job_id", req.JobID, "source", req.Source, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ingest failed"}, logger)
			return
		}

		writeJSON(w, http.StatusOK, result, logger)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any, logger *slog.Logger) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("response encode failed", "error", err)
	}
}
