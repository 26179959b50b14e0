package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/pipeline"
)

// CaptureRequest is the body of POST /captures.
type CaptureRequest struct {
	Text string `json:"text"`
}

// PendingResponse describes a request awaiting a same-company decision.
type PendingResponse struct {
	ID               string    `json:"id"`
	ConflictID       string    `json:"conflictId"`
	EmployerName     string    `json:"employerName"`
	RoleTitle        string    `json:"roleTitle,omitempty"`
	ExpectedFileName string    `json:"expectedFileName,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// handleCapture starts a capture in the background. Progress is reported on /events.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	id := s.orchestrator.Go(s.baseCtx, req.Text)
	if id == "" {
		errorResponse(w, http.StatusBadRequest, pipeline.NoTextSelected)
		return
	}

	jsonResponse(w, http.StatusAccepted, map[string]string{"id": id})
}

// handleDecision applies a Proceed or Cancel answer. Unknown or already
// decided ids are accepted and ignored.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var decision pipeline.Decision
	if err := s.decodeJSON(w, r, &decision); err != nil {
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	id := decision.RequestID()
	entry, ok := s.orchestrator.Registry().Get(id)
	pending := ok && entry.State == pipeline.StatePendingConfirmation

	s.orchestrator.GoDecide(s.baseCtx, decision)
	jsonResponse(w, http.StatusAccepted, map[string]any{"id": id, "pending": pending})
}

// handlePending lists requests awaiting a decision, oldest first.
func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request) {
	entries := s.orchestrator.Registry().Pending()
	out := make([]PendingResponse, 0, len(entries))
	for _, e := range entries {
		p := PendingResponse{
			ID:         e.Request.ID,
			ConflictID: e.Request.ID + pipeline.ConflictSuffix,
			CreatedAt:  e.Request.CreatedAt,
		}
		if e.Conflict != nil {
			p.EmployerName = e.Conflict.EmployerName
			p.RoleTitle = e.Conflict.RoleTitle
			p.ExpectedFileName = e.Conflict.ExpectedFileName
		}
		out = append(out, p)
	}
	jsonResponse(w, http.StatusOK, out)
}

// handleEvents streams pipeline events as SSE. Clients resume with
// ?cursor=N or Last-Event-ID; a cursor older than the retained history
// gets a "reset" event and continues from the oldest retained event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.broker.EventsAfter(cursor); errors.Is(err, pipeline.ErrCursorInvalid) {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	for {
		changed := s.broker.Changed()

		events, err := s.broker.EventsAfter(cursor)
		switch {
		case errors.Is(err, pipeline.ErrCursorExpired):
			cursor = s.broker.Oldest()
			if sse.WriteEvent("reset", map[string]any{"cursor": cursor}) != nil {
				return
			}
			continue
		case err != nil:
			sse.WriteError(err.Error())
			return
		}

		for _, ev := range events {
			if err := sse.WriteEventWithID(ev.Seq, string(ev.Event.Type), ev.Event); err != nil {
				return
			}
			cursor = ev.Seq
		}

		select {
		case <-changed:
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			return
		}
	}
}

func parseCursor(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("cursor")
	if raw == "" {
		raw = strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	}
	if raw == "" {
		return 0, nil
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || cursor < 0 {
		return 0, &ErrValidation{Field: "cursor", Message: "must be a non-negative integer"}
	}
	return cursor, nil
}

// handleArchive lists the artifacts in the output directory.
func (s *Server) handleArchive(w http.ResponseWriter, _ *http.Request) {
	if s.outputDir == "" {
		errorResponse(w, http.StatusServiceUnavailable, "output directory is not defined")
		return
	}

	entries, err := s.scanner.List(s.outputDir)
	if err != nil {
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

// handleHistory lists stored request outcomes, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		errorResponse(w, http.StatusNotFound, "history is not configured")
		return
	}

	filters := db.RequestFilters{
		Employer: r.URL.Query().Get("employer"),
		State:    r.URL.Query().Get("state"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filters.Limit = limit
	}

	records, err := s.history.ListRequests(r.Context(), filters)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []db.RequestRecord{}
	}
	jsonResponse(w, http.StatusOK, records)
}

// handleHistoryRecord returns the stored outcome of one request.
func (s *Server) handleHistoryRecord(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		errorResponse(w, http.StatusNotFound, "history is not configured")
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request id")
		return
	}

	record, err := s.history.GetRequest(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get history record", "request_id", id, "error", err)
		errorResponse(w, http.StatusInternalServerError, "failed to get history record")
		return
	}
	if record == nil {
		errorResponse(w, http.StatusNotFound, "request not found")
		return
	}
	jsonResponse(w, http.StatusOK, record)
}
