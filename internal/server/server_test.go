package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/types"
)

type stubStrategy struct {
	doc *types.GeneratedDocument
	err error
}

func (s stubStrategy) Generate(context.Context, *types.Request) (*generation.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &generation.Result{Document: s.doc, Employer: s.doc.EmployerName, RoleTitle: s.doc.RoleTitle}, nil
}

type stubRenderer struct{}

func (stubRenderer) Extension() string { return ".docx" }

func (stubRenderer) Render(doc *types.GeneratedDocument) ([]byte, error) {
	return []byte("DOCX " + doc.RoleTitle + " @ " + doc.EmployerName), nil
}

func stubDocument(role, employer string) *types.GeneratedDocument {
	return &types.GeneratedDocument{
		EmployerName:     employer,
		RoleTitle:        role,
		ExperienceFirst:  []string{"a"},
		ExperienceSecond: []string{"b"},
		ExperienceThird:  []string{"c"},
	}
}

type testEnv struct {
	server       *Server
	orchestrator *pipeline.Orchestrator
	broker       *pipeline.Broker
	dir          string
}

func newTestEnv(t *testing.T, strategy generation.Strategy, history HistoryReader) *testEnv {
	t.Helper()
	dir := t.TempDir()
	broker := pipeline.NewBroker(16)

	orch, err := pipeline.New(pipeline.Options{
		OutputDir: dir,
		Strategy:  strategy,
		Renderer:  stubRenderer{},
		Sink:      broker,
	})
	require.NoError(t, err)

	srv, err := New(Config{
		OutputDir:    dir,
		Orchestrator: orch,
		Broker:       broker,
		History:      history,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, orchestrator: orch, broker: broker, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestNew_RequiresOrchestratorAndBroker(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["service"])
}

func TestHandleCapture(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Platform Engineer", "Globex")}, nil)

	w := env.do(t, http.MethodPost, "/captures", `{"text":"Globex is hiring"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	id := decodeBody[map[string]string](t, w)["id"]
	require.NotEmpty(t, id)

	env.orchestrator.Wait()

	w = env.do(t, http.MethodGet, "/archive", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeBody[[]archive.Entry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, "Globex", entries[0].Employer)
	assert.Equal(t, "Platform Engineer-Globex", entries[0].BaseName)
}

func TestHandleCapture_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantEvent bool
	}{
		{name: "empty text", body: `{"text":"   "}`, wantEvent: true},
		{name: "missing text", body: `{}`, wantEvent: true},
		{name: "invalid json", body: `{"text":`, wantEvent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)

			w := env.do(t, http.MethodPost, "/captures", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			events, err := env.broker.EventsAfter(0)
			require.NoError(t, err)
			if tt.wantEvent {
				require.Len(t, events, 1)
				assert.Equal(t, pipeline.EventSelectedTextError, events[0].Event.Type)
				assert.Equal(t, pipeline.NoTextSelected, events[0].Event.Text)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestHandleDecision_ProceedFlow(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Senior Engineer", "Acme")}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "Senior Engineer-Acme.txt"), []byte("original"), 0o644))

	w := env.do(t, http.MethodPost, "/captures", `{"text":"Acme again"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	env.orchestrator.Wait()

	w = env.do(t, http.MethodGet, "/pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	pending := decodeBody[[]PendingResponse](t, w)
	require.Len(t, pending, 1)
	assert.Equal(t, "Acme", pending[0].EmployerName)
	assert.Equal(t, pending[0].ID+pipeline.ConflictSuffix, pending[0].ConflictID)

	w = env.do(t, http.MethodPost, "/decisions", `{"id":"`+pending[0].ConflictID+`","proceed":true}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decodeBody[map[string]any](t, w)["pending"])
	env.orchestrator.Wait()

	w = env.do(t, http.MethodGet, "/pending", "")
	assert.Empty(t, decodeBody[[]PendingResponse](t, w))

	entries, err := archive.NewScanner().List(env.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	original, err := os.ReadFile(filepath.Join(env.dir, "Senior Engineer-Acme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(original))
}

func TestHandleDecision_Validation(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)

	w := env.do(t, http.MethodPost, "/decisions", `{"proceed":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ID")

	w = env.do(t, http.MethodPost, "/decisions", `{"id":"unknown","proceed":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, w)["pending"])
	env.orchestrator.Wait()

	events, err := env.broker.EventsAfter(0)
	require.NoError(t, err)
	assert.Empty(t, events, "unknown decision emits nothing")
}

// readSSE collects n data payloads from an event stream.
func readSSE(t *testing.T, resp *http.Response, n int) []pipeline.Event {
	t.Helper()
	var events []pipeline.Event
	scanner := bufio.NewScanner(resp.Body)
	for len(events) < n && scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev pipeline.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHandleEvents(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)
	env.broker.Emit(pipeline.Event{ID: "a", Text: "posting", Type: pipeline.EventSelectedText})
	env.broker.Emit(pipeline.Event{ID: "a", Text: "Exported : Role / Acme", Type: pipeline.EventSuccess})

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	tests := []struct {
		name      string
		lastID    string
		wantTypes []pipeline.EventType
	}{
		{name: "from start", wantTypes: []pipeline.EventType{pipeline.EventSelectedText, pipeline.EventSuccess}},
		{name: "resume after first", lastID: "1", wantTypes: []pipeline.EventType{pipeline.EventSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
			require.NoError(t, err)
			if tt.lastID != "" {
				req.Header.Set("Last-Event-ID", tt.lastID)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

			events := readSSE(t, resp, len(tt.wantTypes))
			require.Len(t, events, len(tt.wantTypes))
			for i, want := range tt.wantTypes {
				assert.Equal(t, want, events[i].Type)
			}
		})
	}
}

func TestHandleEvents_Live(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	env.broker.Emit(pipeline.Event{ID: "live", Text: "x", Type: pipeline.EventInfo})

	events := readSSE(t, resp, 1)
	require.Len(t, events, 1)
	assert.Equal(t, "live", events[0].ID)
}

func TestHandleEvents_InvalidCursor(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)

	for _, cursor := range []string{"abc", "-1", "99"} {
		w := env.do(t, http.MethodGet, "/events?cursor="+cursor, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, cursor)
	}
}

func TestHandleArchive_NoOutputDir(t *testing.T) {
	orch, err := pipeline.New(pipeline.Options{Strategy: stubStrategy{}, Renderer: stubRenderer{}})
	require.NoError(t, err)
	srv, err := New(Config{Orchestrator: orch, Broker: pipeline.NewBroker(0)})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/archive", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type stubHistory struct {
	filters db.RequestFilters
	records []db.RequestRecord
}

func (h *stubHistory) ListRequests(_ context.Context, filters db.RequestFilters) ([]db.RequestRecord, error) {
	h.filters = filters
	return h.records, nil
}

func (h *stubHistory) GetRequest(_ context.Context, id string) (*db.RequestRecord, error) {
	for i := range h.records {
		if h.records[i].ID == id {
			return &h.records[i], nil
		}
	}
	return nil, nil
}

func TestHandleHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)
		w := env.do(t, http.MethodGet, "/history", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("filters", func(t *testing.T) {
		history := &stubHistory{records: []db.RequestRecord{{ID: "r1", Employer: "Acme", State: "exported"}}}
		env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, history)

		w := env.do(t, http.MethodGet, "/history?employer=Acme&state=exported&limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, db.RequestFilters{Employer: "Acme", State: "exported", Limit: 5}, history.filters)

		records := decodeBody[[]db.RequestRecord](t, w)
		require.Len(t, records, 1)
		assert.Equal(t, "r1", records[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, &stubHistory{})
		w := env.do(t, http.MethodGet, "/history?limit=zero", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleHistoryRecord(t *testing.T) {
	const known = "6f1c2b9e-3d4a-4c5b-8e7f-0a1b2c3d4e5f"
	history := &stubHistory{records: []db.RequestRecord{{ID: known, Employer: "Acme", State: "exported", ElapsedMS: 1500}}}
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, history)

	tests := []struct {
		name string
		path string
		want int
	}{
		{name: "found", path: "/history/" + known, want: http.StatusOK},
		{name: "unknown", path: "/history/0d9c8b7a-6f5e-4d3c-2b1a-0f9e8d7c6b5a", want: http.StatusNotFound},
		{name: "malformed id", path: "/history/not-a-uuid", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.path, "")
			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				record := decodeBody[db.RequestRecord](t, w)
				assert.Equal(t, "Acme", record.Employer)
				assert.Equal(t, int64(1500), record.ElapsedMS)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, stubStrategy{doc: stubDocument("Role", "Acme")}, nil)

	w := env.do(t, http.MethodOptions, "/captures", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
