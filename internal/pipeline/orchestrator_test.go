package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/types"
)

type fakeStrategy struct {
	generate func(ctx context.Context, req *types.Request) (*generation.Result, error)
}

func (f *fakeStrategy) Generate(ctx context.Context, req *types.Request) (*generation.Result, error) {
	return f.generate(ctx, req)
}

// fakeRemote resolves conflicts on the service side.
type fakeRemote struct {
	fakeStrategy
	resume func(ctx context.Context, id string) (*generation.Result, error)
}

func (f *fakeRemote) Resume(ctx context.Context, id string) (*generation.Result, error) {
	return f.resume(ctx, id)
}

type fakeRenderer struct {
	err error
}

func (fakeRenderer) Extension() string { return ".docx" }

func (r fakeRenderer) Render(doc *types.GeneratedDocument) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("docx:" + doc.RoleTitle + "/" + doc.EmployerName), nil
}

type fakeHistory struct {
	mu      sync.Mutex
	records []db.RequestRecord
}

func (h *fakeHistory) RecordRequest(_ context.Context, rec *db.RequestRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, *rec)
	return nil
}

type fakeOpener struct {
	mu    sync.Mutex
	paths []string
}

func (o *fakeOpener) Open(_ context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, path)
	return nil
}

func testDocument(role, employer string) *types.GeneratedDocument {
	return &types.GeneratedDocument{
		EmployerName:     employer,
		RoleTitle:        role,
		DeveloperTitle:   "Software Engineer",
		Summary:          "Builds services.",
		SkillGroups:      []types.SkillGroup{{GroupName: "Languages", Keywords: []string{"Go"}}},
		ExperienceFirst:  []string{"a"},
		ExperienceSecond: []string{"b"},
		ExperienceThird:  []string{"c"},
	}
}

func documentStrategy(role, employer string) *fakeStrategy {
	return &fakeStrategy{generate: func(context.Context, *types.Request) (*generation.Result, error) {
		return &generation.Result{
			Document:  testDocument(role, employer),
			Employer:  employer,
			RoleTitle: role,
			Elapsed:   1500 * time.Millisecond,
		}, nil
	}}
}

func newTestOrchestrator(t *testing.T, dir string, strategy generation.Strategy) (*Orchestrator, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	o, err := New(Options{
		OutputDir: dir,
		Strategy:  strategy,
		Renderer:  fakeRenderer{},
		Sink:      rec,
	})
	require.NoError(t, err)
	o.suffix = func() int { return 7 }
	return o, rec
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestNew_RequiresStrategyAndRenderer(t *testing.T) {
	_, err := New(Options{Renderer: fakeRenderer{}})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(Options{Strategy: documentStrategy("r", "e")})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestOrchestrator_ExportsNewEmployer(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Senior Engineer-Acme.txt", "old posting")

	o, rec := newTestOrchestrator(t, dir, documentStrategy("Platform Engineer", "Globex"))

	id, err := o.Submit(context.Background(), "Globex is hiring")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.Equal(t, []string{
		"Platform Engineer-Globex.docx",
		"Platform Engineer-Globex.txt",
		"Senior Engineer-Acme.txt",
	}, listDir(t, dir))

	source, err := os.ReadFile(filepath.Join(dir, "Platform Engineer-Globex.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Globex is hiring", string(source))

	events := rec.ForID(id)
	assert.Equal(t, []EventType{EventSelectedText, EventInfo, EventSuccess}, eventTypes(events))
	assert.Equal(t, "Globex is hiring", events[0].Text)
	assert.Equal(t, "Generated : Platform Engineer / Globex in 1.5s", events[1].Text)
	assert.True(t, strings.HasPrefix(events[2].Text, "Exported : Platform Engineer / Globex -> Platform Engineer-Globex ("))
	assert.True(t, strings.HasSuffix(events[2].Text, ") in 1.5s"), events[2].Text)

	entry, ok := o.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, StateExported, entry.State)
}

func TestOrchestrator_SameEmployerPendsThenProceeds(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Senior Engineer-Acme.txt", "original")

	o, rec := newTestOrchestrator(t, dir, documentStrategy("Senior Engineer", "Acme"))
	ctx := context.Background()

	id, err := o.Submit(ctx, "Acme again")
	require.NoError(t, err)

	// Nothing is written while the decision is pending
	assert.Equal(t, []string{"Senior Engineer-Acme.txt"}, listDir(t, dir))

	events := rec.ForID(id)
	require.Equal(t, []EventType{EventSelectedText, EventInfo, EventSameCompany}, eventTypes(events))
	assert.Equal(t, id+ConflictSuffix, events[2].ID)
	assert.Contains(t, events[2].Text, "Senior Engineer / Acme")

	entry, _ := o.Registry().Get(id)
	assert.Equal(t, StatePendingConfirmation, entry.State)
	assert.Equal(t, "Senior Engineer-Acme", entry.Conflict.ExpectedFileName)

	require.NoError(t, o.Decide(ctx, Decision{ID: id + ConflictSuffix, Proceed: true}))

	assert.Equal(t, []string{
		"Senior Engineer-Acme(7).docx",
		"Senior Engineer-Acme(7).txt",
		"Senior Engineer-Acme.txt",
	}, listDir(t, dir))

	original, err := os.ReadFile(filepath.Join(dir, "Senior Engineer-Acme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(original))

	events = rec.ForID(id)
	last := events[len(events)-1]
	assert.Equal(t, EventSuccess, last.Type)
	assert.True(t, strings.HasSuffix(last.Text, " in 1.5s"), last.Text)

	entry, _ = o.Registry().Get(id)
	assert.Equal(t, StateExported, entry.State)
}

func TestOrchestrator_ProceedKeepsGenerationElapsed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Senior Engineer-Acme.txt", "original")
	history := &fakeHistory{}

	o, err := New(Options{
		OutputDir: dir,
		Strategy:  documentStrategy("Senior Engineer", "Acme"),
		Renderer:  fakeRenderer{},
		History:   history,
	})
	require.NoError(t, err)
	o.suffix = func() int { return 7 }
	ctx := context.Background()

	id, err := o.Submit(ctx, "Acme again")
	require.NoError(t, err)

	entry, _ := o.Registry().Get(id)
	require.NotNil(t, entry.Conflict)
	assert.Equal(t, 1500*time.Millisecond, entry.Conflict.Elapsed)

	require.NoError(t, o.Decide(ctx, Decision{ID: id, Proceed: true}))

	require.Len(t, history.records, 2)
	assert.Equal(t, string(StatePendingConfirmation), history.records[0].State)
	assert.Equal(t, int64(1500), history.records[0].ElapsedMS)
	assert.Equal(t, string(StateExported), history.records[1].State)
	assert.Equal(t, int64(1500), history.records[1].ElapsedMS)
	assert.Equal(t, "Senior Engineer-Acme(7)", history.records[1].BaseName)
}

func TestOrchestrator_SameEmployerCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Senior Engineer-Acme.txt", "original")

	o, rec := newTestOrchestrator(t, dir, documentStrategy("Senior Engineer", "Acme"))
	ctx := context.Background()

	id, err := o.Submit(ctx, "Acme again")
	require.NoError(t, err)

	require.NoError(t, o.Decide(ctx, Decision{ID: id, Proceed: false}))

	assert.Equal(t, []string{"Senior Engineer-Acme.txt"}, listDir(t, dir))
	events := rec.ForID(id)
	last := events[len(events)-1]
	assert.Equal(t, EventSameCompanyWarning, last.Type)
	assert.Equal(t, id, last.ID)

	_, ok := o.Registry().Get(id)
	assert.False(t, ok, "discarded request is removed")

	// A late second decision is a no-op
	count := len(rec.Events())
	require.NoError(t, o.Decide(ctx, Decision{ID: id, Proceed: true}))
	assert.Len(t, rec.Events(), count)
	assert.Equal(t, []string{"Senior Engineer-Acme.txt"}, listDir(t, dir))
}

func TestOrchestrator_UnknownDecisionIgnored(t *testing.T) {
	o, rec := newTestOrchestrator(t, t.TempDir(), documentStrategy("r", "e"))

	require.NoError(t, o.Decide(context.Background(), Decision{ID: "missing", Proceed: true}))
	assert.Empty(t, rec.Events())
}

func TestOrchestrator_ProceedCollisionFailsClosed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Senior Engineer-Acme.txt", "original")
	writeFile(t, dir, "Senior Engineer-Acme(7).docx", "earlier export")

	o, rec := newTestOrchestrator(t, dir, documentStrategy("Senior Engineer", "Acme"))
	ctx := context.Background()

	id, err := o.Submit(ctx, "Acme again")
	require.NoError(t, err)

	err = o.Decide(ctx, Decision{ID: id, Proceed: true})
	require.Error(t, err)

	earlier, readErr := os.ReadFile(filepath.Join(dir, "Senior Engineer-Acme(7).docx"))
	require.NoError(t, readErr)
	assert.Equal(t, "earlier export", string(earlier))

	events := rec.ForID(id)
	assert.Equal(t, EventError, events[len(events)-1].Type)

	entry, _ := o.Registry().Get(id)
	assert.Equal(t, StateFailed, entry.State)
}

func TestOrchestrator_EmptyCapture(t *testing.T) {
	o, rec := newTestOrchestrator(t, t.TempDir(), documentStrategy("r", "e"))

	id, err := o.Submit(context.Background(), "   \n")
	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	assert.Empty(t, id)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventSelectedTextError, events[0].Type)
	assert.Equal(t, NoTextSelected, events[0].Text)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, 0, o.Registry().Len())

	assert.Empty(t, o.Go(context.Background(), ""))
}

func TestOrchestrator_GenerationFailure(t *testing.T) {
	dir := t.TempDir()
	strategy := &fakeStrategy{generate: func(context.Context, *types.Request) (*generation.Result, error) {
		return nil, &generation.TransportError{Op: "generate", StatusCode: 500, Message: "service unavailable"}
	}}
	o, rec := newTestOrchestrator(t, dir, strategy)

	id, err := o.Submit(context.Background(), "posting")
	var transportErr *generation.TransportError
	require.ErrorAs(t, err, &transportErr)

	events := rec.ForID(id)
	assert.Equal(t, []EventType{EventSelectedText, EventError}, eventTypes(events))
	assert.Empty(t, listDir(t, dir))

	entry, _ := o.Registry().Get(id)
	assert.Equal(t, StateFailed, entry.State)
}

func TestOrchestrator_RenderFailure(t *testing.T) {
	dir := t.TempDir()
	rec := &Recorder{}
	o, err := New(Options{
		OutputDir: dir,
		Strategy:  documentStrategy("Role", "Globex"),
		Renderer:  fakeRenderer{err: errors.New("template broken")},
		Sink:      rec,
	})
	require.NoError(t, err)

	id, err := o.Submit(context.Background(), "posting")
	require.Error(t, err)

	events := rec.ForID(id)
	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Contains(t, events[len(events)-1].Text, "template broken")
	assert.Empty(t, listDir(t, dir))
}

func TestOrchestrator_MissingOutputDirectory(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{name: "not configured", dir: func(*testing.T) string { return "" }},
		{name: "does not exist", dir: func(t *testing.T) string { return filepath.Join(t.TempDir(), "gone") }},
		{name: "is a file", dir: func(t *testing.T) string {
			dir := t.TempDir()
			writeFile(t, dir, "file", "x")
			return filepath.Join(dir, "file")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, rec := newTestOrchestrator(t, tt.dir(t), documentStrategy("Role", "Globex"))

			id, err := o.Submit(context.Background(), "posting")
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)

			events := rec.ForID(id)
			assert.Equal(t, EventError, events[len(events)-1].Type)
		})
	}
}

func TestOrchestrator_ConcurrentCaptures(t *testing.T) {
	dir := t.TempDir()
	strategy := &fakeStrategy{generate: func(_ context.Context, req *types.Request) (*generation.Result, error) {
		employer := strings.TrimPrefix(req.SourceText, "posting from ")
		return &generation.Result{Document: testDocument("Engineer", employer), Employer: employer, RoleTitle: "Engineer"}, nil
	}}
	o, rec := newTestOrchestrator(t, dir, strategy)

	ids := map[string]bool{}
	for _, employer := range []string{"Acme", "Globex", "Initech"} {
		id := o.Go(context.Background(), "posting from "+employer)
		require.NotEmpty(t, id)
		ids[id] = true
	}
	o.Wait()

	assert.Len(t, ids, 3)
	for id := range ids {
		events := rec.ForID(id)
		require.NotEmpty(t, events)
		assert.Equal(t, EventSelectedText, events[0].Type)
		assert.Equal(t, EventSuccess, events[len(events)-1].Type)
	}
	assert.Len(t, listDir(t, dir), 6)
}

// barrierRenderer holds every Render until n renders are in flight, so each
// capture has passed its archive check before any of them writes.
type barrierRenderer struct {
	wg *sync.WaitGroup
}

func (barrierRenderer) Extension() string { return ".docx" }

func (r barrierRenderer) Render(doc *types.GeneratedDocument) ([]byte, error) {
	r.wg.Done()
	r.wg.Wait()
	return []byte("docx:" + doc.EmployerName), nil
}

func TestOrchestrator_ConcurrentSameNewEmployerFailsClosed(t *testing.T) {
	dir := t.TempDir()
	var wg sync.WaitGroup
	wg.Add(2)

	rec := &Recorder{}
	o, err := New(Options{
		OutputDir: dir,
		Strategy:  documentStrategy("Lead", "Globex"),
		Renderer:  barrierRenderer{wg: &wg},
		Sink:      rec,
	})
	require.NoError(t, err)

	first := o.Go(context.Background(), "first Globex posting")
	second := o.Go(context.Background(), "second Globex posting")
	o.Wait()

	// Both passed the archive check; the second write is refused, not merged
	assert.Equal(t, []string{"Lead-Globex.docx", "Lead-Globex.txt"}, listDir(t, dir))

	terminal := map[EventType]int{}
	for _, id := range []string{first, second} {
		events := rec.ForID(id)
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		terminal[last.Type]++
		if last.Type == EventError {
			assert.Contains(t, last.Text, "Lead-Globex")
		}
	}
	assert.Equal(t, map[EventType]int{EventSuccess: 1, EventError: 1}, terminal)
	assert.Empty(t, o.Registry().Pending())
}

func TestOrchestrator_RemoteStream(t *testing.T) {
	dir := t.TempDir()
	strategy := &fakeRemote{fakeStrategy: fakeStrategy{generate: func(context.Context, *types.Request) (*generation.Result, error) {
		return &generation.Result{
			Body:     io.NopCloser(strings.NewReader("remote docx")),
			SaveName: "Staff Engineer v2.0-Globex.docx",
			Elapsed:  2 * time.Second,
		}, nil
	}}}
	o, rec := newTestOrchestrator(t, dir, strategy)

	id, err := o.Submit(context.Background(), "posting")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Staff Engineer v2.0-Globex.docx",
		"Staff Engineer v2.0-Globex.txt",
	}, listDir(t, dir))

	events := rec.ForID(id)
	assert.Equal(t, EventSuccess, events[len(events)-1].Type)
	assert.Contains(t, events[len(events)-1].Text, "Globex")
}

func TestOrchestrator_RemoteConflictResume(t *testing.T) {
	dir := t.TempDir()
	var resumed string
	strategy := &fakeRemote{
		fakeStrategy: fakeStrategy{generate: func(context.Context, *types.Request) (*generation.Result, error) {
			return &generation.Result{Conflict: true, Employer: "Acme", RoleTitle: "Lead", Elapsed: 2 * time.Second}, nil
		}},
		resume: func(_ context.Context, id string) (*generation.Result, error) {
			resumed = id
			return &generation.Result{
				Body:     io.NopCloser(strings.NewReader("remote docx")),
				SaveName: "Lead-Acme(3).docx",
				Elapsed:  500 * time.Millisecond,
			}, nil
		},
	}
	o, rec := newTestOrchestrator(t, dir, strategy)
	ctx := context.Background()

	id, err := o.Submit(ctx, "posting")
	require.NoError(t, err)
	assert.Empty(t, listDir(t, dir))

	events := rec.ForID(id)
	assert.Equal(t, EventSameCompany, events[len(events)-1].Type)

	require.NoError(t, o.Decide(ctx, Decision{ID: id + ConflictSuffix, Proceed: true}))
	assert.Equal(t, id, resumed)
	assert.Equal(t, []string{"Lead-Acme(3).docx", "Lead-Acme(3).txt"}, listDir(t, dir))

	events = rec.ForID(id)
	last := events[len(events)-1]
	assert.Equal(t, EventSuccess, last.Type)
	assert.Contains(t, last.Text, "Lead / Acme")
	assert.True(t, strings.HasSuffix(last.Text, " in 2.5s"), last.Text)
}

func TestOrchestrator_RemoteConflictWithoutResumer(t *testing.T) {
	strategy := &fakeStrategy{generate: func(context.Context, *types.Request) (*generation.Result, error) {
		return &generation.Result{Conflict: true, Employer: "Acme"}, nil
	}}
	o, rec := newTestOrchestrator(t, t.TempDir(), strategy)
	ctx := context.Background()

	id, err := o.Submit(ctx, "posting")
	require.NoError(t, err)

	require.Error(t, o.Decide(ctx, Decision{ID: id, Proceed: true}))
	events := rec.ForID(id)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestOrchestrator_HistoryAndOpener(t *testing.T) {
	dir := t.TempDir()
	history := &fakeHistory{}
	opener := &fakeOpener{}

	o, err := New(Options{
		OutputDir: dir,
		Strategy:  documentStrategy("Platform Engineer", "Globex"),
		Renderer:  fakeRenderer{},
		History:   history,
		Opener:    opener,
	})
	require.NoError(t, err)

	id, err := o.Submit(context.Background(), "posting")
	require.NoError(t, err)

	require.Len(t, history.records, 1)
	record := history.records[0]
	assert.Equal(t, id, record.ID)
	assert.Equal(t, string(StateExported), record.State)
	assert.Equal(t, "Globex", record.Employer)
	assert.Equal(t, "Platform Engineer-Globex", record.BaseName)
	assert.Equal(t, int64(1500), record.ElapsedMS)
	require.NotNil(t, record.Document)

	assert.Equal(t, []string{filepath.Join(dir, "Platform Engineer-Globex.docx")}, opener.paths)
}

func TestSplitSaveName(t *testing.T) {
	tests := []struct {
		in       string
		wantBase string
		wantExt  string
	}{
		{"Role-Acme.docx", "Role-Acme", ".docx"},
		{"Role-Acme.DOCX", "Role-Acme", ".DOCX"},
		{"Role v1.5-Acme", "Role v1.5-Acme", ".docx"},
		{"Role-Acme(3).docx", "Role-Acme(3)", ".docx"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			base, ext := splitSaveName(tt.in, ".docx")
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Role / Acme", describe("Role", "Acme"))
	assert.Equal(t, "Acme", describe("", "Acme"))
	assert.Equal(t, "Role", describe("Role", ""))
	assert.Equal(t, "250ms", formatElapsed(250*time.Millisecond))
}
