package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/quick-resume/internal/capture"
	"github.com/jonathan/quick-resume/internal/config"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/observability"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/types"
)

type stubStrategy struct {
	doc *types.GeneratedDocument
}

func (s stubStrategy) Generate(context.Context, *types.Request) (*generation.Result, error) {
	return &generation.Result{Document: s.doc, Employer: s.doc.EmployerName, RoleTitle: s.doc.RoleTitle}, nil
}

type stubRenderer struct{}

func (stubRenderer) Extension() string { return ".docx" }

func (stubRenderer) Render(doc *types.GeneratedDocument) ([]byte, error) {
	return []byte("DOCX " + doc.EmployerName), nil
}

func testDocument(role, employer string) *types.GeneratedDocument {
	return &types.GeneratedDocument{
		EmployerName:     employer,
		RoleTitle:        role,
		DeveloperTitle:   "Software Engineer",
		Summary:          "Builds *reliable* services.",
		SkillGroups:      []types.SkillGroup{{GroupName: "Languages", Keywords: []string{"Go"}}},
		ExperienceFirst:  []string{"a"},
		ExperienceSecond: []string{"b"},
		ExperienceThird:  []string{"c"},
	}
}

func TestCaptureSources(t *testing.T) {
	stdin := strings.NewReader("posting")
	sources := captureSources(
		[]string{"-", "https://boards.greenhouse.io/acme/jobs/1", "posting.txt"},
		[]string{"https://jobs.lever.co/globex/2"},
		stdin,
		&config.Config{UseBrowser: true},
	)
	require.Len(t, sources, 4)

	assert.IsType(t, capture.Reader{}, sources[0])
	assert.IsType(t, capture.URL{}, sources[1])
	assert.IsType(t, capture.File{}, sources[2])

	remote, ok := sources[3].(capture.URL)
	require.True(t, ok)
	assert.Equal(t, "https://jobs.lever.co/globex/2", remote.URL)
	assert.True(t, remote.Options.UseBrowser)
}

func TestConsoleSink(t *testing.T) {
	tests := []struct {
		name  string
		event pipeline.Event
		want  string
	}{
		{
			name:  "captured text is summarized",
			event: pipeline.Event{ID: "0123456789abcdef", Text: "héllo", Type: pipeline.EventSelectedText},
			want:  "[01234567] INFO    Captured 5 characters\n",
		},
		{
			name:  "success",
			event: pipeline.Event{ID: "abc", Text: "Exported : Lead / Acme", Type: pipeline.EventSuccess},
			want:  "[abc] SUCCESS Exported : Lead / Acme\n",
		},
		{
			name:  "conflict is a warning",
			event: pipeline.Event{ID: "abc-same-company", Text: "exists", Type: pipeline.EventSameCompany},
			want:  "[abc-same] WARNING exists\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newConsoleSink(&buf).Emit(tt.event)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestConflictPrompter(t *testing.T) {
	entry := pipeline.Entry{
		Request:  &types.Request{ID: "r1"},
		Conflict: &types.ConflictState{EmployerName: "Acme", RoleTitle: "Lead"},
	}

	tests := []struct {
		name        string
		mode        string
		interactive bool
		input       string
		want        bool
		wantOutput  string
	}{
		{name: "proceed mode", mode: conflictProceed, want: true},
		{name: "cancel mode", mode: conflictCancel, want: false},
		{name: "non-interactive ask cancels", mode: conflictAsk, wantOutput: "not a terminal"},
		{name: "yes", mode: conflictAsk, interactive: true, input: "y\n", want: true, wantOutput: "[y/N]"},
		{name: "full yes", mode: conflictAsk, interactive: true, input: "Yes\n", want: true},
		{name: "no", mode: conflictAsk, interactive: true, input: "n\n", want: false},
		{name: "empty answer defaults to no", mode: conflictAsk, interactive: true, input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &conflictPrompter{
				mode:        tt.mode,
				in:          bufio.NewReader(strings.NewReader(tt.input)),
				out:         &out,
				interactive: tt.interactive,
			}
			got, err := p.confirm(entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.wantOutput != "" {
				assert.Contains(t, out.String(), tt.wantOutput)
			}
		})
	}
}

func TestResolvePending(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		exports int
	}{
		{name: "proceed exports under a suffixed name", mode: conflictProceed, exports: 1},
		{name: "cancel discards", mode: conflictCancel, exports: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "Lead-Acme.txt"), []byte("earlier"), 0o644))

			recorder := &pipeline.Recorder{}
			orch, err := pipeline.New(pipeline.Options{
				OutputDir: dir,
				Strategy:  stubStrategy{doc: testDocument("Lead", "Acme")},
				Renderer:  stubRenderer{},
				Sink:      recorder,
			})
			require.NoError(t, err)

			_, err = orch.Submit(t.Context(), "Acme posting")
			require.NoError(t, err)
			require.Len(t, orch.Registry().Pending(), 1)

			var out bytes.Buffer
			prompter := &conflictPrompter{mode: tt.mode, in: bufio.NewReader(strings.NewReader("")), out: &out}
			require.NoError(t, resolvePending(t.Context(), orch, prompter))
			assert.Empty(t, orch.Registry().Pending())

			matches, err := filepath.Glob(filepath.Join(dir, "Lead-Acme(*).docx"))
			require.NoError(t, err)
			assert.Len(t, matches, tt.exports)
		})
	}
}

func TestPrintingStrategy(t *testing.T) {
	var out bytes.Buffer
	s := &printingStrategy{
		Strategy: stubStrategy{doc: testDocument("Lead", "Acme")},
		printer:  observability.NewPrinter(&out),
	}

	result, err := s.Generate(t.Context(), &types.Request{ID: "r1", SourceText: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Acme", result.Employer)
	assert.Contains(t, out.String(), "GENERATED DOCUMENT")
}
