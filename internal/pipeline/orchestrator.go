// Package pipeline sequences a capture through generation, conflict
// resolution and export, and reports progress as events.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/db"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/naming"
	"github.com/jonathan/quick-resume/internal/types"
)

// NoTextSelected is the capture error text when a capture carries no text.
const NoTextSelected = "No text selected"

// Renderer turns a generated document into the bytes of the document artifact.
type Renderer interface {
	Extension() string
	Render(doc *types.GeneratedDocument) ([]byte, error)
}

// HistoryStore records request outcomes. Failures to record are logged, never fatal.
type HistoryStore interface {
	RecordRequest(ctx context.Context, rec *db.RequestRecord) error
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir        string
	FilenameTemplate string
	Strategy         generation.Strategy
	Renderer         Renderer
	Scanner          EmployerScanner
	Registry         *Registry
	Sink             Sink
	Opener           archive.Opener // nil disables opening exports
	History          HistoryStore   // nil disables history
	Logger           *slog.Logger
}

// Orchestrator runs captures through the pipeline. Several captures may be in
// flight at once; each request's own steps run in order.
type Orchestrator struct {
	outputDir string
	template  string
	strategy  generation.Strategy
	renderer  Renderer
	resolver  *Resolver
	registry  *Registry
	sink      Sink
	opener    archive.Opener
	history   HistoryStore
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	suffix    func() int

	wg sync.WaitGroup
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Strategy == nil {
		return nil, &ConfigurationError{Message: "generation strategy is required"}
	}
	if opts.Renderer == nil {
		return nil, &ConfigurationError{Message: "renderer is required"}
	}

	o := &Orchestrator{
		outputDir: opts.OutputDir,
		template:  opts.FilenameTemplate,
		strategy:  opts.Strategy,
		renderer:  opts.Renderer,
		resolver:  NewResolver(opts.Scanner),
		registry:  opts.Registry,
		sink:      opts.Sink,
		opener:    opts.Opener,
		history:   opts.History,
		logger:    opts.Logger,
		now:       time.Now,
		newID:     uuid.NewString,
		suffix:    naming.RandomSuffix,
	}
	if o.template == "" {
		o.template = naming.DefaultTemplate
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.sink == nil {
		o.sink = FuncSink(func(Event) {})
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o, nil
}

// Registry returns the orchestrator's request store.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Submit runs one capture to completion or to a pending decision and returns
// its request id. An empty capture creates no request and returns a *CaptureError.
func (o *Orchestrator) Submit(ctx context.Context, sourceText string) (string, error) {
	req, err := o.start(sourceText)
	if err != nil {
		return "", err
	}
	return req.ID, o.run(ctx, req)
}

// Go starts a capture in the background and returns its request id, or ""
// for an empty capture. Use Wait to block until background captures finish.
func (o *Orchestrator) Go(ctx context.Context, sourceText string) string {
	req, err := o.start(sourceText)
	if err != nil {
		return ""
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.run(ctx, req)
	}()
	return req.ID
}

// Wait blocks until every capture started with Go, and every decision
// started with GoDecide, has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// start allocates and registers a request and announces it.
func (o *Orchestrator) start(sourceText string) (*types.Request, error) {
	if strings.TrimSpace(sourceText) == "" {
		o.emit(o.newID(), NoTextSelected, EventSelectedTextError)
		return nil, &CaptureError{Message: NoTextSelected}
	}

	req := &types.Request{
		ID:         o.newID(),
		SourceText: sourceText,
		CreatedAt:  o.now(),
	}
	if err := o.registry.Insert(req); err != nil {
		o.emit(req.ID, err.Error(), EventError)
		return nil, err
	}

	o.logger.Info("capture received", "request_id", req.ID, "chars", len(sourceText))
	o.emit(req.ID, sourceText, EventSelectedText)
	return req, nil
}

// run generates, resolves and exports one registered request.
func (o *Orchestrator) run(ctx context.Context, req *types.Request) error {
	result, err := o.strategy.Generate(ctx, req)
	if err != nil {
		return o.fail(ctx, req, nil, err)
	}

	label := describe(result.RoleTitle, result.Employer)
	o.logger.Info("generation complete", "request_id", req.ID, "employer", result.Employer, "elapsed", result.Elapsed)
	o.emit(req.ID, fmt.Sprintf("Generated : %s in %s", label, formatElapsed(result.Elapsed)), EventInfo)

	switch {
	case result.Conflict:
		return o.pend(ctx, req, &types.ConflictState{
			RequestID:    req.ID,
			EmployerName: result.Employer,
			RoleTitle:    result.RoleTitle,
			Elapsed:      result.Elapsed,
		})
	case result.Body != nil:
		if err := o.registry.Transition(req.ID, StateCleared); err != nil {
			_ = result.Body.Close()
			return o.fail(ctx, req, result, err)
		}
		return o.exportStream(ctx, req, result)
	case result.Materialized():
		return o.resolve(ctx, req, result)
	default:
		return o.fail(ctx, req, result, fmt.Errorf("generation returned neither a document nor a stream"))
	}
}

// resolve checks the archive for the generated employer and exports or pends.
func (o *Orchestrator) resolve(ctx context.Context, req *types.Request, result *generation.Result) error {
	doc := result.Document
	o.registry.SetResult(req.ID, doc)

	if err := o.checkOutputDir(); err != nil {
		return o.fail(ctx, req, result, err)
	}

	expected := naming.ExpectedFileName(o.template, doc.RoleTitle, doc.EmployerName)
	state, err := o.resolver.Check(o.outputDir, doc.EmployerName)
	if err != nil {
		return o.fail(ctx, req, result, err)
	}

	if state == StatePendingConfirmation {
		return o.pend(ctx, req, &types.ConflictState{
			RequestID:        req.ID,
			ExpectedFileName: expected,
			EmployerName:     doc.EmployerName,
			RoleTitle:        doc.RoleTitle,
			Elapsed:          result.Elapsed,
		})
	}

	if err := o.registry.Transition(req.ID, StateCleared); err != nil {
		return o.fail(ctx, req, result, err)
	}
	return o.exportDocument(ctx, req, result, expected)
}

func (o *Orchestrator) pend(ctx context.Context, req *types.Request, conflict *types.ConflictState) error {
	if err := o.registry.MarkPending(req.ID, conflict); err != nil {
		return o.fail(ctx, req, nil, err)
	}

	o.logger.Info("same employer already exported", "request_id", req.ID, "employer", conflict.EmployerName)
	o.emit(req.ID+ConflictSuffix,
		fmt.Sprintf("A resume with the same company already exists: %s", describe(conflict.RoleTitle, conflict.EmployerName)),
		EventSameCompany)
	o.record(ctx, req, StatePendingConfirmation, conflict.EmployerName, conflict.RoleTitle, nil, nil, conflict.Elapsed)
	return nil
}

// Decide applies an observer decision to a pending request. Decisions for
// unknown or no longer pending requests are ignored.
func (o *Orchestrator) Decide(ctx context.Context, d Decision) error {
	id := d.RequestID()
	entry, ok := o.registry.Claim(id, d.Proceed)
	if !ok {
		o.logger.Debug("decision ignored", "request_id", id)
		return nil
	}

	req := entry.Request
	conflict := entry.Conflict
	if conflict == nil {
		conflict = &types.ConflictState{RequestID: id}
	}

	if !d.Proceed {
		o.emit(id, fmt.Sprintf("Cancelled : %s", describe(conflict.RoleTitle, conflict.EmployerName)), EventSameCompanyWarning)
		o.record(ctx, req, StateDiscarded, conflict.EmployerName, conflict.RoleTitle, nil, nil, 0)
		o.registry.Delete(id)
		return nil
	}

	if req.Result != nil {
		result := &generation.Result{
			Document:  req.Result,
			Employer:  conflict.EmployerName,
			RoleTitle: conflict.RoleTitle,
			Elapsed:   conflict.Elapsed,
		}
		if err := o.checkOutputDir(); err != nil {
			return o.fail(ctx, req, result, err)
		}
		base := naming.Disambiguate(conflict.ExpectedFileName, o.suffix())
		return o.exportDocument(ctx, req, result, base)
	}

	resumer, ok := o.strategy.(generation.Resumer)
	if !ok {
		return o.fail(ctx, req, nil, fmt.Errorf("request %s has no document and the strategy cannot resume", id))
	}
	result, err := resumer.Resume(ctx, id)
	if err != nil {
		return o.fail(ctx, req, nil, err)
	}
	if result.Employer == "" {
		result.Employer = conflict.EmployerName
	}
	if result.RoleTitle == "" {
		result.RoleTitle = conflict.RoleTitle
	}
	// Generation and resume are one request from the observer's side
	result.Elapsed += conflict.Elapsed
	return o.exportStream(ctx, req, result)
}

// GoDecide applies a decision in the background.
func (o *Orchestrator) GoDecide(ctx context.Context, d Decision) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_ = o.Decide(ctx, d)
	}()
}

func (o *Orchestrator) exportDocument(ctx context.Context, req *types.Request, result *generation.Result, baseName string) error {
	data, err := o.renderer.Render(result.Document)
	if err != nil {
		return o.fail(ctx, req, result, err)
	}

	writer := &archive.Writer{Dir: o.outputDir, DocumentExtension: o.renderer.Extension()}
	export, err := writer.Write(baseName, bytes.NewReader(data), req.SourceText)
	if err != nil {
		return o.fail(ctx, req, result, o.classifyWriteError(err))
	}
	return o.finish(ctx, req, result, export)
}

func (o *Orchestrator) exportStream(ctx context.Context, req *types.Request, result *generation.Result) error {
	defer result.Body.Close()

	if err := o.checkOutputDir(); err != nil {
		return o.fail(ctx, req, result, err)
	}

	baseName, ext := splitSaveName(result.SaveName, o.renderer.Extension())
	if result.Employer == "" {
		result.Employer = naming.EmployerToken(baseName)
	}

	writer := &archive.Writer{Dir: o.outputDir, DocumentExtension: ext}
	export, err := writer.Write(baseName, result.Body, req.SourceText)
	if err != nil {
		return o.fail(ctx, req, result, o.classifyWriteError(err))
	}
	return o.finish(ctx, req, result, export)
}

func (o *Orchestrator) finish(ctx context.Context, req *types.Request, result *generation.Result, export *archive.Export) error {
	if err := o.registry.Transition(req.ID, StateExported); err != nil {
		o.logger.Warn("unexpected state after export", "request_id", req.ID, "error", err)
	}

	o.logger.Info("exported", "request_id", req.ID, "path", export.DocumentPath, "bytes", export.DocumentSize)
	o.emit(req.ID, fmt.Sprintf("Exported : %s -> %s (%s) in %s",
		describe(result.RoleTitle, result.Employer), export.BaseName,
		humanize.Bytes(uint64(export.DocumentSize)), formatElapsed(result.Elapsed)),
		EventSuccess)
	o.record(ctx, req, StateExported, result.Employer, result.RoleTitle, export, nil, result.Elapsed)

	if o.opener != nil {
		if err := o.opener.Open(ctx, export.DocumentPath); err != nil {
			o.logger.Warn("failed to open export", "path", export.DocumentPath, "error", err)
		}
	}
	return nil
}

// fail moves a request to StateFailed and emits its terminal error event.
func (o *Orchestrator) fail(ctx context.Context, req *types.Request, result *generation.Result, err error) error {
	if transitionErr := o.registry.Transition(req.ID, StateFailed); transitionErr != nil {
		o.logger.Debug("failed request not transitioned", "request_id", req.ID, "error", transitionErr)
	}

	o.logger.Error("request failed", "request_id", req.ID, "error", err)
	o.emit(req.ID, err.Error(), EventError)

	var employer, role string
	var elapsed time.Duration
	if result != nil {
		employer, role, elapsed = result.Employer, result.RoleTitle, result.Elapsed
	}
	o.record(ctx, req, StateFailed, employer, role, nil, err, elapsed)
	return err
}

func (o *Orchestrator) checkOutputDir() error {
	if o.outputDir == "" {
		return &ConfigurationError{Message: "output directory is not defined"}
	}
	info, err := os.Stat(o.outputDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ConfigurationError{Message: "output directory does not exist: " + o.outputDir, Cause: err}
		}
		return &archive.IOError{Op: "stat", Path: o.outputDir, Cause: err}
	}
	if !info.IsDir() {
		return &ConfigurationError{Message: "output path is not a directory: " + o.outputDir}
	}
	return nil
}

// classifyWriteError reports a vanished output directory as a configuration problem.
func (o *Orchestrator) classifyWriteError(err error) error {
	var ioErr *archive.IOError
	if errors.As(err, &ioErr) && ioErr.Op == "stat" && errors.Is(err, fs.ErrNotExist) {
		return &ConfigurationError{Message: "output directory does not exist: " + o.outputDir, Cause: err}
	}
	return err
}

func (o *Orchestrator) emit(id, text string, typ EventType) {
	o.sink.Emit(Event{ID: id, Text: text, Type: typ, Time: o.now()})
}

func (o *Orchestrator) record(ctx context.Context, req *types.Request, state State, employer, role string, export *archive.Export, cause error, elapsed time.Duration) {
	if o.history == nil {
		return
	}

	rec := &db.RequestRecord{
		ID:         req.ID,
		Employer:   employer,
		RoleTitle:  role,
		State:      string(state),
		SourceText: req.SourceText,
		Document:   req.Result,
		ElapsedMS:  elapsed.Milliseconds(),
		CreatedAt:  req.CreatedAt,
	}
	if export != nil {
		rec.BaseName = export.BaseName
		rec.DocumentPath = export.DocumentPath
	}
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}

	if err := o.history.RecordRequest(ctx, rec); err != nil {
		o.logger.Warn("failed to record history", "request_id", req.ID, "error", err)
	}
}

// splitSaveName strips a known document extension from a service file name.
// Any other suffix is part of the base name, since role titles may contain dots.
func splitSaveName(saveName, defaultExt string) (base, ext string) {
	for _, known := range []string{defaultExt, archive.DocumentExtension} {
		if known != "" && strings.HasSuffix(strings.ToLower(saveName), known) {
			return saveName[:len(saveName)-len(known)], saveName[len(saveName)-len(known):]
		}
	}
	return saveName, defaultExt
}

func describe(role, employer string) string {
	switch {
	case role == "":
		return employer
	case employer == "":
		return role
	}
	return role + " / " + employer
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
