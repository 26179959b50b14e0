package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/naming"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/types"
)

// DocumentContentType is the media type of DOCX responses.
const DocumentContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ServiceOptions configures a GenerationService.
type ServiceOptions struct {
	Strategy         generation.Strategy
	Renderer         pipeline.Renderer
	OutputDir        string // service archive; empty disables conflict checks and stored copies
	FilenameTemplate string
	Scanner          pipeline.EmployerScanner
	Logger           *slog.Logger
}

// GenerationService is the service side of the remote generation contract.
// It generates in-process, checks its own archive for the employer, and
// either streams the rendered document or answers 409 and holds the document
// until GET /proceed.
type GenerationService struct {
	strategy  generation.Strategy
	renderer  pipeline.Renderer
	resolver  *pipeline.Resolver
	outputDir string
	template  string
	validate  *validator.Validate
	logger    *slog.Logger
	suffix    func() int

	mu      sync.Mutex
	pending map[string]*heldDocument
}

type heldDocument struct {
	doc        *types.GeneratedDocument
	expected   string
	sourceText string
}

// NewGenerationService creates the service.
func NewGenerationService(opts ServiceOptions) (*GenerationService, error) {
	if opts.Strategy == nil {
		return nil, fmt.Errorf("generation strategy is required")
	}
	if opts.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	g := &GenerationService{
		strategy:  opts.Strategy,
		renderer:  opts.Renderer,
		resolver:  pipeline.NewResolver(opts.Scanner),
		outputDir: opts.OutputDir,
		template:  opts.FilenameTemplate,
		validate:  validator.New(),
		logger:    opts.Logger,
		suffix:    naming.RandomSuffix,
		pending:   make(map[string]*heldDocument),
	}
	if g.template == "" {
		g.template = naming.DefaultTemplate
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Pending returns the number of documents held for a decision.
func (g *GenerationService) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

func (g *GenerationService) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generation.GenerateRequest
	if err := decodeAndValidate(w, r, g.validate, &body); err != nil {
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	start := time.Now()
	result, err := g.strategy.Generate(r.Context(), &types.Request{
		ID:         body.ID,
		SourceText: body.SourceText,
		CreatedAt:  start,
	})
	if err != nil {
		g.logger.Error("generation failed", "request_id", body.ID, "error", err)
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}
	if !result.Materialized() {
		errorResponse(w, http.StatusInternalServerError, "generation returned no document")
		return
	}

	doc := result.Document
	expected := naming.ExpectedFileName(g.template, doc.RoleTitle, doc.EmployerName)
	g.logger.Info("generated", "request_id", body.ID, "employer", doc.EmployerName, "elapsed", time.Since(start))

	if g.outputDir != "" {
		state, err := g.resolver.Check(g.outputDir, doc.EmployerName)
		if err != nil {
			errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
		if state == pipeline.StatePendingConfirmation {
			g.hold(body.ID, &heldDocument{doc: doc, expected: expected, sourceText: body.SourceText})
			setDocumentHeaders(w, doc)
			errorResponse(w, http.StatusConflict, "A resume with the same company already exists")
			return
		}
	}

	g.export(w, body.ID, expected, doc, body.SourceText)
}

func (g *GenerationService) handleProceed(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		errorResponse(w, http.StatusBadRequest, "id is required")
		return
	}

	held, ok := g.take(id)
	if !ok {
		err := &ErrNotPending{ID: id}
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	g.export(w, id, naming.Disambiguate(held.expected, g.suffix()), held.doc, held.sourceText)
}

// export renders doc, keeps a copy in the service archive, and streams it.
func (g *GenerationService) export(w http.ResponseWriter, id, baseName string, doc *types.GeneratedDocument, sourceText string) {
	data, err := g.renderer.Render(doc)
	if err != nil {
		g.logger.Error("render failed", "request_id", id, "error", err)
		errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	if g.outputDir != "" {
		writer := &archive.Writer{Dir: g.outputDir, DocumentExtension: g.renderer.Extension()}
		if _, err := writer.Write(baseName, bytes.NewReader(data), sourceText); err != nil {
			g.logger.Error("failed to store export", "request_id", id, "error", err)
			errorResponse(w, HTTPStatus(err), err.Error())
			return
		}
	}

	fileName := baseName + g.renderer.Extension()
	setDocumentHeaders(w, doc)
	w.Header().Set("Content-Type", DocumentContentType)
	w.Header().Set(generation.HeaderSaveFilename, url.PathEscape(fileName))
	w.Header().Set(generation.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": fileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		g.logger.Warn("failed to stream document", "request_id", id, "error", err)
	}
}

func (g *GenerationService) hold(id string, held *heldDocument) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[id] = held
}

func (g *GenerationService) take(id string) (*heldDocument, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	held, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	return held, ok
}

// setDocumentHeaders carries employer and role outside the document body.
func setDocumentHeaders(w http.ResponseWriter, doc *types.GeneratedDocument) {
	w.Header().Set(generation.HeaderCompanyName, doc.EmployerName)
	w.Header().Set(generation.HeaderRoleTitle, doc.RoleTitle)
}
