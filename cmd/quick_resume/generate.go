package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/quick-resume/internal/archive"
	"github.com/jonathan/quick-resume/internal/capture"
	"github.com/jonathan/quick-resume/internal/config"
	"github.com/jonathan/quick-resume/internal/fetch"
	"github.com/jonathan/quick-resume/internal/generation"
	"github.com/jonathan/quick-resume/internal/observability"
	"github.com/jonathan/quick-resume/internal/pipeline"
	"github.com/jonathan/quick-resume/internal/rendering"
	"github.com/jonathan/quick-resume/internal/types"
)

// Conflict handling modes for --on-conflict
const (
	conflictAsk     = "ask"
	conflictProceed = "proceed"
	conflictCancel  = "cancel"
)

// maxParallelCaptures bounds concurrent generations in one invocation.
const maxParallelCaptures = 4

var generateCmd = &cobra.Command{
	Use:   "generate [file|url|-]...",
	Short: "Generate and export a resume for each captured posting",
	Long: `Generate runs each capture through the pipeline: generation, a check of the
output archive for the same employer, and export of the document together with
its source text.

Each argument is a file path, an http(s) URL, or - for stdin. When an employer
already has a resume in the archive, --on-conflict decides: ask (prompt when
stdin is a terminal, otherwise cancel), proceed (export under a suffixed name)
or cancel.`,
	RunE: runGenerate,
}

var (
	generateURLs       []string
	generateOnConflict string
)

func init() {
	addOutputFlags(generateCmd)
	addGenerationFlags(generateCmd)
	generateCmd.Flags().StringArrayVar(&generateURLs, "url", nil, "Job posting URL to capture (repeatable)")
	generateCmd.Flags().BoolVar(&flagUseBrowser, "use-browser", false, "Use headless browser for SPA sites (requires Chrome)")
	generateCmd.Flags().BoolVar(&flagOpen, "open", false, "Open each exported document in the platform viewer")
	generateCmd.Flags().StringVar(&generateOnConflict, "on-conflict", conflictAsk, "Same-employer handling: ask, proceed or cancel")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	switch generateOnConflict {
	case conflictAsk, conflictProceed, conflictCancel:
	default:
		return fmt.Errorf("invalid --on-conflict %q (want ask, proceed or cancel)", generateOnConflict)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	sources := captureSources(args, generateURLs, cmd.InOrStdin(), cfg)
	if len(sources) == 0 {
		return fmt.Errorf("nothing to capture: pass a file, a URL or - for stdin")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, closeStrategy, err := buildStrategy(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStrategy() }()

	out := cmd.OutOrStdout()
	if cfg.Verbose && cfg.Strategy == config.StrategyLocal {
		strategy = &printingStrategy{Strategy: strategy, printer: observability.NewPrinter(out)}
	}

	opts := pipeline.Options{
		OutputDir:        cfg.OutputDir,
		FilenameTemplate: cfg.OutputFilename,
		Strategy:         strategy,
		Renderer:         &rendering.DOCXRenderer{TemplatePath: cfg.Template},
		Sink:             newConsoleSink(out),
		Logger:           logger,
	}
	if cfg.OpenAfterExport {
		opts.Opener = archive.SystemOpener{}
	}

	history, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
		opts.History = history
	}

	orch, err := pipeline.New(opts)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(maxParallelCaptures)
	for _, source := range sources {
		g.Go(func() error {
			text, err := source.Text(ctx)
			if err != nil {
				return fmt.Errorf("capture %s: %w", source.Describe(), err)
			}
			logger.Debug("captured", "source", source.Describe(), "chars", len(text))
			_, err = orch.Submit(ctx, text)
			return err
		})
	}
	runErr := g.Wait()

	prompter := &conflictPrompter{
		mode:        generateOnConflict,
		in:          bufio.NewReader(cmd.InOrStdin()),
		out:         out,
		interactive: observability.IsTerminal(cmd.InOrStdin()),
	}
	return errors.Join(runErr, resolvePending(ctx, orch, prompter))
}

// captureSources turns positional arguments and --url values into capture sources.
func captureSources(args, urls []string, stdin io.Reader, cfg *config.Config) []capture.Source {
	fetchOpts := fetch.DefaultOptions()
	fetchOpts.UseBrowser = cfg.UseBrowser

	sources := make([]capture.Source, 0, len(args)+len(urls))
	for _, arg := range args {
		sources = append(sources, capture.FromArg(arg, stdin, fetchOpts))
	}
	for _, u := range urls {
		sources = append(sources, capture.URL{URL: u, Options: fetchOpts})
	}
	return sources
}

// resolvePending decides every request still waiting on a same-employer conflict.
func resolvePending(ctx context.Context, orch *pipeline.Orchestrator, prompter *conflictPrompter) error {
	var errs []error
	for _, entry := range orch.Registry().Pending() {
		proceed, err := prompter.confirm(entry)
		if err != nil {
			return err
		}
		decision := pipeline.Decision{ID: entry.Request.ID, Proceed: proceed}
		if err := orch.Decide(ctx, decision); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// conflictPrompter answers same-employer conflicts per --on-conflict.
type conflictPrompter struct {
	mode        string
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func (p *conflictPrompter) confirm(entry pipeline.Entry) (bool, error) {
	switch p.mode {
	case conflictProceed:
		return true, nil
	case conflictCancel:
		return false, nil
	}

	if !p.interactive {
		_, _ = fmt.Fprintln(p.out, "stdin is not a terminal; cancelling same-employer export (use --on-conflict=proceed to export anyway)")
		return false, nil
	}

	employer, role := "", ""
	if entry.Conflict != nil {
		employer, role = entry.Conflict.EmployerName, entry.Conflict.RoleTitle
	}
	_, _ = fmt.Fprintf(p.out, "A resume for %s already exists. Export %q anyway? [y/N]: ", employer, role)

	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// consoleSink prints pipeline events as status lines.
type consoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleSink(out io.Writer) *consoleSink {
	return &consoleSink{out: out}
}

// Emit prints one event. Captured text is summarized, not echoed.
func (c *consoleSink) Emit(event pipeline.Event) {
	text := event.Text
	if event.Type == pipeline.EventSelectedText {
		text = fmt.Sprintf("Captured %d characters", utf8.RuneCountInString(event.Text))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "[%s] %-7s %s\n", shortRequestID(event.ID), strings.ToUpper(event.Type.Severity()), text)
}

func shortRequestID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// printingStrategy prints each generated document before it is resolved.
type printingStrategy struct {
	generation.Strategy
	printer *observability.Printer
	mu      sync.Mutex
}

func (s *printingStrategy) Generate(ctx context.Context, req *types.Request) (*generation.Result, error) {
	result, err := s.Strategy.Generate(ctx, req)
	if err == nil && result.Materialized() {
		s.mu.Lock()
		s.printer.PrintDocument(result.Document)
		s.mu.Unlock()
	}
	return result, err
}
