// Package capture supplies the source text for a capture. The operating
// system hotkey and selection handling live outside this module; a Source
// stands in for "the text currently selected".
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jonathan/quick-resume/internal/fetch"
)

// Source yields the captured text. An empty result means nothing was selected.
type Source interface {
	Text(ctx context.Context) (string, error)
	Describe() string
}

// Text is a literal capture.
type Text string

// Text returns t.
func (t Text) Text(context.Context) (string, error) { return string(t), nil }

// Describe names the source in logs.
func (t Text) Describe() string { return "text" }

// File reads a posting saved to disk.
type File struct {
	Path string
}

// Text reads the whole file.
func (f File) Text(context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read capture file %s: %w", f.Path, err)
	}
	return string(data), nil
}

// Describe names the source in logs.
func (f File) Describe() string { return f.Path }

// Reader reads a capture from a stream such as stdin.
type Reader struct {
	Name string
	R    io.Reader
}

// Text drains the reader.
func (r Reader) Text(context.Context) (string, error) {
	data, err := io.ReadAll(r.R)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", r.Describe(), err)
	}
	return string(data), nil
}

// Describe names the source in logs.
func (r Reader) Describe() string {
	if r.Name == "" {
		return "stdin"
	}
	return r.Name
}

// URL fetches a posting page and captures its text.
type URL struct {
	URL     string
	Options *fetch.Options
}

// Text fetches the page and extracts the posting.
func (u URL) Text(ctx context.Context) (string, error) {
	return fetch.PostingText(ctx, u.URL, u.Options)
}

// Describe names the source in logs.
func (u URL) Describe() string { return u.URL }

// FromArg picks a source for a command-line argument: "-" is stdin, an
// http(s) address is fetched, anything else is a file path.
func FromArg(arg string, stdin io.Reader, opts *fetch.Options) Source {
	switch {
	case arg == "-":
		return Reader{Name: "stdin", R: stdin}
	case strings.HasPrefix(arg, "http://"), strings.HasPrefix(arg, "https://"):
		return URL{URL: arg, Options: opts}
	default:
		return File{Path: arg}
	}
}
