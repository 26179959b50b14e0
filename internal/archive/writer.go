package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Export is the pair of artifacts written for one request.
type Export struct {
	BaseName     string
	DocumentPath string
	SourcePath   string
	DocumentSize int64
}

// Writer persists exported artifacts into the output directory.
type Writer struct {
	Dir string
	// DocumentExtension defaults to ".docx".
	DocumentExtension string
}

// NewWriter creates a writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, DocumentExtension: DocumentExtension}
}

// Write stores the document and the source text under the same base name.
// Either both files exist afterwards or neither does. An existing file with
// the same name is never overwritten; the call fails with *ExistsError.
func (w *Writer) Write(baseName string, document io.Reader, sourceText string) (*Export, error) {
	if baseName == "" {
		return nil, fmt.Errorf("base name is required")
	}

	info, err := os.Stat(w.Dir)
	if err != nil {
		return nil, &IOError{Op: "stat", Path: w.Dir, Cause: err}
	}
	if !info.IsDir() {
		return nil, &IOError{Op: "stat", Path: w.Dir, Cause: fmt.Errorf("not a directory")}
	}

	ext := w.DocumentExtension
	if ext == "" {
		ext = DocumentExtension
	}

	export := &Export{
		BaseName:     baseName,
		DocumentPath: filepath.Join(w.Dir, baseName+ext),
		SourcePath:   filepath.Join(w.Dir, baseName+SourceExtension),
	}

	size, err := writeExclusive(export.DocumentPath, document)
	if err != nil {
		return nil, err
	}
	export.DocumentSize = size

	if _, err := writeExclusive(export.SourcePath, strings.NewReader(sourceText)); err != nil {
		_ = os.Remove(export.DocumentPath)
		return nil, err
	}

	return export, nil
}

func writeExclusive(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, &ExistsError{Path: path}
		}
		return 0, &IOError{Op: "create", Path: path, Cause: err}
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return 0, &IOError{Op: "write", Path: path, Cause: copyErr}
	}
	return n, nil
}
