// Package generation turns captured source text into a generated document,
// either in-process through an LLM or through a remote generation service.
package generation

import (
	"context"
	"io"
	"time"

	"github.com/jonathan/quick-resume/internal/types"
)

// Result is the outcome of one generation call.
//
// A local strategy sets Document. A remote strategy sets Body and SaveName
// instead, or only Conflict and Employer when the service reports that the
// employer is already in its archive.
type Result struct {
	Document  *types.GeneratedDocument
	Body      io.ReadCloser
	SaveName  string
	Conflict  bool
	Employer  string
	RoleTitle string
	Elapsed   time.Duration
}

// Materialized reports whether the result carries a document to render locally.
func (r *Result) Materialized() bool {
	return r != nil && r.Document != nil
}

// Strategy produces a Result for a request.
type Strategy interface {
	Generate(ctx context.Context, req *types.Request) (*Result, error)
}

// Resumer is implemented by strategies that resolve conflicts on the service
// side. Resume continues a request the service previously reported as a conflict.
type Resumer interface {
	Resume(ctx context.Context, id string) (*Result, error)
}
