package db

import (
	"time"

	"github.com/jonathan/quick-resume/internal/types"
)

// RequestRecord is the stored outcome of one capture request. It keeps the
// employer and role as structured fields, independent of the file name.
type RequestRecord struct {
	ID           string                   `json:"id"`
	Employer     string                   `json:"employer"`
	RoleTitle    string                   `json:"role_title"`
	State        string                   `json:"state"`
	SourceText   string                   `json:"source_text"`
	Document     *types.GeneratedDocument `json:"document,omitempty"`
	BaseName     string                   `json:"base_name,omitempty"`
	DocumentPath string                   `json:"document_path,omitempty"`
	ErrorMessage string                   `json:"error_message,omitempty"`
	ElapsedMS    int64                    `json:"elapsed_ms"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// RequestFilters holds optional filters for listing requests
type RequestFilters struct {
	Employer string
	State    string
	Limit    int
}

// DefaultListLimit caps ListRequests when no limit is given.
const DefaultListLimit = 50
