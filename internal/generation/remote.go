package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/quick-resume/internal/types"
)

// Response headers of the generation service contract.
const (
	HeaderSaveFilename       = "save-filename"
	HeaderContentDisposition = "content-disposition"
	HeaderCompanyName        = "company-name"
	HeaderRoleTitle          = "role-title"
)

// Service endpoints.
const (
	GeneratePath = "/generate"
	ProceedPath  = "/proceed"
)

// maxErrorBody bounds how much of an error response is echoed into a TransportError.
const maxErrorBody = 1024

// TokenSource mints bearer tokens for service calls.
type TokenSource interface {
	GenerateToken(client string) (string, error)
}

// GenerateRequest is the JSON body of POST /generate.
type GenerateRequest struct {
	ID         string `json:"id" validate:"required"`
	SourceText string `json:"sourceText" validate:"required"`
}

// RemoteStrategy delegates generation and conflict detection to a generation service.
type RemoteStrategy struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	clientName string
	now        func() time.Time
}

// NewRemoteStrategy creates a strategy targeting the service at baseURL.
// tokens may be nil for services that do not require auth.
func NewRemoteStrategy(baseURL string, timeout time.Duration, tokens TokenSource) *RemoteStrategy {
	return &RemoteStrategy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		clientName: "quick-resume-cli",
		now:        time.Now,
	}
}

// Generate posts the request to the service. A 200 response is returned as a
// document stream the caller must close; a 409 is returned as a conflict.
func (s *RemoteStrategy) Generate(ctx context.Context, req *types.Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	body, err := json.Marshal(GenerateRequest{ID: req.ID, SourceText: req.SourceText})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Op: "generate", Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return s.do(httpReq, "generate")
}

// Resume asks the service to export a request it previously reported as a conflict.
func (s *RemoteStrategy) Resume(ctx context.Context, id string) (*Result, error) {
	endpoint := s.baseURL + ProceedPath + "?" + url.Values{"id": {id}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: "proceed", Message: "failed to create request", Cause: err}
	}

	result, err := s.do(httpReq, "proceed")
	if err != nil {
		return nil, err
	}
	if result.Conflict {
		return nil, &TransportError{Op: "proceed", StatusCode: http.StatusConflict, Message: "service reported a conflict on resume"}
	}
	return result, nil
}

func (s *RemoteStrategy) do(httpReq *http.Request, op string) (*Result, error) {
	if s.tokens != nil {
		token, err := s.tokens.GenerateToken(s.clientName)
		if err != nil {
			return nil, &TransportError{Op: op, Message: "failed to mint service token", Cause: err}
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := s.now()
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Cause: err}
	}

	result := &Result{
		Employer:  resp.Header.Get(HeaderCompanyName),
		RoleTitle: resp.Header.Get(HeaderRoleTitle),
	}

	switch resp.StatusCode {
	case http.StatusOK:
		saveName := SaveNameFromHeader(resp.Header)
		if saveName == "" {
			_ = resp.Body.Close()
			return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "response carries no file name"}
		}
		result.Body = resp.Body
		result.SaveName = saveName
	case http.StatusConflict:
		_ = resp.Body.Close()
		if result.Employer == "" {
			return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "conflict response carries no " + HeaderCompanyName}
		}
		result.Conflict = true
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	result.Elapsed = s.now().Sub(start)
	return result, nil
}

// SaveNameFromHeader returns the preferred file name of a document response:
// save-filename, else the content-disposition filename. Directory components are dropped.
func SaveNameFromHeader(h http.Header) string {
	name := h.Get(HeaderSaveFilename)
	if name == "" {
		if cd := h.Get(HeaderContentDisposition); cd != "" {
			if _, params, err := mime.ParseMediaType(cd); err == nil {
				name = params["filename"]
			}
		}
	}
	if name == "" {
		return ""
	}

	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = filepath.Base(filepath.FromSlash(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
