package types

import "time"

// Request is one capture-to-export attempt. ID is the only correlation key
// between the asynchronous generation call and a later confirmation.
type Request struct {
	ID         string             `json:"id"`
	SourceText string             `json:"sourceText"`
	Result     *GeneratedDocument `json:"result,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// ConflictState is held while a request waits for the user to decide whether
// to export next to an existing artifact for the same employer.
type ConflictState struct {
	RequestID        string        `json:"requestId"`
	ExpectedFileName string        `json:"expectedFileName"`
	EmployerName     string        `json:"employerName"`
	RoleTitle        string        `json:"roleTitle,omitempty"`
	Elapsed          time.Duration `json:"elapsed,omitempty"` // generation time before the decision
}
