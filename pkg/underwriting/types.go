package underwriting

import (
	"encoding/json"
	"time"
)

// DocumentStatus is the processing state of an uploaded document.
type DocumentStatus string

// Document statuses.
const (
	DocumentUploaded   DocumentStatus = "UPLOADED"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentAnalyzed   DocumentStatus = "ANALYZED"
	DocumentFailed     DocumentStatus = "FAILED"
)

// Terminal reports whether no further status change is expected.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentAnalyzed || s == DocumentFailed
}

// Project is an underwriting project (one property or deal).
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Status    string    `json:"status,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is a file attached to a project.
type Document struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"projectId"`
	Name        string         `json:"name"`
	Key         string         `json:"key,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Insight is one extracted analysis result.
type Insight struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"projectId"`
	DocumentID string          `json:"documentId"`
	Category   string          `json:"category"`
	Summary    string          `json:"summary"`
	Confidence float64         `json:"confidence"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}
