package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Chunk metadata keys stamped at processing time. Filters match against them.
const (
	MetaDocumentID = "document_id"
	MetaFilename   = "filename"
	MetaMimeType   = "mime_type"
	MetaDomain     = "domain"
)

// Document is the ingestion-side record of an uploaded source file.
type Document struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	MimeType    string            `json:"mime_type"`
	StoragePath string            `json:"storage_path"`
	Domain      string            `json:"domain,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	Status      DocumentStatus    `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ChunkDraft is a piece of extracted text before it receives an identity.
type ChunkDraft struct {
	Text    string
	Section string
}
