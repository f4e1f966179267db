package dto

import "github.com/noah-isme/rec-workflow-api/internal/models"

// VerifyDocumentRequest records verification staff's decision on one document.
type VerifyDocumentRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// DocumentItem is the API shape of a document row.
type DocumentItem struct {
	ID         string              `json:"id"`
	Kind       models.DocumentKind `json:"kind"`
	Version    int                 `json:"version"`
	SizeBytes  int64               `json:"sizeBytes"`
	PageCount  *int                `json:"pageCount,omitempty"`
	IsVerified *bool               `json:"isVerified"`
	Comment    string              `json:"comment,omitempty"`
	UploadedAt string              `json:"uploadedAt"`
}

// FileUpload carries one uploaded file already read off the multipart form.
type FileUpload struct {
	Kind     models.DocumentKind
	Filename string
	Data     []byte
}

// DownloadURLResponse carries a freshly signed, short-lived download link.
// The URL is generated per request and never persisted.
type DownloadURLResponse struct {
	URL       string `json:"url,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	Available bool   `json:"available"`
}
