package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/rec-workflow-api/internal/dto"
	"github.com/noah-isme/rec-workflow-api/internal/models"
	appErrors "github.com/noah-isme/rec-workflow-api/pkg/errors"
)

// readUploads collects multipart files whose form field names are document
// kinds. Unknown field names are left for the caller's service to reject.
func readUploads(c *gin.Context, maxBytes int64) ([]dto.FileUpload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expected multipart form data")
	}
	uploads := make([]dto.FileUpload, 0)
	for field, files := range form.File {
		kind := models.DocumentKind(field)
		if !models.IsValidKind(kind) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document field "+field)
		}
		for _, header := range files {
			if maxBytes > 0 && header.Size > maxBytes {
				return nil, appErrors.Clone(appErrors.ErrValidation, "file "+header.Filename+" exceeds the size limit")
			}
			file, err := header.Open()
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable upload")
			}
			data, err := io.ReadAll(file)
			_ = file.Close()
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable upload")
			}
			uploads = append(uploads, dto.FileUpload{Kind: kind, Filename: header.Filename, Data: data})
		}
	}
	return uploads, nil
}
