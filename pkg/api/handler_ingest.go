package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopdesk-io/shopdesk/pkg/ingest"
)

// maxUploadBytes caps one multipart upload (32 MiB, matching the default
// memory threshold gin uses for form parsing).
const maxUploadBytes = 32 << 20

// ingestUpload handles POST /ingest/upload: an optional "body" form field
// plus one or more "files" parts.
func (s *Server) ingestUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart form: %v", err)})
		return
	}

	var body *string
	if values := form.Value["body"]; len(values) > 0 && values[0] != "" {
		body = &values[0]
	}

	var files []ingest.File
	for _, header := range form.File["files"] {
		part, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to open %s: %v", header.Filename, err)})
			return
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read %s: %v", header.Filename, err)})
			return
		}
		files = append(files, ingest.File{
			Filename: header.Filename,
			Mime:     header.Header.Get("Content-Type"),
			Data:     data,
		})
	}

	result, err := s.uploads.Upload(c.Request.Context(), body, files)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
