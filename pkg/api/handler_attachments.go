package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// attachmentURLExpiry is how long a presigned download link stays valid.
const attachmentURLExpiry = 15 * time.Minute

// attachmentURL handles GET /attachments/:id/url.
func (s *Server) attachmentURL(c *gin.Context) {
	att, err := s.attachments.GetAttachment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	url, err := s.presigner.PresignGet(c.Request.Context(), att.StorageKey, attachmentURLExpiry)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":        url,
		"expires_in": int(attachmentURLExpiry.Seconds()),
	})
}
