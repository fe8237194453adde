package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds a single attachment.
const maxUploadBytes = 25 << 20

// StartUpload accepts one multipart file and begins uploading it to object
// storage in the background. The response carries the tracking id the client
// polls or cancels with.
func (h *Handler) StartUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil || int64(len(content)) > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}

	status := h.Uploads.Start(fileHeader.Filename, content)
	c.JSON(http.StatusAccepted, status)
}

// GetUpload reports the per-file state machine position.
func (h *Handler) GetUpload(c *gin.Context) {
	status, ok := h.Uploads.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown upload"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// CancelUpload hard-aborts an upload. The transfer stops immediately; remote
// cleanup happens in the background and never delays this response.
func (h *Handler) CancelUpload(c *gin.Context) {
	status, ok := h.Uploads.Cancel(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown upload"})
		return
	}
	c.JSON(http.StatusOK, status)
}
