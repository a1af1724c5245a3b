package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/errors"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/storage"
	"github.com/zfogg/sparkfeed/internal/util"
	"go.uber.org/zap"
)

// UploadMedia stores one image or video from the multipart field "file"
// and returns the URL to attach to a post
// POST /api/v1/uploads
func (h *Handlers) UploadMedia(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	if h.blobs == nil {
		util.RespondWithAPIError(c, errors.ServiceUnavailable("media storage"))
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxUploadBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		util.RespondValidationError(c, "file", "a file is required")
		return
	}
	if apiErr := util.ValidateUpload("file", header.Filename, header.Size); apiErr != nil {
		util.RespondWithAPIError(c, apiErr)
		return
	}

	file, err := header.Open()
	if err != nil {
		util.RespondError(c, "open upload", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		util.RespondError(c, "read upload", err)
		return
	}

	path := feed.MediaPath(userID, header.Filename)
	url, err := h.blobs.Upload(c.Request.Context(), path, data)
	if err != nil {
		util.RespondError(c, "upload media", err)
		return
	}
	logger.Log.Info("Media uploaded",
		logger.WithUserID(userID),
		zap.String("path", path),
		zap.Int("bytes", len(data)),
	)
	c.JSON(http.StatusCreated, dto.UploadResponse{URL: url, Path: path})
}
