package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/logger"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/util"
	"go.uber.org/zap"
)

// EditSpark applies one operation to a Knowledge Spark document
// POST /api/v1/sparks/:id/edits
func (h *Handlers) EditSpark(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	var req dto.SparkEditRequest
	if !bindJSON(c, &req) {
		return
	}
	postID := c.Param("id")

	result, post, err := h.sparks.EditSpark(c.Request.Context(), postID, userID, req)
	if err != nil {
		util.RespondError(c, "edit spark", err)
		return
	}
	logger.Log.Debug("Spark edited",
		logger.WithUserID(userID),
		logger.WithPostID(postID),
		zap.String("op", req.Op),
		zap.Int("base_version", req.BaseVersion),
		zap.Int("version", result.Version),
	)

	h.publish(c.Request.Context(), realtime.NewUpdate(*post, req.Origin))
	c.JSON(http.StatusOK, result)
}

// SparkHistory lists the versions committed after ?since
// GET /api/v1/sparks/:id/edits?since=
func (h *Handlers) SparkHistory(c *gin.Context) {
	versions, err := h.sparks.History(c.Request.Context(), c.Param("id"), util.QueryInt(c, "since", 0))
	if err != nil {
		util.RespondError(c, "spark history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}
