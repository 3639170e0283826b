package handler

import (
	"math/rand"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/logger"
)

const forYouSampleSize = 3

// VideoHandler serves video discovery endpoints.
type VideoHandler struct {
	docs   *docstore.Store
	logger *logger.Logger
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(docs *docstore.Store, log *logger.Logger) *VideoHandler {
	return &VideoHandler{docs: docs, logger: log}
}

// VideoInfo is one entry in the for-you feed.
type VideoInfo struct {
	VideoID  string `json:"video_id"`
	VideoURL string `json:"video_url"`
}

// ForYou handles GET /api/v1/videos/foryou. It returns up to three random
// fully processed videos with their public file URLs.
func (h *VideoHandler) ForYou(c *gin.Context) {
	ctx := c.Request.Context()

	ids, err := h.docs.ListFinishedVideoIDs(ctx)
	if err != nil {
		logger.CtxError(ctx, "Failed to list finished videos: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve videos."})
		return
	}
	if len(ids) == 0 {
		c.JSON(http.StatusOK, []VideoInfo{})
		return
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if len(ids) > forYouSampleSize {
		ids = ids[:forYouSampleSize]
	}

	videos := make([]VideoInfo, 0, len(ids))
	for _, id := range ids {
		videos = append(videos, VideoInfo{
			VideoID:  id,
			VideoURL: h.docs.VideoFileURL(id),
		})
	}
	c.JSON(http.StatusOK, videos)
}
