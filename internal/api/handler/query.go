package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/pipeline"
	"github.com/timmy/vidqa/internal/service"
)

// QueryHandler handles query submission and status polling. Both submit
// endpoints accept the work and return 202 immediately; the pipelines run
// in background goroutines and publish their progress through the video's
// documents in object storage.
type QueryHandler struct {
	queries *service.QueryService
	pipe    *pipeline.Pipeline
	docs    *docstore.Store
	logger  *logger.Logger
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(queries *service.QueryService, pipe *pipeline.Pipeline, docs *docstore.Store, log *logger.Logger) *QueryHandler {
	return &QueryHandler{
		queries: queries,
		pipe:    pipe,
		docs:    docs,
		logger:  log,
	}
}

// QueryRequest asks a question about an already processed video.
type QueryRequest struct {
	VideoID   string `json:"video_id" binding:"required"`
	UserQuery string `json:"user_query" binding:"required"`
	UserName  string `json:"user_name"`
}

// ProcessRequest asks a question about a video that may not be ingested yet.
type ProcessRequest struct {
	VideoURL  string `json:"video_url" binding:"required"`
	UserQuery string `json:"user_query" binding:"required"`
	UserName  string `json:"user_name"`
}

// ProcessingStartedResponse acknowledges accepted background work.
type ProcessingStartedResponse struct {
	Status        string `json:"status"`
	VideoID       string `json:"video_id"`
	InteractionID string `json:"interaction_id"`
}

// QueryAsync handles POST /api/v1/query/async.
func (h *QueryHandler) QueryAsync(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	interaction := service.NewInteraction(uuid.New().String(), req.UserName, req.UserQuery)

	// Carry only the logger fields into the detached context; the request
	// context dies with the response.
	bgCtx := logger.WithFields(context.Background(), logger.GetFields(c.Request.Context()))
	go func() {
		if err := h.queries.Answer(bgCtx, req.VideoID, interaction); err != nil {
			h.logger.WithError(err).WithFields(logger.Fields{
				logger.FieldVideoID:       req.VideoID,
				logger.FieldInteractionID: interaction.InteractionID,
			}).Error("Background query failed")
		}
	}()

	c.JSON(http.StatusAccepted, ProcessingStartedResponse{
		Status:        "Query processing started",
		VideoID:       req.VideoID,
		InteractionID: interaction.InteractionID,
	})
}

// ProcessAndQueryAsync handles POST /api/v1/process_and_query/async. It
// runs the full ingestion pipeline for the URL and then answers the query.
func (h *QueryHandler) ProcessAndQueryAsync(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	videoID := domain.VideoIDFromURL(req.VideoURL)
	interaction := service.NewInteraction(uuid.New().String(), req.UserName, req.UserQuery)

	bgCtx := logger.WithFields(context.Background(), logger.GetFields(c.Request.Context()))
	go func() {
		if _, err := h.pipe.Run(bgCtx, req.VideoURL); err != nil {
			h.logger.WithError(err).WithFields(logger.Fields{
				logger.FieldVideoID: videoID,
			}).Error("Background ingestion failed, skipping query")
			return
		}
		if err := h.queries.Answer(bgCtx, videoID, interaction); err != nil {
			h.logger.WithError(err).WithFields(logger.Fields{
				logger.FieldVideoID:       videoID,
				logger.FieldInteractionID: interaction.InteractionID,
			}).Error("Background query failed")
		}
	}()

	c.JSON(http.StatusAccepted, ProcessingStartedResponse{
		Status:        "Full video processing and query started",
		VideoID:       videoID,
		InteractionID: interaction.InteractionID,
	})
}

// StatusResponse is the pollable view of a video and its interactions.
type StatusResponse struct {
	VideoID          string                     `json:"video_id"`
	ProcessingStatus domain.ProcessingStatus    `json:"processing_status"`
	Interactions     []domain.InteractionRecord `json:"interactions"`
}

// Status handles GET /api/v1/query/status/:video_id.
func (h *QueryHandler) Status(c *gin.Context) {
	videoID := c.Param("video_id")
	ctx := c.Request.Context()

	rec, err := h.docs.ReadVideo(ctx, videoID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Status not available for video " + videoID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve status"})
		return
	}

	interactions, err := h.docs.ReadInteractions(ctx, videoID)
	if err != nil {
		// The interactions log may simply not exist yet.
		interactions = []domain.InteractionRecord{}
	}

	c.JSON(http.StatusOK, StatusResponse{
		VideoID:          videoID,
		ProcessingStatus: rec.ProcessingStatus,
		Interactions:     interactions,
	})
}
