package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/vidqa/internal/docstore"
	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/prompts"
)

// QueryService coordinates the full answer pipeline for one interaction:
// record the question, retrieve relevant segments, assemble context, run
// the external research tool and synthesize the final answer. It is meant
// to run as a background task after the HTTP layer has accepted the query.
type QueryService struct {
	docs        *docstore.Store
	retrieval   *RetrievalService
	tools       *ToolProvider
	synthesizer *Synthesizer
	logger      *logger.Logger
}

// NewQueryService creates a new query service
func NewQueryService(
	docs *docstore.Store,
	retrieval *RetrievalService,
	tools *ToolProvider,
	synthesizer *Synthesizer,
	log *logger.Logger,
) *QueryService {
	return &QueryService{
		docs:        docs,
		retrieval:   retrieval,
		tools:       tools,
		synthesizer: synthesizer,
		logger:      log,
	}
}

func (s *QueryService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// NewInteraction builds the initial processing-state record for a query.
func NewInteraction(interactionID, userName, userQuery string) domain.InteractionRecord {
	return domain.InteractionRecord{
		InteractionID:  interactionID,
		UserName:       userName,
		UserQuery:      userQuery,
		QueryTimestamp: time.Now().UTC().Format(time.RFC3339),
		Status:         domain.InteractionStatusProcessing,
	}
}

// Answer runs the pipeline for one interaction. On any failure after the
// interaction has been recorded, the record is marked failed on a best
// effort basis and the original error is returned.
func (s *QueryService) Answer(ctx context.Context, videoID string, interaction domain.InteractionRecord) error {
	ctx = logger.SetVideoID(ctx, videoID)
	ctx = logger.SetInteractionID(ctx, interaction.InteractionID)
	start := time.Now()

	s.log(ctx).WithFields(logger.Fields{
		"user_name": interaction.UserName,
	}).Info("Starting query pipeline")

	if err := s.docs.AppendInteraction(ctx, videoID, interaction); err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}

	err := s.answer(ctx, videoID, interaction)
	if err != nil {
		s.log(ctx).WithError(err).Error("Query pipeline failed")
		if updateErr := s.docs.UpdateInteraction(ctx, videoID, interaction.InteractionID, domain.InteractionStatusFailed, ""); updateErr != nil {
			s.log(ctx).WithError(updateErr).Error("Failed to mark interaction as failed")
		}
		return err
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Query pipeline completed")
	return nil
}

func (s *QueryService) answer(ctx context.Context, videoID string, interaction domain.InteractionRecord) error {
	video, err := s.docs.ReadVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to load video metadata: %w", err)
	}

	matches, err := s.retrieval.Retrieve(ctx, videoID, interaction.UserQuery)
	if err != nil {
		return err
	}

	videoContext := AssembleContext(video, matches)
	intermediatePrompt := prompts.IntermediatePrompt(interaction.UserQuery, videoContext)

	toolResult := s.tools.Execute(ctx, intermediatePrompt)
	finalAnswer := s.synthesizer.Synthesize(ctx, interaction.UserQuery, videoContext, toolResult)

	return s.docs.UpdateInteraction(ctx, videoID, interaction.InteractionID, domain.InteractionStatusCompleted, finalAnswer)
}
