package service

import (
	"context"
	"strings"
	"time"

	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/prompts"
)

// Synthesizer produces the final user-facing answer from the video context
// and the external research result.
type Synthesizer struct {
	chat   *ChatService
	logger *logger.Logger
}

// NewSynthesizer creates a new answer synthesizer
func NewSynthesizer(chat *ChatService, log *logger.Logger) *Synthesizer {
	return &Synthesizer{chat: chat, logger: log}
}

func (s *Synthesizer) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Synthesize asks the chat model to merge the video context with the tool
// result into one answer. Failures come back as bracketed strings so the
// interaction log always receives something to show the user.
func (s *Synthesizer) Synthesize(ctx context.Context, userQuery, videoContext, toolResult string) string {
	prompt := prompts.SynthesisPrompt(userQuery, videoContext, toolResult)

	start := time.Now()
	answer, err := s.chat.Complete(ctx, prompt, 0, 1.0)
	if err != nil {
		s.log(ctx).WithError(err).Error("Answer synthesis failed")
		return "[Error synthesizing answer: " + err.Error() + "]"
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Answer synthesis complete")

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "[OpenAI returned an empty answer]"
	}
	return answer
}
