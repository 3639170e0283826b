package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/timmy/vidqa/internal/domain"
	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/prompts"
)

const (
	summaryMaxTokens   = 500
	summaryTemperature = 0.5
	themesMaxTokens    = 100
	themesTemperature  = 0.3

	summaryFailed    = "Error: Summarization failed."
	summaryNoContent = "Error: No valid captions available for summarization."
	themesFailed     = "Error: Theme generation failed."
)

// summarize produces the overall summary and key themes from the captioned
// segments. The two completions run concurrently. A run with no usable
// captions records explicit error strings so a later re-run tries again.
func (p *Pipeline) summarize(ctx context.Context, videoID string) error {
	ctx = logger.SetStage(ctx, "summarize")

	rec, err := p.docs.ReadVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("failed to read metadata document: %w", err)
	}

	if rec.OverallSummary != "" && !strings.Contains(rec.OverallSummary, "Error:") {
		p.log(ctx).Info("Summary already present, skipping summarization")
		return nil
	}

	captioned := rec.CaptionedChunks()
	sort.Slice(captioned, func(i, j int) bool {
		return captioned[i].ChunkNumber < captioned[j].ChunkNumber
	})

	summary := summaryNoContent
	themes := ""

	if len(captioned) > 0 {
		timed := make([]prompts.TimedCaption, 0, len(captioned))
		for _, c := range captioned {
			timed = append(timed, prompts.TimedCaption{
				Start:   c.StartTimestamp,
				End:     c.EndTimestamp,
				Caption: *c.Caption,
			})
		}
		concatenated := prompts.ConcatenateCaptions(timed)
		p.log(ctx).WithFields(logger.Fields{
			logger.FieldCount: len(timed),
			logger.FieldSize:  len(concatenated),
		}).Info("Generating summary and themes")

		summary, themes = p.generateSummaryAndThemes(ctx, concatenated)
	} else {
		p.log(ctx).Warn("No captioned segments available for summarization")
	}

	if themes == "" && len(captioned) > 0 {
		themes = themesFailed
	}

	err = p.docs.UpdateVideo(ctx, videoID, func(rec *domain.VideoRecord) error {
		rec.OverallSummary = summary
		rec.KeyThemes = themes
		rec.SummaryGeneratedAt = time.Now().UTC().Format(time.RFC3339)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}

	p.log(ctx).Info("Summarization complete")
	return nil
}

// generateSummaryAndThemes runs the two completions concurrently. Either
// call failing falls back to its error value without failing the other.
func (p *Pipeline) generateSummaryAndThemes(ctx context.Context, concatenated string) (string, string) {
	summary := summaryFailed
	themes := ""

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := p.chat.Complete(gctx, prompts.SummaryPrompt(concatenated), summaryMaxTokens, summaryTemperature)
		if err != nil {
			p.log(ctx).WithError(err).Error("Summary generation failed")
			return nil
		}
		if out = strings.TrimSpace(out); out != "" {
			summary = out
		}
		return nil
	})
	g.Go(func() error {
		out, err := p.chat.Complete(gctx, prompts.ThemesPrompt(concatenated), themesMaxTokens, themesTemperature)
		if err != nil {
			p.log(ctx).WithError(err).Error("Theme generation failed")
			return nil
		}
		themes = strings.TrimSpace(out)
		return nil
	})
	_ = g.Wait()

	return summary, themes
}
