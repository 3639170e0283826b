package service

import (
	"strings"

	"github.com/timmy/vidqa/internal/prompts"
)

const longQueryWordCount = 50

// SelectToolRuleBased picks a research tool for the prompt using keyword
// heuristics. Scoring is a lowercased substring count per table, with two
// adjustments: very long prompts lean toward research, and prompts opening
// with a why/how question lean toward reasoning. Any explicit deep research
// request wins outright.
func SelectToolRuleBased(prompt string) string {
	lowered := strings.ToLower(prompt)
	wordCount := len(strings.Fields(prompt))
	isLongQuery := wordCount > longQueryWordCount

	researchScore := countMatches(lowered, prompts.ResearchKeywords)
	deepResearchScore := countMatches(lowered, prompts.DeepResearchKeywords)
	reasoningScore := countMatches(lowered, prompts.ReasoningKeywords)

	if isLongQuery {
		researchScore++
	}
	if (strings.HasPrefix(lowered, "why") || strings.HasPrefix(lowered, "how")) && wordCount > 5 {
		reasoningScore++
	}

	switch {
	case deepResearchScore >= 1 || researchScore >= 3 || (researchScore >= 2 && isLongQuery):
		return prompts.ToolResearch
	case reasoningScore >= 2:
		return prompts.ToolReason
	default:
		return prompts.ToolAsk
	}
}

func countMatches(lowered string, keywords []string) int {
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			score++
		}
	}
	return score
}
