package prompts

// ============================================================================
// Tool Selection Keyword Tables
// ============================================================================
//
// The rule-based tool selector scores a query by counting which of these
// phrases appear in it (lowercased substring match). The tables are plain
// data so buckets can be retuned without touching the scoring logic.

// ResearchKeywords signal that the query wants sourced, in-depth research.
var ResearchKeywords = []string{
	"research", "analyze", "study", "investigate", "comprehensive", "detailed",
	"in-depth", "thorough", "scholarly", "academic", "compare", "contrast",
	"literature", "history of", "development of", "evidence", "sources",
	"references", "citations", "papers",
}

// DeepResearchKeywords are explicit requests for the heavyweight research
// tool; a single hit selects it outright.
var DeepResearchKeywords = []string{
	"deep research", "deepresearch",
}

// ReasoningKeywords signal multi-step reasoning or problem solving.
var ReasoningKeywords = []string{
	"why", "how", "how does", "explain", "reasoning", "logic", "analyze", "solve",
	"problem", "prove", "calculate", "evaluate", "assess", "implications",
	"consequences", "effects of", "causes of", "steps to", "method for",
	"approach to", "strategy", "solution",
}

// Tool names exposed by the research tool provider.
const (
	ToolResearch = "perplexity_research"
	ToolReason   = "perplexity_reason"
	ToolAsk      = "perplexity_ask"
)
