package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Segment Captioning Prompt (video understanding model)
// ============================================================================

// CaptionPrompt instructs the captioning model to produce a dense accessible
// description of one video segment. The output feeds both the summarizer and
// the embedding index, so it must stay plain text with no timestamps.
const CaptionPrompt = `Analyze the provided video clip. Generate a single block of highly descriptive text, specifically crafted as an accessible caption for blind or visually impaired users.

Your generated caption must comprehensively cover the following aspects:

- **Scene Description:** Clearly describe the setting, environment, and overall context depicted in the video clip.
- **Character Details:** Provide detailed observations of all visible characters. Include their appearance, notable clothing, facial expressions, body language, gestures, and any interactions between them.
- **Sequential Narration:** Offer a clear, step-by-step account of the events, actions, and significant movements as they unfold within the clip. Narrate what is happening in the order it occurs.
- **Auditory Cues:** Describe any discernible dialogue, important sound effects (e.g., a door slamming, a phone ringing, laughter), or significant background music, noting its style or mood if possible.
- **Sentiment Analysis:** Identify and convey the overall emotional tone or mood of the video segment (e.g., humorous, tense, calm, joyful, somber). Integrate this understanding based on both visual cues (expressions, actions) and auditory information (tone of voice, music).

**Crucial Output Formatting Constraints:**

- **Plain Text Output:** The output must be a single block of plain text, suitable for natural language processing.
- **Paragraph Breaks Allowed:** You _may_ use double newlines to separate distinct paragraphs or logical shifts in the description (e.g., moving from scene setup to character actions). Avoid single newlines.
- **No Timestamps:** Ensure the generated text contains absolutely _no_ timestamps, time ranges, or time references. The narration should be sequential but without explicit time markers.
- **No Special Formatting Characters:** Strictly avoid technical or markdown formatting characters like triple backticks, hash symbols, or single backticks.
- **Emphasis Allowed:** You _may_ use asterisks or underscores for emphasizing words or phrases where appropriate, but use them sparingly.

The goal is to produce a rich, detailed narrative description that captures the factual content and emotional tone of the video clip in a format optimized for indexing into embedding models and semantic vector databases for Retrieval Augmented Generation pipelines.`

// ============================================================================
// Summarization Prompts
// ============================================================================

const summaryPromptTemplate = `**Objective:** Generate a concise, accurate, and informative overall summary of a video based on a sequence of timed text captions derived from its chunks.

**Input:** You will receive a single block of text containing concatenated captions. Each caption describes a sequential segment of the video and is preceded by its start and end timestamps (e.g., "[00:12.345 - 00:16.789]").

**Task:**
1. Read through the entire sequence of timed captions to understand the video's content flow.
2. Synthesize this information into a single, coherent paragraph summarizing the **entire video**.
3. Focus on identifying:
    * The main subject(s) or characters.
    * The primary actions, events, or topics discussed.
    * The overall narrative arc or progression (beginning, middle, end developments).
    * The central theme, message, or purpose of the video, if discernible.
4. The summary must be **concise** and capture the most crucial information.
5. **Ignore minor repetitive details** mentioned across consecutive captions if they don't represent significant changes or progression. Focus on the essence of what happened.
6. The final output should be **only the summary paragraph**, suitable for providing high-level context when answering user questions about the video. Do not include preamble or explanation.

**Input Captions:**
%s

**Output Summary:**`

const themesPromptTemplate = `Based on the following video captions, identify 3-5 key themes or topics covered in the video.
Return ONLY a comma-separated list of themes/topics, with no numbering, explanations, or preamble.

Example good output: "friendship, betrayal, redemption"

Captions:
%s`

// SummaryPrompt builds the overall-summary prompt for a block of
// concatenated timed captions.
func SummaryPrompt(concatenatedCaptions string) string {
	return fmt.Sprintf(summaryPromptTemplate, concatenatedCaptions)
}

// ThemesPrompt builds the key-themes prompt for the same caption block.
func ThemesPrompt(concatenatedCaptions string) string {
	return fmt.Sprintf(themesPromptTemplate, concatenatedCaptions)
}

// ============================================================================
// Query Orchestration Prompts
// ============================================================================

const intermediatePromptTemplate = `**Context for Query Processing:**

A user is asking a question about a video. This video context details specific observations from the video, including described entities, actions, dialogue, sounds, visuals, and overall themes. The information in video context may be useful to fully and best address the user query.

---

**User Query:**
%s

---

**Video Context:**
%s
---`

// IntermediatePrompt wraps the user query and assembled video context into
// the payload handed to the external research tool.
func IntermediatePrompt(query, videoContext string) string {
	return fmt.Sprintf(intermediatePromptTemplate, query, videoContext)
}

const synthesisPromptTemplate = `**Task:**
Please answer the user query comprehensively by synthesizing relevant information from **both** the Video Context (details extracted directly from the video) and the relevant Internet Search Results provided below.

**Instructions:**
1.  Analyze the User Query embedded within the Video Context to understand the core question.
2.  Review the Video Context (summary, themes, specific segments) for information directly observable in the video.
3.  Review the Internet Search Results for broader context, facts, or related information.
4.  Formulate a cohesive answer that integrates relevant details from both sources.
5.  Prioritize information from the Video Context when the query pertains to specific events or details *within* the video itself.
6.  Use the Internet Search Results to enrich the answer, provide background, clarify concepts, or address aspects of the query not covered by the video context alone.
7.  If the combined information is insufficient to answer the query fully, state what information is available and what is missing. Do not speculate beyond the provided contexts.
8.  Generate the response in plain text only, without any markdown formatting.
9.  Do NOT include citations.
10.  You can optionally include timestamps or timestamp ranges WITHOUT milliseconds (only minutes and seconds) if they are helpful to the user. If you include timestamps, format them as "mm:ss" and timestamp ranges as "mm:ss-mm:ss".
11.  Provide a clear and concise answer.

---

**User Query:**
%s

---

**Video Context (Includes User Query):**
%s

---

**Internet Search Results:**
%s

---

**Final Answer:**`

// SynthesisPrompt builds the final answer-synthesis prompt.
func SynthesisPrompt(userQuery, videoContext, toolResult string) string {
	return fmt.Sprintf(synthesisPromptTemplate, userQuery, videoContext, toolResult)
}

// NoClipsPlaceholder is inserted into the video context when retrieval
// produced no matches.
const NoClipsPlaceholder = "(No specific video clips retrieved based on query)"

// ConcatenateCaptions joins timed captions in segment order into the block
// consumed by the summarization prompts.
func ConcatenateCaptions(timed []TimedCaption) string {
	var b strings.Builder
	for _, t := range timed {
		fmt.Fprintf(&b, "[%s - %s]\n%s\n---\n", t.Start, t.End, t.Caption)
	}
	return b.String()
}

// TimedCaption is one caption with its segment time range.
type TimedCaption struct {
	Start   string
	End     string
	Caption string
}
