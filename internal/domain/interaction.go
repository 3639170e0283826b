package domain

// InteractionStatus tracks a single query/answer exchange.
type InteractionStatus string

const (
	InteractionStatusProcessing InteractionStatus = "processing"
	InteractionStatusCompleted  InteractionStatus = "completed"
	InteractionStatusFailed     InteractionStatus = "failed"
)

// InteractionRecord is one entry in the per-video interactions.json log.
// AIAnswer and AnswerTimestamp are filled when the exchange resolves.
type InteractionRecord struct {
	InteractionID   string            `json:"interaction_id"`
	UserName        string            `json:"user_name"`
	UserQuery       string            `json:"user_query"`
	QueryTimestamp  string            `json:"query_timestamp"`
	Status          InteractionStatus `json:"status"`
	AIAnswer        string            `json:"ai_answer,omitempty"`
	AnswerTimestamp string            `json:"answer_timestamp,omitempty"`
}

// SegmentMatch is a retrieval hit from the similarity index, ordered by
// descending similarity score.
type SegmentMatch struct {
	ChunkName           string  `json:"chunk_name"`
	Caption             string  `json:"caption"`
	StartTimestamp      string  `json:"start_timestamp"`
	EndTimestamp        string  `json:"end_timestamp"`
	NormalizedStartTime float64 `json:"normalized_start_time"`
	NormalizedEndTime   float64 `json:"normalized_end_time"`
	Score               float32 `json:"score"`
}
