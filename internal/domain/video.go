package domain

// ProcessingStatus represents the lifecycle state of a video document.
type ProcessingStatus string

const (
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusFinished   ProcessingStatus = "FINISHED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"

	// ProcessingStatusErrorFetchingMetadata is recorded when the download
	// stage cannot obtain the source metadata at all.
	ProcessingStatusErrorFetchingMetadata ProcessingStatus = "ERROR_FETCHING_METADATA"
)

// IndexingStatus represents the outcome of the vector indexing stage.
type IndexingStatus string

const (
	IndexingStatusInProgress          IndexingStatus = "IN_PROGRESS"
	IndexingStatusCompleted           IndexingStatus = "COMPLETED"
	IndexingStatusCompletedWithErrors IndexingStatus = "COMPLETED_WITH_ERRORS"
	IndexingStatusSkippedNoCaptions   IndexingStatus = "SKIPPED_NO_CAPTIONS"
	IndexingStatusSkippedAlreadyDone  IndexingStatus = "SKIPPED_ALREADY_INDEXED"
)

// SegmentMetadata describes a single scene segment of a video.
// Caption is nil until captioning succeeds for the segment; CaptionError
// distinguishes a failed attempt from a segment that was never attempted.
type SegmentMetadata struct {
	ChunkName            string  `json:"chunk_name"`
	StartTimestamp       string  `json:"start_timestamp"`
	EndTimestamp         string  `json:"end_timestamp"`
	ChunkNumber          int     `json:"chunk_number"`
	NormalizedStartTime  float64 `json:"normalized_start_time"`
	NormalizedEndTime    float64 `json:"normalized_end_time"`
	ChunkDurationSeconds float64 `json:"chunk_duration_seconds"`
	Caption              *string `json:"caption"`
	CaptionError         string  `json:"caption_error,omitempty"`
}

// VideoRecord is the single JSON document that carries all durable state for
// one video through the ingestion pipeline. It lives in the object store at
// video-data/<video_id>/<video_id>.json and is re-read at every stage
// boundary so that interrupted runs resume without repeating finished work.
type VideoRecord struct {
	VideoID          string           `json:"video_id"`
	SourceURL        string           `json:"source_url"`
	UploaderName     string           `json:"uploader_name,omitempty"`
	LikeCount        int64            `json:"like_count,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`

	// Segmentation results.
	NumChunks            int               `json:"num_chunks,omitempty"`
	TotalDurationSeconds float64           `json:"total_duration_seconds,omitempty"`
	DetectionMethod      string            `json:"detection_method,omitempty"`
	Chunks               []SegmentMetadata `json:"chunks,omitempty"`
	ChunkingWarnings     []string          `json:"chunking_warnings,omitempty"`

	// Captioning results.
	CaptioningErrors   []string `json:"captioning_errors,omitempty"`
	CaptioningWarnings []string `json:"captioning_warnings,omitempty"`

	// Summarization results.
	OverallSummary     string `json:"overall_summary,omitempty"`
	KeyThemes          string `json:"key_themes,omitempty"`
	SummaryGeneratedAt string `json:"summary_generated_at,omitempty"`

	// Indexing results.
	IndexingStatus      IndexingStatus `json:"indexing_status,omitempty"`
	VectorsIndexedCount int            `json:"vectors_indexed_count,omitempty"`
	IndexingErrors      []string       `json:"indexing_errors,omitempty"`
	IndexingWarnings    []string       `json:"indexing_warnings,omitempty"`
	IndexingCompletedAt string         `json:"indexing_completed_at,omitempty"`

	// Set when the pipeline aborts; preserved across later reads.
	ErrorMessage string `json:"error_message,omitempty"`
}

// CaptionedChunks returns the segments that have a non-nil caption, in
// chunk_number order. Callers rely on the ordering for prompt assembly.
func (v *VideoRecord) CaptionedChunks() []SegmentMetadata {
	out := make([]SegmentMetadata, 0, len(v.Chunks))
	for _, c := range v.Chunks {
		if c.Caption != nil {
			out = append(out, c)
		}
	}
	return out
}
