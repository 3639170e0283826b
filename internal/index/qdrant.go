// Package index wraps the Qdrant vector store used for segment retrieval.
package index

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const (
	defaultVectorDimension = 1536
)

// ConnectionConfig holds configuration for the Qdrant connection.
type ConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository handles vector operations against one collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *ConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption

	// TLS is enabled if an API key is set or UseTLS is explicitly true
	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		// Local mode: no TLS, no authentication
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil // Collection exists
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

// SegmentPayload is the payload stored with each segment vector.
type SegmentPayload struct {
	VideoID             string  `json:"video_id"`
	ChunkName           string  `json:"chunk_name"`
	Caption             string  `json:"caption"`
	StartTimestamp      string  `json:"start_timestamp"`
	EndTimestamp        string  `json:"end_timestamp"`
	NormalizedStartTime float64 `json:"normalized_start_time"`
	NormalizedEndTime   float64 `json:"normalized_end_time"`
}

// SegmentPoint pairs a vector with its payload for upserts.
type SegmentPoint struct {
	Vector  []float32
	Payload SegmentPayload
}

// PointIDForChunk derives the deterministic point id for a chunk name.
// Qdrant requires point ids to be UUIDs or integers, so the string chunk
// name is hashed into a stable UUID; the readable name lives in the payload.
func PointIDForChunk(chunkName string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkName)).String()
}

// UpsertBatch inserts or updates a batch of segment points in one call.
func (r *QdrantRepository) UpsertBatch(ctx context.Context, points []SegmentPoint) error {
	if len(points) == 0 {
		return nil
	}

	pbPoints := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pbPoints[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: PointIDForChunk(p.Payload.ChunkName),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: p.Vector,
					},
				},
			},
			Payload: map[string]*pb.Value{
				"video_id":              {Kind: &pb.Value_StringValue{StringValue: p.Payload.VideoID}},
				"chunk_name":            {Kind: &pb.Value_StringValue{StringValue: p.Payload.ChunkName}},
				"caption":               {Kind: &pb.Value_StringValue{StringValue: p.Payload.Caption}},
				"start_timestamp":       {Kind: &pb.Value_StringValue{StringValue: p.Payload.StartTimestamp}},
				"end_timestamp":         {Kind: &pb.Value_StringValue{StringValue: p.Payload.EndTimestamp}},
				"normalized_start_time": {Kind: &pb.Value_DoubleValue{DoubleValue: p.Payload.NormalizedStartTime}},
				"normalized_end_time":   {Kind: &pb.Value_DoubleValue{DoubleValue: p.Payload.NormalizedEndTime}},
			},
		}
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         pbPoints,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}

	return nil
}

// ExistingChunkNames returns which of the given chunk names already have a
// point in the collection. Lookup is by deterministic point id.
func (r *QdrantRepository) ExistingChunkNames(ctx context.Context, chunkNames []string) (map[string]bool, error) {
	if len(chunkNames) == 0 {
		return map[string]bool{}, nil
	}

	ids := make([]*pb.PointId, len(chunkNames))
	for i, name := range chunkNames {
		ids[i] = &pb.PointId{
			PointIdOptions: &pb.PointId_Uuid{Uuid: PointIDForChunk(name)},
		}
	}

	resp, err := r.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: r.collectionName,
		Ids:            ids,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch points: %w", err)
	}

	existing := make(map[string]bool, len(resp.Result))
	for _, point := range resp.Result {
		if p := parsePayload(point.Payload); p != nil && p.ChunkName != "" {
			existing[p.ChunkName] = true
		}
	}
	return existing, nil
}

// ScoredSegment is a search hit with its similarity score.
type ScoredSegment struct {
	ID      string
	Score   float32
	Payload *SegmentPayload
}

// Search performs a similarity search restricted to one video.
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, videoID string) ([]ScoredSegment, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if videoID != "" {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: "video_id",
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{Keyword: videoID},
							},
						},
					},
				},
			},
		}
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]ScoredSegment, len(resp.Result))
	for i, scored := range resp.Result {
		results[i] = ScoredSegment{
			ID:      scored.Id.GetUuid(),
			Score:   scored.Score,
			Payload: parsePayload(scored.Payload),
		}
	}

	return results, nil
}

func parsePayload(payload map[string]*pb.Value) *SegmentPayload {
	if payload == nil {
		return nil
	}

	p := &SegmentPayload{}
	if v, ok := payload["video_id"]; ok {
		p.VideoID = v.GetStringValue()
	}
	if v, ok := payload["chunk_name"]; ok {
		p.ChunkName = v.GetStringValue()
	}
	if v, ok := payload["caption"]; ok {
		p.Caption = v.GetStringValue()
	}
	if v, ok := payload["start_timestamp"]; ok {
		p.StartTimestamp = v.GetStringValue()
	}
	if v, ok := payload["end_timestamp"]; ok {
		p.EndTimestamp = v.GetStringValue()
	}
	if v, ok := payload["normalized_start_time"]; ok {
		p.NormalizedStartTime = v.GetDoubleValue()
	}
	if v, ok := payload["normalized_end_time"]; ok {
		p.NormalizedEndTime = v.GetDoubleValue()
	}

	return p
}

