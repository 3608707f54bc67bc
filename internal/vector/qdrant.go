package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the external approximate-NN store.
type QdrantConfig struct {
	Host   string
	Port   int // gRPC port, default 6334
	APIKey string
	UseTLS bool
}

// QdrantStore implements Store against a Qdrant server, spec.md §4.B's
// "external approximate-NN variant".
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore dials a Qdrant server over gRPC.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) Name() string { return "qdrant" }

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("checking collection %q: %w", collection, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("creating collection %q: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	if err := s.ensureCollection(ctx, collection, len(vec)); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return fmt.Errorf("converting metadata %q: %w", k, err)
		}
		payload[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vec...),
		Payload: payload,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: []*qdrant.PointStruct{point}})
	if err != nil {
		return fmt.Errorf("upserting point %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, collection string, vec []float32, k int, filter map[string]any) ([]Result, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}

	resp, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}
	return convertResults(resp.Result), nil
}

func (s *QdrantStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point %s: %w", id, err)
	}
	return nil
}

func (s *QdrantStore) Close() error { return s.client.Close() }

func buildFilter(filter map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		val, err := qdrant.NewValue(value)
		if err != nil {
			continue
		}
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: val.GetStringValue()}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func convertResults(points []*qdrant.ScoredPoint) []Result {
	out := make([]Result, 0, len(points))
	for _, p := range points {
		var id string
		if p.Id != nil {
			switch v := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}

		metadata := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			switch vv := v.Kind.(type) {
			case *qdrant.Value_StringValue:
				metadata[k] = vv.StringValue
			case *qdrant.Value_IntegerValue:
				metadata[k] = vv.IntegerValue
			case *qdrant.Value_DoubleValue:
				metadata[k] = vv.DoubleValue
			case *qdrant.Value_BoolValue:
				metadata[k] = vv.BoolValue
			}
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		out = append(out, Result{ID: id, Score: p.Score, Content: content, Metadata: metadata})
	}
	return out
}

var _ Store = (*QdrantStore)(nil)
