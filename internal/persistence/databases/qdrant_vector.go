package databases

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// PayloadIDField stores the original chunk id in the point payload, since
// Qdrant only accepts UUIDs or positive integers as point ids.
const PayloadIDField = "_original_id"

// qdrantVector is a VectorStore backed by Qdrant, with one collection per
// tenant+version named chatbot_{tenant_uuid}_v{version}.
type qdrantVector struct {
	client *qdrant.Client
	metric string // cosine|l2|euclidean|ip|dot|manhattan

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantVector builds a qdrant-backed VectorStore. dsn is a Qdrant gRPC
// endpoint, e.g. "http://localhost:6334?api_key=...".
func NewQdrantVector(dsn string, metric string) (VectorStore, error) {
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Qdrant DSN: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsedURL.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in Qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsedURL.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsedURL.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create Qdrant client: %w", err)
	}
	return &qdrantVector{
		client:  client,
		metric:  strings.ToLower(strings.TrimSpace(metric)),
		ensured: make(map[string]bool),
	}, nil
}

// CollectionName implements the chatbot_{tenant_uuid}_v{version} convention.
func CollectionName(tenantID string, version int) string {
	return fmt.Sprintf("chatbot_%s_v%d", tenantID, version)
}

func (q *qdrantVector) EnsureCollection(ctx context.Context, tenantID string, version int, dim int) error {
	name := CollectionName(tenantID, version)
	q.mu.Lock()
	if q.ensured[name] {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		if dim <= 0 {
			return fmt.Errorf("qdrant requires dimensions > 0")
		}
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: q.distance(),
			}),
		}); err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}
	q.mu.Lock()
	q.ensured[name] = true
	q.mu.Unlock()
	return nil
}

func (q *qdrantVector) DropCollection(ctx context.Context, tenantID string, version int) error {
	name := CollectionName(tenantID, version)
	err := q.client.DeleteCollection(ctx, name)
	q.mu.Lock()
	delete(q.ensured, name)
	q.mu.Unlock()
	return err
}

func (q *qdrantVector) distance() qdrant.Distance {
	switch q.metric {
	case "l2", "euclidean":
		return qdrant.Distance_Euclid
	case "ip", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *qdrantVector) Upsert(ctx context.Context, tenantID string, version int, id string, vector []float32, metadata map[string]string) error {
	uuidStr := pointUUID(id)
	metadataAny := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		metadataAny[k] = v
	}
	if uuidStr != id {
		metadataAny[PayloadIDField] = id
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(uuidStr),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(metadataAny),
	}}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName(tenantID, version),
		Points:         points,
	})
	return err
}

func (q *qdrantVector) Delete(ctx context.Context, tenantID string, version int, id string) error {
	pointID := qdrant.NewIDUUID(pointUUID(id))
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName(tenantID, version),
		Points:         qdrant.NewPointsSelector(pointID),
	})
	return err
}

func (q *qdrantVector) SimilaritySearch(ctx context.Context, tenantID string, version int, vector []float32, k int, filter map[string]string) ([]VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, qdrant.NewMatch(k, v))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName(tenantID, version),
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	results := make([]VectorResult, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		metadata := make(map[string]string)
		var originalID string
		if hit.Payload != nil {
			for k, v := range hit.Payload {
				if k == PayloadIDField {
					originalID = v.GetStringValue()
					continue
				}
				metadata[k] = v.GetStringValue()
			}
		}
		id := originalID
		if id == "" {
			id = uuidStr
		}
		results = append(results, VectorResult{ID: id, Score: float64(hit.Score), Metadata: metadata})
	}
	return results, nil
}

func (q *qdrantVector) Close() error { return q.client.Close() }
