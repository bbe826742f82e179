package repository

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

	"github.com/timmy/catalogetl/internal/domain"
)

const (
	defaultVectorDimension = 1024
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
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

// QdrantRepository mirrors catalog embeddings into a Qdrant collection.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return newQdrantRepository(conn, pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Collection, vectorDimension), nil
}

func newQdrantRepository(conn *grpc.ClientConn, points pb.PointsClient, collections pb.CollectionsClient, collection string, dim int) *QdrantRepository {
	return &QdrantRepository{
		conn:            conn,
		pointsClient:    points,
		collectClient:   collections,
		collectionName:  collection,
		vectorDimension: dim,
	}
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and checks
// the vector size of an existing one.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(r.vectorDimension) {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
		return nil
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
	vectors := info.GetConfig().GetParams().GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil && single.GetSize() > 0 {
		return single.GetSize(), true
	}
	for _, params := range vectors.GetParamsMap().GetMap() {
		if size := params.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// PointIDForSKU derives the point ID of a SKU. The same SKU always maps to
// the same point within a collection, so re-imports overwrite instead of
// duplicating.
func PointIDForSKU(sku, collection string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(collection+":"+sku)).String()
}

// CatalogPayload is stored with each vector.
type CatalogPayload struct {
	ItemID     string   `json:"item_id"`
	SKU        string   `json:"sku"`
	Name       string   `json:"name"`
	Brand      string   `json:"brand"`
	Categories []string `json:"categories"`
	ProductURL string   `json:"product_url"`
}

// PayloadFromItem builds the payload mirrored for item.
func PayloadFromItem(item *domain.CatalogItem) *CatalogPayload {
	return &CatalogPayload{
		ItemID:     item.ID,
		SKU:        item.SKU,
		Name:       deref(item.Name),
		Brand:      deref(item.Brand),
		Categories: []string(item.Categories),
		ProductURL: deref(item.ProductURL),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpsertItems writes one point per item that carries an embedding and
// returns how many points were sent.
func (r *QdrantRepository) UpsertItems(ctx context.Context, items []*domain.CatalogItem) (int, error) {
	points := make([]*pb.PointStruct, 0, len(items))
	for _, item := range items {
		if item == nil || len(item.Embedding) == 0 {
			continue
		}
		if len(item.Embedding) != r.vectorDimension {
			return 0, fmt.Errorf("item %s: embedding has %d dimensions, collection expects %d",
				item.SKU, len(item.Embedding), r.vectorDimension)
		}
		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: PointIDForSKU(item.SKU, r.collectionName)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: item.Embedding},
				},
			},
			Payload: payloadToValues(PayloadFromItem(item)),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return len(points), nil
}

func payloadToValues(p *CatalogPayload) map[string]*pb.Value {
	return map[string]*pb.Value{
		"item_id":     stringValue(p.ItemID),
		"sku":         stringValue(p.SKU),
		"name":        stringValue(p.Name),
		"brand":       stringValue(p.Brand),
		"product_url": stringValue(p.ProductURL),
		"categories":  listValue(p.Categories),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func listValue(values []string) *pb.Value {
	out := make([]*pb.Value, len(values))
	for i, v := range values {
		out[i] = stringValue(v)
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: out},
		},
	}
}

// SearchResult represents a search result from Qdrant
type SearchResult struct {
	ID      string
	Score   float32
	Payload *CatalogPayload
}

// SearchFilters defines optional filters for search
type SearchFilters struct {
	Brand    *string
	Category *string
}

// Search performs a vector similarity search
func (r *QdrantRepository) Search(ctx context.Context, vector []float32, topK int, filters *SearchFilters) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}
	if filters != nil {
		req.Filter = buildFilter(filters)
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		results[i] = SearchResult{
			ID:      scored.GetId().GetUuid(),
			Score:   scored.GetScore(),
			Payload: parsePayload(scored.GetPayload()),
		}
	}
	return results, nil
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func buildFilter(filters *SearchFilters) *pb.Filter {
	var conditions []*pb.Condition
	if filters.Brand != nil && *filters.Brand != "" {
		conditions = append(conditions, keywordCondition("brand", *filters.Brand))
	}
	// Matching a keyword against a list field matches any element.
	if filters.Category != nil && *filters.Category != "" {
		conditions = append(conditions, keywordCondition("categories", *filters.Category))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &pb.Filter{Must: conditions}
}

func parsePayload(payload map[string]*pb.Value) *CatalogPayload {
	if payload == nil {
		return nil
	}

	p := &CatalogPayload{
		ItemID:     payload["item_id"].GetStringValue(),
		SKU:        payload["sku"].GetStringValue(),
		Name:       payload["name"].GetStringValue(),
		Brand:      payload["brand"].GetStringValue(),
		ProductURL: payload["product_url"].GetStringValue(),
	}
	if list := payload["categories"].GetListValue(); list != nil {
		for _, item := range list.GetValues() {
			p.Categories = append(p.Categories, item.GetStringValue())
		}
	}
	return p
}

// DeleteSKU removes the point of sku.
func (r *QdrantRepository) DeleteSKU(ctx context.Context, sku string) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{
						{PointIdOptions: &pb.PointId_Uuid{Uuid: PointIDForSKU(sku, r.collectionName)}},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}
