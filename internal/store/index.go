package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"darwin.app/engine/common/vector"
)

const (
	vectorAlgorithmType = "FLOAT32"
	vectorDistance      = "COSINE"
)

// EnsureIndexes creates the topic and successful-fix search indexes. It is
// safe to call on every boot; an existing index is left untouched.
func EnsureIndexes(ctx context.Context, rdb *redis.Client, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("index dimensions must be positive, got %d", dimensions)
	}

	topicSchema := []*redis.FieldSchema{
		{FieldName: "title", FieldType: redis.SearchFieldTypeText},
		{FieldName: "summary", FieldType: redis.SearchFieldTypeText},
		{FieldName: "status", FieldType: redis.SearchFieldTypeTag},
		vectorField(dimensions),
	}
	if err := createIndex(ctx, rdb, TopicsIndex, TopicPrefix, topicSchema); err != nil {
		return err
	}

	fixSchema := []*redis.FieldSchema{
		{FieldName: "category", FieldType: redis.SearchFieldTypeTag},
		{FieldName: "title", FieldType: redis.SearchFieldTypeText},
		{FieldName: "summary", FieldType: redis.SearchFieldTypeText},
		{FieldName: "product", FieldType: redis.SearchFieldTypeTag},
		vectorField(dimensions),
	}
	return createIndex(ctx, rdb, SuccessfulFixesIx, FixSuccessPrefix, fixSchema)
}

func vectorField(dimensions int) *redis.FieldSchema {
	return &redis.FieldSchema{
		FieldName: fieldEmbedding,
		FieldType: redis.SearchFieldTypeVector,
		VectorArgs: &redis.FTVectorArgs{
			FlatOptions: &redis.FTFlatOptions{
				Type:           vectorAlgorithmType,
				Dim:            dimensions,
				DistanceMetric: vectorDistance,
			},
		},
	}
}

func createIndex(ctx context.Context, rdb *redis.Client, name, prefix string, schema []*redis.FieldSchema) error {
	err := rdb.FTCreate(ctx, name, &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []interface{}{prefix},
	}, schema...).Err()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "index already exists") {
			slog.DebugContext(ctx, "search index already exists", "index", name)
			return nil
		}
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	slog.InfoContext(ctx, "search index created", "index", name, "prefix", prefix)
	return nil
}

// knnHit is one raw nearest-neighbour result.
type knnHit struct {
	Key        string
	Similarity float64
	Fields     map[string]string
}

// knn runs a KNN query against an index and returns hits ordered by
// ascending cosine distance. returnFields are loaded alongside the score.
func knn(ctx context.Context, rdb *redis.Client, index string, embedding []float32, k int, returnFields ...string) ([]knnHit, error) {
	if k <= 0 {
		return nil, nil
	}

	ret := []redis.FTSearchReturn{{FieldName: "score"}}
	for _, f := range returnFields {
		ret = append(ret, redis.FTSearchReturn{FieldName: f})
	}

	query := fmt.Sprintf("*=>[KNN %d @%s $vec AS score]", k, fieldEmbedding)
	res, err := rdb.FTSearchWithArgs(ctx, index, query, &redis.FTSearchOptions{
		Return:         ret,
		SortBy:         []redis.FTSearchSortBy{{FieldName: "score", Asc: true}},
		Params:         map[string]interface{}{"vec": vector.Pack(embedding)},
		DialectVersion: 2,
		LimitOffset:    0,
		Limit:          k,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", index, err)
	}

	hits := make([]knnHit, 0, len(res.Docs))
	for _, doc := range res.Docs {
		distance := parseFloat(doc.Fields["score"])
		hits = append(hits, knnHit{
			Key:        doc.ID,
			Similarity: vector.SimilarityFromDistance(distance),
			Fields:     doc.Fields,
		})
	}
	return hits, nil
}
