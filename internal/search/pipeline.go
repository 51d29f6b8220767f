package search

import (
	"context"

	"github.com/romiluz13/clawmongo/internal/schema"
	"github.com/romiluz13/clawmongo/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// row is the shape every pipeline below projects onto, regardless of
// strategy, so decoding is uniform in dispatcher.go.
type row struct {
	ID     string       `bson:"_id"`
	Text   string       `bson:"text"`
	Source store.Source `bson:"source"`
	Hash   string       `bson:"hash"`
	Score  float64      `bson:"score"`
}

func vectorPipeline(queryVector []float32, limit, numCandidates int, filter bson.M) bson.A {
	vs := bson.M{
		"index":         schema.VectorIndexName,
		"path":          "embedding",
		"queryVector":   queryVector,
		"numCandidates": numCandidates,
		"limit":         limit,
	}
	if len(filter) > 0 {
		vs["filter"] = filter
	}
	return bson.A{
		bson.M{"$vectorSearch": vs},
		bson.M{"$project": bson.M{
			"_id": 1, "text": 1, "source": 1, "hash": 1,
			"score": bson.M{"$meta": "vectorSearchScore"},
		}},
	}
}

func textSearchPipeline(query string, limit int, filter bson.M) bson.A {
	search := bson.M{
		"index": schema.TextIndexName,
		"text":  bson.M{"query": query, "path": "text"},
	}
	stages := bson.A{bson.M{"$search": search}}
	if len(filter) > 0 {
		stages = append(stages, bson.M{"$match": filter})
	}
	stages = append(stages,
		bson.M{"$limit": limit},
		bson.M{"$project": bson.M{
			"_id": 1, "text": 1, "source": 1, "hash": 1,
			"score": bson.M{"$meta": "searchScore"},
		}},
	)
	return stages
}

// plainTextPipeline is the last-resort tier: the classic $text operator,
// which only requires a standard MongoDB text index and works on any
// deployment tier, not just one with an Atlas-style search engine (spec
// §4.7 tier 5).
func plainTextPipeline(query string, limit int, filter bson.M) bson.A {
	match := bson.M{"$text": bson.M{"$search": query}}
	for k, v := range filter {
		match[k] = v
	}
	return bson.A{
		bson.M{"$match": match},
		bson.M{"$project": bson.M{
			"_id": 1, "text": 1, "source": 1, "hash": 1,
			"score": bson.M{"$meta": "textScore"},
		}},
		bson.M{"$sort": bson.M{"score": -1}},
		bson.M{"$limit": limit},
	}
}

// scoreFusionPipeline builds a single $scoreFusion stage combining a vector
// and a text sub-pipeline with sigmoid normalization and weighted-average
// combination (spec §4.7 tier 1, server >= 8.2).
func scoreFusionPipeline(query string, queryVector []float32, limit, numCandidates int, vectorWeight, textWeight float64, filter bson.M) bson.A {
	vectorSub := vectorPipeline(queryVector, limit*2, numCandidates, filter)
	// Drop the outer $project's score-field aliasing; $scoreFusion computes
	// its own combined score from each sub-pipeline's native score metadata.
	textSub := bson.A{bson.M{"$search": bson.M{
		"index": schema.TextIndexName,
		"text":  bson.M{"query": query, "path": "text"},
	}}}
	if len(filter) > 0 {
		textSub = append(textSub, bson.M{"$match": filter})
	}
	textSub = append(textSub, bson.M{"$limit": limit * 2})

	return bson.A{
		bson.M{"$scoreFusion": bson.M{
			"input": bson.M{
				"pipelines": bson.M{
					"vector": vectorSub[:1], // the raw $vectorSearch stage only
					"text":   textSub,
				},
				"normalization": "sigmoid",
			},
			"combination": bson.M{
				"weights": bson.M{"vector": vectorWeight, "text": textWeight},
			},
		}},
		bson.M{"$limit": limit},
		bson.M{"$project": bson.M{
			"_id": 1, "text": 1, "source": 1, "hash": 1,
			"score": bson.M{"$meta": "score"},
		}},
	}
}

// rankFusionPipeline builds a single $rankFusion stage (spec §4.7 tier 2,
// server >= 8.0): same sub-pipeline shape as scoreFusion but combining on
// reciprocal rank rather than normalized score.
func rankFusionPipeline(query string, queryVector []float32, limit, numCandidates int, vectorWeight, textWeight float64, filter bson.M) bson.A {
	vectorSub := vectorPipeline(queryVector, limit*2, numCandidates, filter)
	textSub := bson.A{bson.M{"$search": bson.M{
		"index": schema.TextIndexName,
		"text":  bson.M{"query": query, "path": "text"},
	}}}
	if len(filter) > 0 {
		textSub = append(textSub, bson.M{"$match": filter})
	}
	textSub = append(textSub, bson.M{"$limit": limit * 2})

	return bson.A{
		bson.M{"$rankFusion": bson.M{
			"input": bson.M{
				"pipelines": bson.M{
					"vector": vectorSub[:1],
					"text":   textSub,
				},
			},
			"combination": bson.M{
				"weights": bson.M{"vector": vectorWeight, "text": textWeight},
			},
		}},
		bson.M{"$limit": limit},
		bson.M{"$project": bson.M{
			"_id": 1, "text": 1, "source": 1, "hash": 1,
			"score": bson.M{"$meta": "score"},
		}},
	}
}

// runPipeline executes an aggregation and decodes every document into row.
func runPipeline(ctx context.Context, coll *mongo.Collection, pipeline bson.A) ([]row, error) {
	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []row
	for cur.Next(ctx) {
		var r row
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, cur.Err()
}
