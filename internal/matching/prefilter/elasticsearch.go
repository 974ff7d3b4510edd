// internal/matching/prefilter/elasticsearch.go
package prefilter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
)

var (
	ErrEmptyVector = errors.New("EMPTY_VECTOR")
	ErrInvalidK    = errors.New("INVALID_K")
	ErrSearch      = errors.New("SEARCH_QUERY_FAILED")
)

const (
	DefaultEmbeddingField = "embedding"

	minNumCandidates = 100
)

// Candidate is one nearest-neighbour hit, ordered by descending score.
type Candidate struct {
	OfferingID string  `json:"offeringId"`
	Score      float64 `json:"score"`
}

// Elasticsearch finds offerings whose embedding is close to the subject's.
// Documents are keyed by offering id.
type Elasticsearch struct {
	client *elasticsearch.Client
	index  string
	field  string
}

func NewElasticsearch(client *elasticsearch.Client, index, field string) *Elasticsearch {
	if field == "" {
		field = DefaultEmbeddingField
	}
	return &Elasticsearch{client: client, index: index, field: field}
}

type knnQuery struct {
	Field         string    `json:"field"`
	QueryVector   []float32 `json:"query_vector"`
	K             int       `json:"k"`
	NumCandidates int       `json:"num_candidates"`
}

type searchRequest struct {
	KNN    knnQuery `json:"knn"`
	Size   int      `json:"size"`
	Source bool     `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *Elasticsearch) Candidates(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}

	body, err := json.Marshal(searchRequest{
		KNN: knnQuery{
			Field:         e.field,
			QueryVector:   vector,
			K:             k,
			NumCandidates: max(k*2, minNumCandidates),
		},
		Size:   k,
		Source: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearch, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearch, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", ErrSearch, res.Status(), bytes.TrimSpace(msg))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearch, err)
	}

	out := make([]Candidate, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		if h.ID == "" {
			continue
		}
		out = append(out, Candidate{OfferingID: h.ID, Score: h.Score})
	}
	return out, nil
}
