package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/muffakir/legal-assistant/internal/core/domain"
	"github.com/muffakir/legal-assistant/internal/core/ports"
)

const (
	payloadText      = "text"
	payloadPassageID = "passage_id"
)

// passageNamespace keeps point ids stable across re-ingestion of the same passage.
var passageNamespace = uuid.MustParse("6f1c2a1e-3b9d-4a51-9a0e-7d6f5c4b3a21")

// DefaultExistsThreshold is the cosine similarity above which a query is
// considered already covered by the corpus.
const DefaultExistsThreshold = 0.75

// Index is the passage index over one collection. It embeds with the
// configured embedder and reports distance as 1 - cosine similarity.
type Index struct {
	client          *Client
	embedder        ports.TextEmbedder
	existsThreshold float64
}

func NewIndex(client *Client, embedder ports.TextEmbedder, existsThreshold float64) *Index {
	if existsThreshold <= 0 || existsThreshold > 1 {
		existsThreshold = DefaultExistsThreshold
	}
	return &Index{client: client, embedder: embedder, existsThreshold: existsThreshold}
}

func (i *Index) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return i.embedder.Embed(ctx, texts)
}

func (i *Index) Nearest(ctx context.Context, queryVector []float32, k int) ([]domain.Neighbor, error) {
	if k <= 0 {
		return []domain.Neighbor{}, nil
	}
	hits, err := i.client.search(ctx, searchRequest{
		Vector:      queryVector,
		Limit:       k,
		WithPayload: true,
		WithVector:  true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Neighbor, 0, len(hits))
	for _, h := range hits {
		out = append(out, domain.Neighbor{Passage: toPassage(h), Distance: 1 - h.Score})
	}
	return out, nil
}

func (i *Index) Exists(ctx context.Context, queryText string) (bool, error) {
	vectors, err := i.embedder.Embed(ctx, []string{queryText})
	if err != nil {
		return false, fmt.Errorf("embed membership probe: %w", err)
	}
	if len(vectors) == 0 {
		return false, errors.New("embed membership probe: empty result")
	}
	threshold := i.existsThreshold
	hits, err := i.client.search(ctx, searchRequest{
		Vector:         vectors[0],
		Limit:          1,
		ScoreThreshold: &threshold,
	})
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

func (i *Index) IndexPassages(ctx context.Context, passages []domain.Passage) error {
	points := make([]point, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			return fmt.Errorf("passage %s has no embedding", p.ID)
		}
		payload := make(map[string]any, len(p.Metadata)+2)
		for k, v := range p.Metadata {
			payload[k] = v
		}
		payload[payloadText] = p.Content
		payload[payloadPassageID] = p.ID
		points = append(points, point{
			ID:      uuid.NewSHA1(passageNamespace, []byte(p.ID)).String(),
			Vector:  p.Embedding,
			Payload: payload,
		})
	}
	return i.client.upsert(ctx, points)
}

func toPassage(h scoredPoint) domain.Passage {
	metadata := make(map[string]any, len(h.Payload))
	for k, v := range h.Payload {
		if k == payloadText || k == payloadPassageID {
			continue
		}
		metadata[k] = v
	}
	id := getStringPayload(h.Payload, payloadPassageID)
	if id == "" && h.ID != nil {
		id = fmt.Sprintf("%v", h.ID)
	}
	return domain.Passage{
		ID:        id,
		Content:   getStringPayload(h.Payload, payloadText),
		Metadata:  metadata,
		Embedding: h.Vector,
	}
}
