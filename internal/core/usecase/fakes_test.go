package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

const fakeDims = 256

// hashEmbed is a deterministic bag-of-words embedding: shared tokens give
// higher cosine similarity.
func hashEmbed(text string) []float32 {
	v := make([]float32, fakeDims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		v[h.Sum32()%fakeDims]++
	}
	return v
}

type indexFake struct {
	mu sync.Mutex

	passages  []domain.Passage
	neighbors []domain.Neighbor
	vectors   map[string][]float32

	exists     bool
	existsErr  error
	nearestErr error
	embedErr   error

	existsCalls  int
	nearestCalls int
	embedCalls   int
	embedded     []string
}

func (f *indexFake) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return hashEmbed(text)
}

func (f *indexFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	f.embedded = append(f.embedded, texts...)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *indexFake) Nearest(_ context.Context, queryVector []float32, k int) ([]domain.Neighbor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nearestCalls++
	if f.nearestErr != nil {
		return nil, f.nearestErr
	}
	if f.neighbors != nil {
		out := f.neighbors
		if len(out) > k {
			out = out[:k]
		}
		return out, nil
	}

	out := make([]domain.Neighbor, 0, len(f.passages))
	for _, p := range f.passages {
		v := p.Embedding
		if len(v) == 0 {
			v = f.vector(p.Content)
		}
		out = append(out, domain.Neighbor{Passage: p, Distance: 1 - cosineSimilarity(queryVector, v)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (f *indexFake) Exists(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.exists, f.existsErr
}

type completionFake struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (f *completionFake) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.respond == nil {
		return "", nil
	}
	return f.respond(prompt)
}

func (f *completionFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// promptsFake renders "<name>\n<key>: <value>" lines so fakes can dispatch on the prefix.
type promptsFake struct {
	err error
}

func (f promptsFake) Render(name string, data any) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	var b strings.Builder
	b.WriteString(name)
	if m, ok := data.(promptData); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, m[k])
		}
	}
	return b.String(), nil
}

type searcherFake struct {
	result *domain.DeepSearchResult
	err    error
	calls  int
	query  string
	budget domain.SearchBudget
}

func (f *searcherFake) DeepSearch(_ context.Context, query string, budget domain.SearchBudget) (*domain.DeepSearchResult, error) {
	f.calls++
	f.query = query
	f.budget = budget
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type crossEncoderFake struct {
	scores []float64
}

func (f crossEncoderFake) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	if len(f.scores) != len(docs) {
		return nil, fmt.Errorf("expected %d docs, got %d", len(f.scores), len(docs))
	}
	return f.scores, nil
}

type observerFake struct {
	classifications []domain.QueryClassification
	runs            []domain.PipelineState
	escalations     []string
	retrieved       []int
}

func (f *observerFake) ObserveClassification(c domain.QueryClassification) {
	f.classifications = append(f.classifications, c)
}

func (f *observerFake) ObserveRun(final domain.PipelineState, _ bool) {
	f.runs = append(f.runs, final)
}

func (f *observerFake) ObserveEscalation(outcome string) {
	f.escalations = append(f.escalations, outcome)
}

func (f *observerFake) ObserveRetrieval(_ domain.RetrievalStrategy, count int) {
	f.retrieved = append(f.retrieved, count)
}

func passage(id, content string) domain.Passage {
	return domain.Passage{
		ID:       id,
		Content:  content,
		Metadata: map[string]any{"source": id + ".pdf"},
	}
}
