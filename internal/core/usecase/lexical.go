package usecase

import (
	"math"
	"strings"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// tokenize splits on whitespace, trims punctuation from both ends of every
// field and lower-cases the result. Arabic punctuation such as '؟' and '،'
// is trimmed as well.
func tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f == "" {
			continue
		}
		out = append(out, strings.ToLower(f))
	}
	return out
}

func toTokenSet(text string) map[string]struct{} {
	tokens := tokenize(text)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// keywordOverlap is the fraction of distinct query tokens present in the passage.
func keywordOverlap(query, passage map[string]struct{}) float64 {
	if len(query) == 0 || len(passage) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := passage[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// bm25Scores scores every doc against query with Okapi BM25. The docs slice is
// the whole corpus: document frequencies and average length are local to it.
func bm25Scores(query string, docs []string) []float64 {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores
	}

	termFreqs := make([]map[string]int, len(docs))
	docFreq := make(map[string]int)
	totalLen := 0
	for i, doc := range docs {
		tokens := tokenize(doc)
		totalLen += len(tokens)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for token := range tf {
			docFreq[token]++
		}
		termFreqs[i] = tf
	}

	n := float64(len(docs))
	avgLen := float64(totalLen) / n
	if avgLen == 0 {
		return scores
	}

	queryTokens := tokenize(query)
	for i, tf := range termFreqs {
		docLen := 0
		for _, c := range tf {
			docLen += c
		}
		norm := bm25K1 * (1 - bm25B + bm25B*float64(docLen)/avgLen)
		for _, q := range queryTokens {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			df := float64(docFreq[q])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			scores[i] += idf * f * (bm25K1 + 1) / (f + norm)
		}
	}
	return scores
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
