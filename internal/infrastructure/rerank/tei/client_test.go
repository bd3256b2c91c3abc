package tei

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTEIServer(t *testing.T, infoStatus int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info":
			w.WriteHeader(infoStatus)
			_, _ = w.Write([]byte(`{"model_id":"BAAI/bge-reranker-v2-m3","model_type":{"reranker":{}}}`))
		case "/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ما هو القصد الجنائي؟", req.Query)
			// TEI returns hits sorted by score, not by input order.
			_, _ = w.Write([]byte(`[{"index":1,"score":0.97},{"index":0,"score":0.12},{"index":2,"score":0.01}]`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoaderChecksInfoAndScoresInInputOrder(t *testing.T) {
	server := newTEIServer(t, http.StatusOK)
	defer server.Close()

	model, err := Loader(server.URL, time.Second, nil)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BAAI/bge-reranker-v2-m3", model.(*Client).Model())

	scores, err := model.Score(context.Background(), "ما هو القصد الجنائي؟", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.12, 0.97, 0.01}, scores)
}

func TestLoaderFailsWhenServerUnhealthy(t *testing.T) {
	server := newTEIServer(t, http.StatusServiceUnavailable)
	defer server.Close()

	_, err := Loader(server.URL, time.Second, nil)(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestScoreRejectsMismatchedHits(t *testing.T) {
	server := newTEIServer(t, http.StatusOK)
	defer server.Close()

	_, err := New(server.URL, time.Second, nil).Score(context.Background(), "ما هو القصد الجنائي؟", []string{"a", "b"})
	assert.Error(t, err)
}
