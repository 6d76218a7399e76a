package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fpindex/fpindex/multiindex"
)

func newTestHandler(t *testing.T) (http.Handler, *multiindex.MultiIndex) {
	mi, err := multiindex.Open(multiindex.NewMemOpener())
	require.NoError(t, err)
	t.Cleanup(func() { mi.Close() })
	return Handler(mi), mi
}

func TestHealthHandlers(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/_health/ready", "/_health/alive"} {
		req := httptest.NewRequest("GET", "http://example.com"+path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		require.Equal(t, 200, w.Code)
		require.Equal(t, "OK\n", w.Body.String())
	}
}

func TestPutIndex_CreatesAndIsIdempotent(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest("PUT", "http://example.com/myidx", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"revision":0}`, w.Body.String())

	req = httptest.NewRequest("PUT", "http://example.com/myidx", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"revision":0}`, w.Body.String())
}

func TestGetIndex_MissingReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "http://example.com/missing", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 404, w.Code)
	require.JSONEq(t, `{"error":{"description":"index does not exist","type":"not_found"},"status":404}`, w.Body.String())
}

func TestHeadIndex_ReturnsEmptyBody(t *testing.T) {
	h, _ := newTestHandler(t)

	httpPut(h, "PUT", "/myidx", nil)

	req := httptest.NewRequest("HEAD", "http://example.com/myidx", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())
}

func TestDocumentLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	req := httptest.NewRequest("GET", "http://example.com/myidx/_doc/111", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 404, w.Code)

	body := bytes.NewBufferString(`{"terms":[1,2,3]}`)
	req = httptest.NewRequest("PUT", "http://example.com/myidx/_doc/111", body)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())

	req = httptest.NewRequest("GET", "http://example.com/myidx/_doc/111", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"id":111}`, w.Body.String())

	req = httptest.NewRequest("DELETE", "http://example.com/myidx/_doc/111", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	req = httptest.NewRequest("GET", "http://example.com/myidx/_doc/111", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 404, w.Code)
}

func TestDocumentTermsAsCommaString(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	body := bytes.NewBufferString(`{"terms":"1,2,3"}`)
	req := httptest.NewRequest("PUT", "http://example.com/myidx/_doc/111", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	req = httptest.NewRequest("GET", "http://example.com/myidx/_doc/111", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
}

func TestSearch(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)
	httpPutBody(h, "/myidx/_doc/111", `{"terms":[1,2,3]}`)
	httpPutBody(h, "/myidx/_doc/112", `{"terms":[3,4,5]}`)

	req := httptest.NewRequest("GET", "http://example.com/myidx/_search?query=3", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"results":[{"id":111,"score":1},{"id":112,"score":1}]}`, w.Body.String())
}

func TestSearch_LimitZeroReturnsEmpty(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)
	httpPutBody(h, "/myidx/_doc/111", `{"terms":[1,2,3]}`)

	req := httptest.NewRequest("GET", "http://example.com/myidx/_search?query=1&limit=0", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"results":[]}`, w.Body.String())
}

func TestSearch_MinScoreFiltersOutLowScores(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)
	httpPutBody(h, "/myidx/_doc/111", `{"terms":[1]}`)
	httpPutBody(h, "/myidx/_doc/112", `{"terms":[2]}`)

	req := httptest.NewRequest("GET", "http://example.com/myidx/_search?query=1,1,1&min_score=3", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"results":[{"id":111,"score":3}]}`, w.Body.String())
}

func TestFlush(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	req := httptest.NewRequest("POST", "http://example.com/myidx/_flush", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())
}

func TestBulk_ArrayForm(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	body := bytes.NewBufferString(`[
		{"upsert":{"id":111,"terms":[1,2,3]}},
		{"upsert":{"id":112,"terms":[3,4,5]}},
		{"delete":{"id":111}},
		{"set":{"name":"color","value":"blue"}}
	]`)
	req := httptest.NewRequest("POST", "http://example.com/myidx/_bulk", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{}`, w.Body.String())

	req = httptest.NewRequest("GET", "http://example.com/myidx/_doc/111", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 404, w.Code)

	req = httptest.NewRequest("GET", "http://example.com/myidx/_doc/112", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)
}

func TestBulk_OperationsWrapperForm(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	body := bytes.NewBufferString(`{"operations":[{"upsert":{"id":1,"terms":[7]}}]}`)
	req := httptest.NewRequest("POST", "http://example.com/myidx/_bulk", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
}

func TestBulk_RejectsOpWithMultipleVariantsSet(t *testing.T) {
	h, _ := newTestHandler(t)
	httpPut(h, "PUT", "/myidx", nil)

	body := bytes.NewBufferString(`[{"upsert":{"id":1,"terms":[7]},"delete":{"id":1}}]`)
	req := httptest.NewRequest("POST", "http://example.com/myidx/_bulk", body)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, 400, w.Code)
}

func httpPut(h http.Handler, method, path string, body *bytes.Buffer) {
	var b *bytes.Buffer
	if body == nil {
		b = &bytes.Buffer{}
	} else {
		b = body
	}
	req := httptest.NewRequest(method, "http://example.com"+path, b)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
}

func httpPutBody(h http.Handler, path, body string) {
	req := httptest.NewRequest("PUT", "http://example.com"+path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
}
