package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/report"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)


func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "result.json"))
	require.NoError(t, st.Create(context.Background(), store.Corpus{
		"book_00000.wav": store.NewRecord(0.1, 1.5),
		"book_00001.wav": store.NewRecord(2.0, 3.5),
		"book_00002.wav": store.NewRecord(4.0, 5.5),
	}))
	require.NoError(t, st.Merge(context.Background(), map[string]store.Update{
		"book_00000.wav": store.Update{}.WithASR("quik brown fox").WithFound("quick brown fox").WithShift(4).WithDiff(1),
		"book_00001.wav": store.Update{}.WithASR("lorem"),
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book_00000.wav"), []byte("RIFF....WAVE"), 0o644))

	return New(Config{ChunksDir: dir, Threshold: report.DefaultThreshold}, st, nil), dir
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListChunks(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		query string
		ids   []string
	}{
		{"", []string{"book_00000.wav", "book_00001.wav", "book_00002.wav"}},
		{"?status=aligned", []string{"book_00000.wav"}},
		{"?status=unaligned", []string{"book_00001.wav"}},
		{"?status=untranscribed", []string{"book_00002.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, s, "/api/v1/chunks"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Chunks []ChunkView `json:"chunks"`
				Total  int         `json:"total"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			ids := make([]string, 0, len(body.Chunks))
			for _, c := range body.Chunks {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, len(tt.ids), body.Total)
		})
	}

	w := get(t, s, "/api/v1/chunks?status=bogus")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetChunk(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/v1/chunks/book_00000.wav")
	require.Equal(t, http.StatusOK, w.Code)
	var view ChunkView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "book_00000.wav", view.ID)
	require.NotNil(t, view.Shift)
	assert.Equal(t, 4, *view.Shift)
	assert.Equal(t, "quick brown fox", *view.Found)
	assert.Contains(t, w.Body.String(), `"start":0.1`)

	w = get(t, s, "/api/v1/chunks/book_00002.wav")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"asr":null`)

	w = get(t, s, "/api/v1/chunks/nope.wav")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChunkAudio(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/v1/chunks/book_00000.wav/audio")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFF....WAVE", w.Body.String())

	w = get(t, s, "/api/v1/chunks/book_00001.wav/audio")
	assert.Equal(t, http.StatusNotFound, w.Code, "record without a file")

	w = get(t, s, "/api/v1/chunks/result.json/audio")
	assert.Equal(t, http.StatusNotFound, w.Code, "files outside the corpus are not served")

	w = get(t, s, "/api/v1/chunks/..%2Fsecret/audio")
	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestReportEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/api/v1/report")
	require.Equal(t, http.StatusOK, w.Code)
	var r report.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, 3, r.Chunks)
	assert.Equal(t, 2, r.Transcribed)
	assert.Equal(t, 1, r.Aligned)
	assert.Equal(t, 1, r.Unresolved)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestMissingCorpus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(Config{}, store.New(filepath.Join(t.TempDir(), "result.json")), nil)

	w := get(t, s, "/api/v1/chunks")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = get(t, s, "/healthz")
	assert.Contains(t, w.Body.String(), "corpus missing")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(Config{Addr: "127.0.0.1:0"}, store.New(filepath.Join(t.TempDir(), "result.json")), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
