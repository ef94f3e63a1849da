package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotescraper/internal/notify"
	"quotescraper/internal/pipeline"
	"quotescraper/internal/testutil"
	"quotescraper/internal/utils"
)

func newTestServer(t *testing.T) (*Server, *testutil.StubSource, string) {
	t.Helper()
	dir := t.TempDir()

	tickers := filepath.Join(dir, "ativos.csv")
	require.NoError(t, os.WriteFile(tickers, []byte("id\nAAA3\nBBB4\nCCC3\n"), 0644))
	bl := filepath.Join(dir, "lista-negra.csv")
	require.NoError(t, os.WriteFile(bl, []byte("BBB4\n"), 0644))

	configPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`tickers:
  file: %s
blacklist:
  file: %s
scraper:
  source: html
output:
  dir: %s
  format: json
log:
  dir: %s
`, tickers, bl, filepath.Join(dir, "output"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(configPath, []byte(yaml), 0644))

	cfg, err := utils.LoadConfig(configPath)
	require.NoError(t, err)

	source := testutil.NewStubSource(":BVMF")
	source.Quote("AAA3", "10,50", "0,25", "2,44").Quote("BBB4", "1,00", "0,01", "1,00").Noise("CCC3")

	p, err := pipeline.New(cfg, utils.NewNopLogger(), pipeline.WithSource(source), pipeline.WithNotifier(notify.Nop{}))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	return NewServer(p, utils.NewNopLogger()), source, cfg.Output.Dir
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRunHandler(t *testing.T) {
	s, source, outDir := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/runs", `{"tickers":["aaa3","CCC3","BBB4"],"workers":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 2, resp.Counts.Attempted)
	assert.Equal(t, 1, resp.Counts.Succeeded)
	assert.Equal(t, 1, resp.Counts.Noise)
	assert.FileExists(t, filepath.Join(outDir, resp.Artifact))
	assert.Zero(t, source.Calls("BBB4"))

	rec = do(t, s, http.MethodGet, "/api/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{resp.Artifact}, names)

	rec = do(t, s, http.MethodGet, "/api/artifacts/"+resp.Artifact, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "AAA3", records[0]["symbol"])
	assert.Equal(t, "10.5", records[0]["price"])

	rec = do(t, s, http.MethodGet, "/data/"+resp.Artifact, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AAA3")

	rec = do(t, s, http.MethodGet, "/api/blacklist", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var symbols []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &symbols))
	assert.Equal(t, []string{"BBB4", "CCC3"}, symbols)
}

func TestRunHandler_FullUniverse(t *testing.T) {
	s, source, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Counts.Attempted)
	assert.Equal(t, 1, source.Calls("AAA3"))
	assert.Zero(t, source.Calls("BBB4"))
}

func TestRunHandler_BadRequest(t *testing.T) {
	s, source, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"tickers":`},
		{"negative workers", `{"tickers":["AAA3"],"workers":-1}`},
		{"too many workers", `{"tickers":["AAA3"],"workers":99}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, source.TotalCalls())
}

func TestQuoteHandler(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/quotes/aaa3", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var quote map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, "AAA3", quote["symbol"])
	assert.Equal(t, "10.5", quote["price"])
	assert.Equal(t, "up", quote["direction"])

	rec = do(t, s, http.MethodGet, "/api/quotes/BBB4", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/quotes/CCC3", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var failure failureResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	assert.Equal(t, "noise", string(failure.Reason))

	rec = do(t, s, http.MethodGet, "/api/quotes/CCC3", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestArtifactHandler_Rejects(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/artifacts/config.yaml", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/artifacts/quotes_2024-05-02_14-30-05_deadbeef.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/artifacts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRunHandler_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
