package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrowhead-f/confsys/pkg/directory"
	"github.com/arrowhead-f/confsys/pkg/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dir, err := directory.Open(t.TempDir(), &directory.Options{MapSize: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { dir.Close() })
	return NewServer(store.New(dir, nil))
}

func do(t *testing.T, s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

const templateBody = `[{
	"name": "service.config",
	"body": {
		"type": "Map",
		"entries": {"port": {"type": "Number", "conditions": ["Min(1)"]}}
	}
}]`

// TestDocumentLifecycle tests POST, GET, PATCH, DELETE on /documents
func TestDocumentLifecycle(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/templates", templateBody, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodPost, "/documents",
		`[{"name":"svc1","template":"service.config","body":{"port":80}}]`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/documents?name=svc1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t,
		`[{"name":"svc1","template":"service.config","body":{"port":80}}]`,
		rec.Body.String())

	rec = do(t, s, http.MethodPatch, "/documents",
		`[{"name":"svc1","path":"port","data":8080}]`, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/documents", "", nil)
	require.Contains(t, rec.Body.String(), `"port":8080`)

	rec = do(t, s, http.MethodDelete, "/documents?name=svc1", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/documents", "", nil)
	require.Equal(t, "[]", rec.Body.String())
}

// TestAddInvalidDocumentReturnsReports tests the 400-with-report-list path
func TestAddInvalidDocumentReturnsReports(t *testing.T) {
	s := testServer(t)
	do(t, s, http.MethodPost, "/templates", templateBody, nil)

	rec := do(t, s, http.MethodPost, "/documents",
		`[{"name":"svc1","template":"service.config","body":{"port":0}}]`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"condition":"Min(1)"`)

	// Nothing was written.
	rec = do(t, s, http.MethodGet, "/documents", "", nil)
	require.Equal(t, "[]", rec.Body.String())
}

// TestMalformedBody tests the single-error report on a body that does not
// parse
func TestMalformedBody(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/documents", `{"name": unparseable`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"error"`)
}

// TestPatchMissingDocument tests the DocumentExists violation surface
func TestPatchMissingDocument(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPatch, "/documents",
		`[{"name":"ghost","path":"x","data":1}]`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `DocumentExists(\"ghost\")`)
}

// TestContentNegotiation tests Accept-driven encoding
func TestContentNegotiation(t *testing.T) {
	s := testServer(t)
	do(t, s, http.MethodPost, "/documents", `[{"name":"svc1","body":{"a":1}}]`, nil)

	rec := do(t, s, http.MethodGet, "/documents", "", map[string]string{
		"Accept": "application/apes+xml",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/apes+xml", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(), `<root semantics="APES" type="List">`)

	rec = do(t, s, http.MethodGet, "/documents", "", map[string]string{
		"Accept": "text/html",
	})
	require.Equal(t, http.StatusNotAcceptable, rec.Code)
}

// TestUnsupportedContentType tests decoder lookup failure
func TestUnsupportedContentType(t *testing.T) {
	s := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("<root/>"))
	req.Header.Set("Content-Type", "application/apes+xml") // write-only codec
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// TestUnknownRoute tests the 404 path
func TestUnknownRoute(t *testing.T) {
	s := testServer(t)
	rec := do(t, s, http.MethodGet, "/nowhere", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestReports tests the validation endpoint
func TestReports(t *testing.T) {
	s := testServer(t)
	do(t, s, http.MethodPost, "/documents", `[{"name":"svc1","body":{"a":1}}]`, nil)

	rec := do(t, s, http.MethodGet, "/reports", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"document":"svc1","violations":[]}]`, rec.Body.String())
}
