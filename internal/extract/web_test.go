package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebExtractStripsChrome(t *testing.T) {
	srv := serve(t, `<html><head><title>My Article</title></head><body>
		<nav>Home About Contact</nav>
		<script>var tracking = true;</script>
		<p>This is the actual article body text, long enough to pass the minimum length check.</p>
		<footer>Copyright someone</footer>
	</body></html>`)

	units, err := newWebFetcher().extract(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, units, 1)

	assert.Equal(t, "My Article", units[0].Title)
	assert.Equal(t, KindWeb, units[0].SourceKind)
	assert.Contains(t, units[0].Content, "actual article body text")
	assert.NotContains(t, units[0].Content, "tracking")
	assert.NotContains(t, units[0].Content, "Home About Contact")
	assert.NotContains(t, units[0].Content, "Copyright")
}

func TestWebExtractOGTitleFallback(t *testing.T) {
	srv := serve(t, `<html><head><meta property="og:title" content="Social Title"></head><body>
		<p>`+strings.Repeat("words and more words ", 10)+`</p>
	</body></html>`)

	units, err := newWebFetcher().extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Social Title", units[0].Title)
}

func TestWebExtractTooShort(t *testing.T) {
	srv := serve(t, `<html><body><p>tiny</p></body></html>`)

	_, err := newWebFetcher().extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestWebExtractTooShortCountsRunes(t *testing.T) {
	// 20 CJK characters are 60 bytes; the minimum is about characters,
	// not encoded size.
	srv := serve(t, `<html><body><p>`+strings.Repeat("字", 20)+`</p></body></html>`)

	_, err := newWebFetcher().extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}

func TestWebExtractHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := newWebFetcher().extract(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
}
