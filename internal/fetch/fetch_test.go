package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/config"
)

func testFetcher(maxBytes int64) *Fetcher {
	return NewFetcher(&config.Config{
		RequestTimeout: 5 * time.Second,
		MaxUploadBytes: maxBytes,
	})
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"drive file page",
			"https://drive.google.com/file/d/abc123XYZ/view?usp=sharing",
			"https://drive.google.com/uc?export=download&id=abc123XYZ",
		},
		{
			"drive open link",
			"https://drive.google.com/open?id=abc123XYZ",
			"https://drive.google.com/uc?export=download&id=abc123XYZ",
		},
		{
			"dropbox share page",
			"https://www.dropbox.com/s/abc/report.pdf?dl=0",
			"https://dl.dropboxusercontent.com/s/abc/report.pdf",
		},
		{
			"plain url untouched",
			"https://example.com/paper.pdf",
			"https://example.com/paper.pdf",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestDownloadPDF(t *testing.T) {
	body := []byte("%PDF-1.7 fake body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		w.Write(body)
	}))
	defer srv.Close()

	got, err := testFetcher(1 << 20).Download(context.Background(), srv.URL+"/files/1")
	require.NoError(t, err)
	assert.Equal(t, body, got.Bytes)
	assert.Equal(t, "report.pdf", got.Filename)
	assert.Equal(t, "application/pdf", got.MIME)
	assert.Equal(t, srv.URL+"/files/1", got.SourceURL)
}

func TestDownloadSniffsGenericContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("%PDF-1.4 body"))
	}))
	defer srv.Close()

	got, err := testFetcher(1 << 20).Download(context.Background(), srv.URL+"/doc")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", got.MIME)
	assert.Equal(t, "doc", got.Filename)
}

func TestDownloadRejectsUnsupportedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>not a document</html>"))
	}))
	defer srv.Close()

	_, err := testFetcher(1 << 20).Download(context.Background(), srv.URL)
	var unsupported *UnsupportedInput
	require.ErrorAs(t, err, &unsupported)
	assert.Contains(t, unsupported.Error(), "text/html")
}

func TestDownloadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testFetcher(1 << 20).Download(context.Background(), srv.URL)
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusNotFound, dlErr.Status)
}

func TestDownloadSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := testFetcher(1024).Download(context.Background(), srv.URL)
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.Err.Error(), "limit")
}

func TestDownloadInvalidURL(t *testing.T) {
	_, err := testFetcher(1024).Download(context.Background(), "ftp://example.com/x.pdf")
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
}

func TestAcceptableMIME(t *testing.T) {
	assert.True(t, AcceptableMIME("application/pdf"))
	assert.True(t, AcceptableMIME("image/png"))
	assert.False(t, AcceptableMIME("text/plain"))
	assert.False(t, AcceptableMIME("application/zip"))
}
