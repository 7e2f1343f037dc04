package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/pkg/logging"
)

// DownloadError marks a failed document fetch: bad URL, transport
// failure, non-2xx response or an oversized body.
type DownloadError struct {
	URL    string
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download %s failed with status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UnsupportedInput marks input the pipeline does not accept, such as
// a content type that is neither a document nor an image.
type UnsupportedInput struct {
	Detail string
}

func (e *UnsupportedInput) Error() string {
	return "unsupported input: " + e.Detail
}

// Downloaded is a fetched source document.
type Downloaded struct {
	Bytes     []byte
	Filename  string
	MIME      string
	SourceURL string
}

// Fetcher downloads source documents over HTTP, normalizing
// share-page URLs from common file hosts into direct-download URLs
// first.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      zerolog.Logger
}

func NewFetcher(cfg *config.Config) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		maxBytes: cfg.MaxUploadBytes,
		log:      logging.GetLogger("fetcher"),
	}
}

var (
	driveFileRe = regexp.MustCompile(`drive\.google\.com/file/d/([^/?#]+)`)
	driveOpenRe = regexp.MustCompile(`drive\.google\.com/open\?.*\bid=([^&#]+)`)
)

// NormalizeURL rewrites known share-page URLs to their direct
// download form. Unknown hosts pass through unchanged.
func NormalizeURL(rawURL string) string {
	if m := driveFileRe.FindStringSubmatch(rawURL); m != nil {
		return "https://drive.google.com/uc?export=download&id=" + m[1]
	}
	if m := driveOpenRe.FindStringSubmatch(rawURL); m != nil {
		return "https://drive.google.com/uc?export=download&id=" + m[1]
	}
	if strings.Contains(rawURL, "dropbox.com") {
		u, err := url.Parse(rawURL)
		if err == nil {
			u.Host = "dl.dropboxusercontent.com"
			q := u.Query()
			q.Del("dl")
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return rawURL
}

// Download fetches one document, enforcing the configured size cap
// and accepting only document or image content.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*Downloaded, error) {
	target := NormalizeURL(rawURL)
	if target != rawURL {
		f.log.Debug().Str("url", rawURL).Str("direct_url", target).Msg("Share URL normalized")
	}

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("invalid url")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &DownloadError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("body exceeds %d byte limit", f.maxBytes)}
	}
	if len(body) == 0 {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("empty body")}
	}

	contentType := responseMIME(resp, body)
	if !AcceptableMIME(contentType) {
		return nil, &UnsupportedInput{Detail: fmt.Sprintf("content type %q", contentType)}
	}

	return &Downloaded{
		Bytes:     body,
		Filename:  filenameFor(resp, u),
		MIME:      contentType,
		SourceURL: rawURL,
	}, nil
}

// AcceptableMIME reports whether the pipeline accepts this content
// type as source input.
func AcceptableMIME(contentType string) bool {
	return strings.Contains(contentType, "pdf") || strings.HasPrefix(contentType, "image/")
}

// responseMIME prefers the Content-Type header but falls back to byte
// sniffing when the header is missing or generic.
func responseMIME(resp *http.Response, body []byte) string {
	ct := resp.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream" {
		if len(body) >= 4 && string(body[:4]) == "%PDF" {
			return "application/pdf"
		}
		return http.DetectContentType(body)
	}
	return ct
}

// filenameFor derives a filename from the Content-Disposition header
// or the URL path.
func filenameFor(resp *http.Response, u *url.URL) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := path.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}
	if name := path.Base(u.Path); name != "" && name != "." && name != "/" {
		return name
	}
	return "document"
}
