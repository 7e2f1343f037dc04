package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/fetch"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/internal/resolve"
	"github.com/pagelift/pagelift/internal/storage"
	"github.com/pagelift/pagelift/pkg/document"
)

type fakeOCR struct {
	resp     *ocr.Response
	err      error
	urlCalls int
}

func (f *fakeOCR) ProcessWithRetry(_ context.Context, _ []byte, _ string, _ bool) (*ocr.Response, error) {
	return f.resp, f.err
}

func (f *fakeOCR) ProcessURLWithRetry(_ context.Context, url string, _ bool) (*ocr.Response, error) {
	f.urlCalls++
	if f.resp != nil {
		f.resp.DocumentURL = url
	}
	return f.resp, f.err
}

type fakeExtractor struct {
	images []pdfimages.ExtractedImage
}

func (f *fakeExtractor) ExtractEmbeddedImages(context.Context, []byte, string) []pdfimages.ExtractedImage {
	return f.images
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func newTestPipeline(t *testing.T, ocrSvc OCRService, extractor resolve.EmbeddedSource) (*Pipeline, *storage.FileStore) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	if extractor == nil {
		extractor = &fakeExtractor{}
	}
	return New(ocrSvc, resolve.NewEngine(store, extractor), store, nil), store
}

func singleImageResponse(inlineB64 string) *ocr.Response {
	resp := &ocr.Response{DocumentURL: "https://files.example/doc.pdf"}
	resp.Pages = []ocr.Page{{
		Index:    0,
		Markdown: "# Title\n\n![figure one](img-0.png)\n\nBody text.",
		Images: []ocr.Image{{
			ID: "img-0.png", TopLeftX: 10, TopLeftY: 10, BottomRightX: 110, BottomRightY: 90,
			ImageBase64: inlineB64,
		}},
	}}
	return resp
}

func TestProcessInlinePayload(t *testing.T) {
	inline := base64.StdEncoding.EncodeToString(pngBytes(t))
	p, store := newTestPipeline(t, &fakeOCR{resp: singleImageResponse(inline)}, nil)

	result, err := p.Process(context.Background(), Input{Bytes: []byte("%PDF-"), Filename: "doc.pdf", MIME: "application/pdf"},
		document.Options{IncludeImages: true})
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	page := result.Pages[0]
	require.Len(t, page.Images, 1)
	assert.Equal(t, document.SourceOCRInline, page.Images[0].Source)
	assert.Zero(t, page.Mismatches)

	assert.Contains(t, result.RenderedMarkdown, "![figure one](data:image/png;base64,")
	assert.NotContains(t, result.RenderedMarkdown, "](img-0.png)")

	// Final artifacts persisted; the structured record carries handles,
	// never payload bytes.
	md, err := store.Get(context.Background(), result.MarkdownHandle)
	require.NoError(t, err)
	assert.Equal(t, result.RenderedMarkdown, string(md))

	record, err := store.Get(context.Background(), result.RecordHandle)
	require.NoError(t, err)
	assert.Contains(t, string(record), `"source": "ocr_inline"`)
	assert.NotContains(t, string(record), inline)

	// Embedded export cleans up the per-image artifact.
	_, err = store.Get(context.Background(), page.Images[0].Handle)
	assert.Error(t, err)
}

func TestProcessMissingPayloadUsesExtraction(t *testing.T) {
	extractor := &fakeExtractor{images: []pdfimages.ExtractedImage{
		{PageIndex: 0, Bytes: pngBytes(t), MIME: "image/png"},
	}}
	p, _ := newTestPipeline(t, &fakeOCR{resp: singleImageResponse("")}, extractor)

	result, err := p.Process(context.Background(), Input{Bytes: []byte("%PDF-"), Filename: "doc.pdf", MIME: "application/pdf"},
		document.Options{IncludeImages: true})
	require.NoError(t, err)

	page := result.Pages[0]
	assert.Equal(t, document.SourceExtracted, page.Images[0].Source)
	assert.Zero(t, page.Mismatches)
	assert.Contains(t, result.RenderedMarkdown, "data:image/png;base64,")
}

func TestProcessNonPDFFallsToPlaceholder(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeOCR{resp: singleImageResponse("")}, &fakeExtractor{})

	result, err := p.Process(context.Background(), Input{Bytes: []byte("not a pdf"), Filename: "scan.png", MIME: "image/png"},
		document.Options{IncludeImages: true})
	require.NoError(t, err)

	page := result.Pages[0]
	assert.Equal(t, document.SourcePlaceholder, page.Images[0].Source)
	assert.Zero(t, page.Mismatches, "a placeholder still binds its link")
	assert.Contains(t, result.RenderedMarkdown, "data:image/svg+xml;base64,")
}

func TestProcessLinkedFormatKeepsArtifacts(t *testing.T) {
	inline := base64.StdEncoding.EncodeToString(pngBytes(t))
	p, store := newTestPipeline(t, &fakeOCR{resp: singleImageResponse(inline)}, nil)

	result, err := p.Process(context.Background(), Input{Bytes: []byte("%PDF-"), MIME: "application/pdf"},
		document.Options{IncludeImages: true, ExportFormat: document.ExportLinked})
	require.NoError(t, err)

	handle := result.Pages[0].Images[0].Handle
	assert.Contains(t, result.RenderedMarkdown, "](/files/"+handle+")")
	assert.NotContains(t, result.RenderedMarkdown, "data:image/png")

	stored, err := store.Get(context.Background(), handle)
	require.NoError(t, err)
	assert.NotEmpty(t, stored, "linked export must keep serving image artifacts")
}

func TestProcessURLInput(t *testing.T) {
	svc := &fakeOCR{resp: singleImageResponse("")}
	p, _ := newTestPipeline(t, svc, nil)

	result, err := p.Process(context.Background(), Input{URL: "https://example.com/paper.pdf"},
		document.Options{IncludeImages: true})
	require.NoError(t, err)
	assert.Equal(t, 1, svc.urlCalls)
	assert.Equal(t, "https://example.com/paper.pdf", result.DocumentURL)
}

func TestProcessEmptyInput(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeOCR{}, nil)
	_, err := p.Process(context.Background(), Input{}, document.Options{})
	var unsupported *fetch.UnsupportedInput
	assert.ErrorAs(t, err, &unsupported)
}

func TestProcessOCRErrorPropagates(t *testing.T) {
	apiErr := &ocr.APIError{Status: 500, Class: ocr.ClassPermanent, Message: "retries exhausted: upstream"}
	p, _ := newTestPipeline(t, &fakeOCR{err: apiErr}, nil)

	result, err := p.Process(context.Background(), Input{Bytes: []byte("%PDF-"), MIME: "application/pdf"},
		document.Options{})
	assert.Nil(t, result)
	var got *ocr.APIError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, ocr.ClassPermanent, got.Class)
}

type failingStore struct {
	storage.ArtifactStore
	failSuffix string
}

func (s *failingStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if strings.HasSuffix(name, s.failSuffix) {
		return "", errors.New("disk full")
	}
	return s.ArtifactStore.Put(ctx, name, data)
}

func TestPersistFailureYieldsNoPartialResult(t *testing.T) {
	inner, err := storage.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	store := &failingStore{ArtifactStore: inner, failSuffix: ".md"}

	p := New(&fakeOCR{resp: singleImageResponse("")}, resolve.NewEngine(store, &fakeExtractor{}), store, nil)

	result, err := p.Process(context.Background(), Input{Bytes: []byte("%PDF-"), MIME: "application/pdf"},
		document.Options{})
	assert.Nil(t, result)
	var perr *storage.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "put", perr.Op)
}
