package resolve

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/pkg/document"
)

type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts int
	puts     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.puts <= s.failPuts {
		return "", errors.New("disk full")
	}
	s.objects[name] = append([]byte(nil), data...)
	return name, nil
}

func (s *fakeStore) Get(_ context.Context, handle string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[handle]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *fakeStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, handle)
	return nil
}

type fakeExtractor struct {
	calls  int
	images []pdfimages.ExtractedImage
}

func (f *fakeExtractor) ExtractEmbeddedImages(context.Context, []byte, string) []pdfimages.ExtractedImage {
	f.calls++
	return f.images
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	require.GreaterOrEqual(t, buf.Len(), minInlineBytes)
	return buf.Bytes()
}

func pngB64(t *testing.T) string {
	return base64.StdEncoding.EncodeToString(pngBytes(t))
}

func TestResolveInlinePayload(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{}
	engine := NewEngine(store, extractor)

	page := &document.Page{
		Index:    0,
		Markdown: "![fig](img-0.png)",
		Images:   []*document.ImageRef{{ID: "img-0.png", InlineB64: "data:image/png;base64," + pngB64(t)}},
	}
	engine.ResolvePages(context.Background(), "doc1", []*document.Page{page}, nil, "application/pdf")

	ref := page.Images[0]
	assert.Equal(t, document.SourceOCRInline, ref.Source)
	assert.Equal(t, "image/png", ref.MIME)
	require.NotEmpty(t, ref.Handle)
	stored, err := store.Get(context.Background(), ref.Handle)
	require.NoError(t, err)
	assert.Equal(t, ref.Bytes, stored)
	assert.Zero(t, extractor.calls, "all slots inline, extraction must not run")
}

func TestCorruptInlineFallsToExtracted(t *testing.T) {
	tiny := base64.StdEncoding.EncodeToString([]byte("too small"))
	store := newFakeStore()
	extractor := &fakeExtractor{images: []pdfimages.ExtractedImage{
		{PageIndex: 0, Bytes: pngBytes(t), MIME: "image/png",
			Box: &document.BoundingBox{TopLeftX: 0, TopLeftY: 0, BottomRightX: 100, BottomRightY: 80}},
	}}
	engine := NewEngine(store, extractor)

	page := &document.Page{
		Index:  0,
		Images: []*document.ImageRef{{ID: "img-0.png", InlineB64: tiny}},
	}
	engine.ResolvePages(context.Background(), "doc1", []*document.Page{page}, []byte("%PDF-"), "application/pdf")

	ref := page.Images[0]
	assert.Equal(t, document.SourceExtracted, ref.Source)
	assert.NotEmpty(t, ref.Handle)
	assert.Equal(t, 1, extractor.calls)
	require.NotNil(t, ref.Box, "extracted placement backfills a missing box")
	assert.Equal(t, 100, ref.Box.Width())
}

func TestUndecodableInlineFallsToPlaceholder(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, &fakeExtractor{})

	page := &document.Page{
		Index:  2,
		Images: []*document.ImageRef{{ID: "img-3.png", InlineB64: "!!not base64!!"}},
	}
	engine.ResolvePages(context.Background(), "doc1", []*document.Page{page}, nil, "image/png")

	ref := page.Images[0]
	assert.Equal(t, document.SourcePlaceholder, ref.Source)
	assert.Equal(t, "image/svg+xml", ref.MIME)
	require.NotEmpty(t, ref.Handle)
	stored, err := store.Get(context.Background(), ref.Handle)
	require.NoError(t, err)
	assert.Contains(t, string(stored), "img-3.png")
}

func TestEverySlotLeavesWithSource(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{images: []pdfimages.ExtractedImage{
		{PageIndex: 0, Bytes: pngBytes(t), MIME: "image/png"},
	}}
	engine := NewEngine(store, extractor)

	pages := []*document.Page{
		{Index: 0, Images: []*document.ImageRef{
			{ID: "a.png", InlineB64: pngB64(t)},
			{ID: "b.png"}, // no payload, gets the one extracted image
			{ID: "c.png"}, // nothing left, placeholder
		}},
		{Index: 1, Images: []*document.ImageRef{{ID: "d.png"}}},
	}
	engine.ResolvePages(context.Background(), "doc1", pages, []byte("%PDF-"), "application/pdf")

	assert.Equal(t, document.SourceOCRInline, pages[0].Images[0].Source)
	assert.Equal(t, document.SourceExtracted, pages[0].Images[1].Source)
	assert.Equal(t, document.SourcePlaceholder, pages[0].Images[2].Source)
	assert.Equal(t, document.SourcePlaceholder, pages[1].Images[0].Source)
	for _, p := range pages {
		for _, ref := range p.Images {
			assert.True(t, ref.Resolved())
			assert.NotEmpty(t, ref.Handle)
		}
	}
	assert.Equal(t, 1, extractor.calls, "one extraction pass per document")
}

func TestPersistFailureDegradesTierByTier(t *testing.T) {
	// First put (inline) and second put (extracted) fail; the
	// placeholder write succeeds.
	store := newFakeStore()
	store.failPuts = 2
	extractor := &fakeExtractor{images: []pdfimages.ExtractedImage{
		{PageIndex: 0, Bytes: pngBytes(t), MIME: "image/png"},
	}}
	engine := NewEngine(store, extractor)

	page := &document.Page{
		Index:  0,
		Images: []*document.ImageRef{{ID: "img-0.png", InlineB64: pngB64(t)}},
	}
	engine.ResolvePages(context.Background(), "doc1", []*document.Page{page}, []byte("%PDF-"), "application/pdf")

	ref := page.Images[0]
	assert.Equal(t, document.SourcePlaceholder, ref.Source)
	assert.NotEmpty(t, ref.Handle)
}

func TestPlaceholderPersistFailureKeepsSourceDropsHandle(t *testing.T) {
	store := newFakeStore()
	store.failPuts = 100
	engine := NewEngine(store, &fakeExtractor{})

	page := &document.Page{Index: 0, Images: []*document.ImageRef{{ID: "img-0.png"}}}
	engine.ResolvePages(context.Background(), "doc1", []*document.Page{page}, nil, "image/png")

	ref := page.Images[0]
	assert.Equal(t, document.SourcePlaceholder, ref.Source)
	assert.Empty(t, ref.Handle)
	assert.NotEmpty(t, ref.Bytes)
}

func TestEnsureImplicitRefs(t *testing.T) {
	page := &document.Page{
		Index:    0,
		Markdown: "![a](img-0.png)\ntext\n![b](figures/chart.png)\n![c](img-0.png)",
		Images:   []*document.ImageRef{{ID: "img-0.png"}},
	}
	ensureImplicitRefs(page)

	require.Len(t, page.Images, 3)
	assert.Equal(t, "chart.png", page.Images[1].ID)
	// Third link's basename collides with the reported image id.
	assert.Equal(t, "implicit-2", page.Images[2].ID)
	assert.NoError(t, page.Validate())
}

func TestEnsureImplicitRefsNoExtraLinks(t *testing.T) {
	page := &document.Page{
		Index:    0,
		Markdown: "![a](img-0.png)",
		Images:   []*document.ImageRef{{ID: "img-0.png"}, {ID: "img-1.png"}},
	}
	ensureImplicitRefs(page)
	assert.Len(t, page.Images, 2, "more refs than links is left alone")
}

func TestPairSlots(t *testing.T) {
	slots := []*document.ImageRef{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	candidates := []pdfimages.ExtractedImage{{Order: 0}, {Order: 1}}

	pairs := PairSlots(slots, candidates)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].Slot.ID)
	assert.Equal(t, 0, pairs[0].Candidate.Order)
	assert.Equal(t, "b", pairs[1].Slot.ID)
	assert.Equal(t, 1, pairs[1].Candidate.Order)

	assert.Empty(t, PairSlots(nil, candidates))
	assert.Empty(t, PairSlots(slots, nil))
}

func TestPlaceholderSVG(t *testing.T) {
	box := &document.BoundingBox{TopLeftX: 10, TopLeftY: 10, BottomRightX: 210, BottomRightY: 160}
	svg := PlaceholderSVG("img-1.png", box)

	s := string(svg)
	assert.True(t, strings.HasPrefix(s, "<svg"))
	assert.Contains(t, s, `width="200" height="150"`)
	assert.Contains(t, s, "img-1.png")
	assert.Equal(t, svg, PlaceholderSVG("img-1.png", box), "deterministic")

	noBox := string(PlaceholderSVG("x.png", nil))
	assert.Contains(t, noBox, fmt.Sprintf(`width="%d" height="%d"`, placeholderWidth, placeholderHeight))

	escaped := string(PlaceholderSVG(`a<b>&"c.png`, nil))
	assert.NotContains(t, escaped, `<b>`)
	assert.Contains(t, escaped, "&lt;b&gt;")
}

func TestDecodeInline(t *testing.T) {
	raw := []byte("hello image bytes")
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeInline(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeInline("data:image/png;base64," + encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeInline(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeInline("!!!")
	assert.Error(t, err)
}

func TestSniffMIME(t *testing.T) {
	assert.Equal(t, "image/png", sniffMIME(pngBytes(t), "whatever.jpg"))
	assert.Equal(t, "image/jpeg", sniffMIME([]byte("garbage"), "photo.JPG"))
	assert.Equal(t, "image/png", sniffMIME([]byte("garbage"), "no-extension"))
}

func TestArtifactName(t *testing.T) {
	name := artifactName("doc1", 3, "img 0/evil.png", ".png")
	assert.True(t, strings.HasPrefix(name, "doc1-p3-img-0-evil-"))
	assert.True(t, strings.HasSuffix(name, ".png"))
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, " ")

	other := artifactName("doc1", 3, "img 0/evil.png", ".png")
	assert.NotEqual(t, name, other, "random suffix avoids collisions")
}
