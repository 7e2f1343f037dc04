package resolve

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"path"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/markdown"
	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/internal/storage"
	"github.com/pagelift/pagelift/pkg/document"
	"github.com/pagelift/pagelift/pkg/logging"
)

// minInlineBytes is the decoded-size floor below which an inline
// payload is treated as corrupt. Real raster images are never this
// small; tiny payloads are truncation artifacts from the OCR service.
const minInlineBytes = 50

// EmbeddedSource supplies native images pulled from the original
// document, used as resolution tier 2.
type EmbeddedSource interface {
	ExtractEmbeddedImages(ctx context.Context, content []byte, mime string) []pdfimages.ExtractedImage
}

// Engine resolves every image slot on every page through three tiers:
// the OCR service's inline payload, an embedded image extracted from
// the original document, and finally a synthesized placeholder. Every
// slot leaves with a Source assigned; resolution itself never fails
// the pipeline.
type Engine struct {
	store     storage.ArtifactStore
	extractor EmbeddedSource
	log       zerolog.Logger
}

// NewEngine builds a resolution engine over the given artifact store
// and embedded-image source.
func NewEngine(store storage.ArtifactStore, extractor EmbeddedSource) *Engine {
	return &Engine{
		store:     store,
		extractor: extractor,
		log:       logging.GetLogger("resolver"),
	}
}

// ResolvePages resolves all pages of one document. The original
// document bytes back tier 2; extraction runs at most once and only
// when some slot actually falls past tier 1.
func (e *Engine) ResolvePages(ctx context.Context, documentID string, pages []*document.Page, original []byte, mime string) {
	var extracted map[int][]pdfimages.ExtractedImage
	fetched := false
	candidatesFor := func(pageIndex int) []pdfimages.ExtractedImage {
		if !fetched {
			fetched = true
			extracted = groupByPage(e.extractor.ExtractEmbeddedImages(ctx, original, mime))
		}
		return extracted[pageIndex]
	}

	for _, page := range pages {
		e.resolvePage(ctx, documentID, page, candidatesFor)
	}
}

func (e *Engine) resolvePage(ctx context.Context, documentID string, page *document.Page, candidatesFor func(int) []pdfimages.ExtractedImage) {
	ensureImplicitRefs(page)

	var pending []*document.ImageRef
	for _, ref := range page.Images {
		if ref.Resolved() {
			continue
		}
		if e.resolveInline(ctx, documentID, page, ref) {
			continue
		}
		pending = append(pending, ref)
	}
	if len(pending) == 0 {
		return
	}

	for _, pair := range PairSlots(pending, candidatesFor(page.Index)) {
		e.resolveExtracted(ctx, documentID, page, pair)
	}

	for _, ref := range pending {
		if !ref.Resolved() {
			e.resolvePlaceholder(ctx, documentID, page, ref)
		}
	}
}

// resolveInline is tier 1: decode and persist the OCR-supplied inline
// payload. Any failure here means "fall to the next tier", not an
// error.
func (e *Engine) resolveInline(ctx context.Context, documentID string, page *document.Page, ref *document.ImageRef) bool {
	if ref.InlineB64 == "" {
		return false
	}
	log := e.refLogger(documentID, page.Index, ref.ID)

	data, err := decodeInline(ref.InlineB64)
	if err != nil {
		log.Warn().Err(err).Msg("Inline payload undecodable, falling to embedded extraction")
		return false
	}
	if len(data) < minInlineBytes {
		log.Warn().Int("decoded_bytes", len(data)).
			Msg("Inline payload below corruption threshold, falling to embedded extraction")
		return false
	}

	mime := sniffMIME(data, ref.ID)
	handle, err := e.store.Put(ctx, artifactName(documentID, page.Index, ref.ID, extFromMIME(mime)), data)
	if err != nil {
		log.Warn().Err(err).Msg("Inline image persist failed, falling to embedded extraction")
		return false
	}

	ref.Source = document.SourceOCRInline
	ref.Bytes = data
	ref.MIME = mime
	ref.Handle = handle
	log.Debug().Str("source", string(ref.Source)).Int("bytes", len(data)).Msg("Image slot resolved")
	return true
}

// resolveExtracted is tier 2: persist the positionally paired embedded
// image. A persist failure leaves the slot unresolved so tier 3 picks
// it up.
func (e *Engine) resolveExtracted(ctx context.Context, documentID string, page *document.Page, pair Pair) {
	ref, candidate := pair.Slot, pair.Candidate
	log := e.refLogger(documentID, page.Index, ref.ID)

	handle, err := e.store.Put(ctx,
		artifactName(documentID, page.Index, ref.ID, extFromMIME(candidate.MIME)), candidate.Bytes)
	if err != nil {
		log.Warn().Err(err).Msg("Extracted image persist failed, falling to placeholder")
		return
	}

	ref.Source = document.SourceExtracted
	ref.Bytes = candidate.Bytes
	ref.MIME = candidate.MIME
	ref.Handle = handle
	if ref.Box == nil {
		ref.Box = candidate.Box
	}
	log.Debug().Str("source", string(ref.Source)).Int("bytes", len(candidate.Bytes)).Msg("Image slot resolved")
}

// resolvePlaceholder is tier 3 and always assigns a Source. If even
// the placeholder cannot be persisted the slot keeps an empty Handle;
// the rewriter skips it and reports the mismatch.
func (e *Engine) resolvePlaceholder(ctx context.Context, documentID string, page *document.Page, ref *document.ImageRef) {
	log := e.refLogger(documentID, page.Index, ref.ID)

	svg := PlaceholderSVG(ref.ID, ref.Box)
	ref.Source = document.SourcePlaceholder
	ref.Bytes = svg
	ref.MIME = "image/svg+xml"

	handle, err := e.store.Put(ctx, artifactName(documentID, page.Index, ref.ID, ".svg"), svg)
	if err != nil {
		log.Warn().Err(err).Msg("Placeholder persist failed, slot stays unlinked")
		return
	}
	ref.Handle = handle
	log.Debug().Str("source", string(ref.Source)).Msg("Image slot resolved")
}

func (e *Engine) refLogger(documentID string, pageIndex int, refID string) zerolog.Logger {
	return e.log.With().
		Str("document_id", documentID).
		Int("page", pageIndex).
		Str("image_id", refID).
		Logger()
}

// ensureImplicitRefs synthesizes image slots for markdown links the
// OCR response under-reported, so every link can still be bound. Extra
// links pair with the synthesized refs ordinally, same as everywhere
// else.
func ensureImplicitRefs(page *document.Page) {
	patterns := markdown.ScanPatterns(page.Markdown)
	if len(patterns) <= len(page.Images) {
		return
	}

	used := make(map[string]bool, len(page.Images))
	for _, ref := range page.Images {
		used[ref.ID] = true
	}

	for _, p := range patterns[len(page.Images):] {
		id := path.Base(p.Ref)
		if id == "" || id == "." || used[id] {
			id = fmt.Sprintf("implicit-%d", len(page.Images))
		}
		used[id] = true
		page.Images = append(page.Images, &document.ImageRef{ID: id})
	}
}

// decodeInline decodes a base64 payload that may arrive bare or as a
// data URI.
func decodeInline(b64 string) ([]byte, error) {
	payload := b64
	if strings.HasPrefix(payload, "data:") {
		if idx := strings.Index(payload, ","); idx >= 0 {
			payload = payload[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
	}
	return data, err
}

// sniffMIME determines the payload's type from its magic bytes,
// falling back to the slot id's extension.
func sniffMIME(data []byte, id string) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if format == "jpeg" {
			return "image/jpeg"
		}
		return "image/" + format
	}
	return mimeFromExt(id)
}

var extToMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

func mimeFromExt(ref string) string {
	if mime, ok := extToMIME[strings.ToLower(path.Ext(ref))]; ok {
		return mime
	}
	return "image/png"
}

func extFromMIME(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".png"
	}
}

// artifactName builds the persisted artifact's name. The random
// suffix keeps repeated runs over the same document from colliding.
func artifactName(documentID string, pageIndex int, refID, ext string) string {
	base := strings.TrimSuffix(refID, path.Ext(refID))
	base = safeSlug(base)
	return fmt.Sprintf("%s-p%d-%s-%s%s", documentID, pageIndex, base, uuid.New().String()[:8], ext)
}

func safeSlug(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	if b.Len() == 0 {
		return "img"
	}
	return b.String()
}

func groupByPage(images []pdfimages.ExtractedImage) map[int][]pdfimages.ExtractedImage {
	byPage := make(map[int][]pdfimages.ExtractedImage, len(images))
	for _, img := range images {
		byPage[img.PageIndex] = append(byPage[img.PageIndex], img)
	}
	return byPage
}
