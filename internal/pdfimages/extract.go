package pdfimages

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/pkg/document"
	"github.com/pagelift/pagelift/pkg/logging"
)

// ExtractedImage is a native raster image pulled out of the original
// document, independent of the OCR service.
type ExtractedImage struct {
	PageIndex int
	Order     int
	Bytes     []byte
	MIME      string
	Width     int
	Height    int
	Box       *document.BoundingBox
}

// Extractor walks a PDF's per-page XObject resources. It is strictly
// best-effort: any parse failure renders it inert for the call, and
// nothing here raises into the pipeline.
type Extractor struct {
	log zerolog.Logger
}

// NewExtractor builds an extractor. The config parameter is accepted
// for symmetry with the other pipeline collaborators; extraction
// itself has no knobs.
func NewExtractor(_ *config.Config) *Extractor {
	return &Extractor{log: logging.GetLogger("pdf-extractor")}
}

// ExtractEmbeddedImages returns every embedded raster image with a
// deterministic order: pages ascending, draw order within a page
// (falling back to resource-name order for images never drawn).
// Non-PDF input yields an empty result, meaning "fallback
// unavailable", not an error.
func (e *Extractor) ExtractEmbeddedImages(ctx context.Context, content []byte, mime string) []ExtractedImage {
	if !IsPDF(mime, content) {
		return nil
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		e.log.Debug().Err(err).Msg("PDF parse failed, embedded extraction unavailable")
		return nil
	}

	var out []ExtractedImage
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return out
		default:
		}
		out = append(out, e.extractPage(reader, pageNum)...)
	}
	return out
}

// IsPDF reports whether the input is a page-structured document the
// extractor can work on.
func IsPDF(mime string, content []byte) bool {
	if len(content) < 4 || string(content[:4]) != "%PDF" {
		return false
	}
	return mime == "" || strings.Contains(mime, "pdf")
}

// extractPage pulls images for a single 1-based page. The pdf library
// panics on malformed structures, so the whole page is guarded; a bad
// page costs only its own images.
func (e *Extractor) extractPage(reader *pdf.Reader, pageNum int) (images []ExtractedImage) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Debug().Int("page", pageNum).Interface("panic", r).Msg("Page image extraction aborted")
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return nil
	}

	xobjects := page.V.Key("Resources").Key("XObject")
	if xobjects.Kind() != pdf.Dict && xobjects.Kind() != pdf.Stream {
		return nil
	}

	geom := pageGeometry(page)
	placements := ScanPlacements(pageContent(page))

	for _, name := range drawOrder(xobjects.Keys(), placements) {
		img, ok := e.decodeXObject(xobjects.Key(name))
		if !ok {
			continue
		}
		img.PageIndex = pageNum - 1
		img.Order = len(images)
		if placed, found := placementFor(placements, name); found {
			img.Box = placed.PixelBox(geom)
		}
		images = append(images, img)
	}
	return images
}

// decodeXObject turns an image XObject into displayable bytes.
// DCT-encoded streams pass through as JPEG; flate-decoded raw samples
// are wrapped into a PNG. Anything else is skipped.
func (e *Extractor) decodeXObject(v pdf.Value) (img ExtractedImage, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	if v.Kind() != pdf.Stream {
		return img, false
	}
	if v.Key("Subtype").Name() != "Image" {
		return img, false
	}

	width := int(v.Key("Width").Int64())
	height := int(v.Key("Height").Int64())
	if width <= 0 || height <= 0 {
		return img, false
	}

	data, err := readStream(v)
	if err != nil || len(data) == 0 {
		return img, false
	}

	filters := filterNames(v.Key("Filter"))
	switch {
	case hasFilter(filters, "DCTDecode"):
		if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
			return img, false
		}
		img = ExtractedImage{Bytes: data, MIME: "image/jpeg", Width: width, Height: height}
	case hasFilter(filters, "JPXDecode"), hasFilter(filters, "CCITTFaxDecode"), hasFilter(filters, "JBIG2Decode"):
		// No decoder for these; skip rather than emit garbage.
		return img, false
	default:
		wrapped, wok := wrapSamplesAsPNG(data, width, height,
			colorSpaceName(v.Key("ColorSpace")), int(v.Key("BitsPerComponent").Int64()))
		if !wok {
			return img, false
		}
		img = ExtractedImage{Bytes: wrapped, MIME: "image/png", Width: width, Height: height}
	}
	return img, true
}

// readStream reads the decoded stream contents. The library applies
// stream filters itself and panics on ones it does not support; the
// caller's recover handles that.
func readStream(v pdf.Value) ([]byte, error) {
	r := v.Reader()
	defer r.Close()
	return io.ReadAll(r)
}

// wrapSamplesAsPNG reconstructs a PNG from raw decoded samples for
// the color spaces that map directly onto Go image types.
func wrapSamplesAsPNG(samples []byte, width, height int, colorSpace string, bpc int) ([]byte, bool) {
	if bpc != 8 {
		return nil, false
	}

	var canvas image.Image
	switch colorSpace {
	case "DeviceRGB":
		if len(samples) < width*height*3 {
			return nil, false
		}
		rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				s := (y*width + x) * 3
				d := rgba.PixOffset(x, y)
				rgba.Pix[d] = samples[s]
				rgba.Pix[d+1] = samples[s+1]
				rgba.Pix[d+2] = samples[s+2]
				rgba.Pix[d+3] = 0xFF
			}
		}
		canvas = rgba
	case "DeviceGray":
		if len(samples) < width*height {
			return nil, false
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, samples[:width*height])
		canvas = gray
	default:
		return nil, false
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// pageContent concatenates a page's content streams. Contents may be
// a single stream or an array of streams.
func pageContent(page pdf.Page) []byte {
	contents := page.V.Key("Contents")
	var buf bytes.Buffer
	appendStream := func(v pdf.Value) {
		defer func() { recover() }()
		if v.Kind() != pdf.Stream {
			return
		}
		data, err := readStream(v)
		if err == nil {
			buf.Write(data)
			buf.WriteByte('\n')
		}
	}

	switch contents.Kind() {
	case pdf.Stream:
		appendStream(contents)
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			appendStream(contents.Index(i))
		}
	}
	return buf.Bytes()
}

type geometry struct {
	Width  float64
	Height float64
}

// pageGeometry reads the MediaBox, defaulting to US Letter.
func pageGeometry(page pdf.Page) geometry {
	box := page.V.Key("MediaBox")
	if box.Kind() == pdf.Array && box.Len() == 4 {
		w := box.Index(2).Float64() - box.Index(0).Float64()
		h := box.Index(3).Float64() - box.Index(1).Float64()
		if w > 0 && h > 0 {
			return geometry{Width: w, Height: h}
		}
	}
	return geometry{Width: 612, Height: 792}
}

// drawOrder lists XObject names in content-stream draw order, then
// any remaining names in their (sorted) resource order, so the result
// is deterministic even for images that are never drawn.
func drawOrder(names []string, placements []Placement) []string {
	seen := make(map[string]bool, len(names))
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}

	order := make([]string, 0, len(names))
	for _, p := range placements {
		if known[p.Name] && !seen[p.Name] {
			order = append(order, p.Name)
			seen[p.Name] = true
		}
	}
	for _, n := range names { // Keys() is sorted
		if !seen[n] {
			order = append(order, n)
		}
	}
	return order
}

func placementFor(placements []Placement, name string) (Placement, bool) {
	for _, p := range placements {
		if p.Name == name {
			return p, true
		}
	}
	return Placement{}, false
}

func filterNames(v pdf.Value) []string {
	switch v.Kind() {
	case pdf.Name:
		return []string{v.Name()}
	case pdf.Array:
		names := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			names = append(names, v.Index(i).Name())
		}
		return names
	}
	return nil
}

func hasFilter(filters []string, name string) bool {
	for _, f := range filters {
		if f == name {
			return true
		}
	}
	return false
}

func colorSpaceName(v pdf.Value) string {
	switch v.Kind() {
	case pdf.Name:
		return v.Name()
	case pdf.Array:
		if v.Len() > 0 {
			return v.Index(0).Name()
		}
	}
	return ""
}
