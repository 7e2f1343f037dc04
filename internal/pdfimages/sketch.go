package pdfimages

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ledongthuc/pdf"
)

// PageSketch is a best-effort visual layout of one page: its embedded
// images composited onto a white canvas at their placed boxes. Used
// by the optional compare-original-vs-OCR view; core resolution never
// depends on it.
type PageSketch struct {
	Index  int
	PNG    []byte
	Width  int
	Height int
}

// RenderPageSketches renders a sketch per page. Independent from
// ExtractEmbeddedImages and equally inert on failure.
func (e *Extractor) RenderPageSketches(ctx context.Context, content []byte) []PageSketch {
	if !IsPDF("", content) {
		return nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil
	}

	images := e.ExtractEmbeddedImages(ctx, content, "application/pdf")
	byPage := make(map[int][]ExtractedImage)
	for _, img := range images {
		byPage[img.PageIndex] = append(byPage[img.PageIndex], img)
	}

	var sketches []PageSketch
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return sketches
		default:
		}
		if s, ok := e.sketchPage(reader, pageNum, byPage[pageNum-1]); ok {
			sketches = append(sketches, s)
		}
	}
	return sketches
}

func (e *Extractor) sketchPage(reader *pdf.Reader, pageNum int, images []ExtractedImage) (sketch PageSketch, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return sketch, false
	}
	geom := pageGeometry(page)
	width, height := int(geom.Width), int(geom.Height)

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, xdraw.Src)

	for _, embedded := range images {
		if embedded.Box == nil || len(embedded.Bytes) == 0 {
			continue
		}
		decoded, _, err := image.Decode(bytes.NewReader(embedded.Bytes))
		if err != nil {
			continue
		}
		target := image.Rect(
			embedded.Box.TopLeftX, embedded.Box.TopLeftY,
			embedded.Box.BottomRightX, embedded.Box.BottomRightY,
		)
		xdraw.ApproxBiLinear.Scale(canvas, target, decoded, decoded.Bounds(), xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return sketch, false
	}
	return PageSketch{Index: pageNum - 1, PNG: buf.Bytes(), Width: width, Height: height}, true
}
