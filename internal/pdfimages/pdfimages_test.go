package pdfimages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEmbeddedImagesNonPDF(t *testing.T) {
	e := NewExtractor(nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		content []byte
		mime    string
	}{
		{"jpeg input", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "image/jpeg"},
		{"png input", []byte("\x89PNG\r\n"), "image/png"},
		{"empty input", nil, "application/pdf"},
		{"text input", []byte("hello world"), "text/plain"},
		{"pdf mime but not pdf bytes", []byte("not a pdf"), "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, e.ExtractEmbeddedImages(ctx, tt.content, tt.mime),
				"non-PDF input means fallback unavailable, not an error")
		})
	}
}

func TestExtractEmbeddedImagesGarbagePDF(t *testing.T) {
	e := NewExtractor(nil)
	// Valid magic, broken body: extraction must go inert, never panic.
	content := []byte("%PDF-1.7\nthis is not a valid pdf body\n%%EOF")
	assert.Empty(t, e.ExtractEmbeddedImages(context.Background(), content, "application/pdf"))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("application/pdf", []byte("%PDF-1.4...")))
	assert.True(t, IsPDF("", []byte("%PDF-1.4...")))
	assert.False(t, IsPDF("application/pdf", []byte("PK\x03\x04")))
	assert.False(t, IsPDF("image/png", []byte("%PDF-1.4...")))
}

func TestScanPlacementsOrderAndCTM(t *testing.T) {
	content := []byte(`
q
200 0 0 100 50 600 cm
/Im1 Do
Q
q
80 0 0 80 300 200 cm
/Im0 Do
Q
BT /F1 12 Tf (hello (nested) paren) Tj ET
`)

	placements := ScanPlacements(content)
	require.Len(t, placements, 2)

	assert.Equal(t, "Im1", placements[0].Name, "draw order, not name order")
	assert.Equal(t, "Im0", placements[1].Name)

	box := placements[0].PixelBox(geometry{Width: 612, Height: 792})
	require.NotNil(t, box)
	assert.Equal(t, 50, box.TopLeftX)
	assert.Equal(t, 792-700, box.TopLeftY)
	assert.Equal(t, 250, box.BottomRightX)
	assert.Equal(t, 792-600, box.BottomRightY)
	assert.Equal(t, 200, box.Width())
	assert.Equal(t, 100, box.Height())
}

func TestScanPlacementsNestedState(t *testing.T) {
	content := []byte(`
q
2 0 0 2 0 0 cm
q
100 0 0 50 10 20 cm
/A Do
Q
50 0 0 50 0 0 cm
/B Do
Q
`)
	placements := ScanPlacements(content)
	require.Len(t, placements, 2)

	// A: inner cm concatenated with the outer doubling.
	boxA := placements[0].PixelBox(geometry{Width: 612, Height: 792})
	require.NotNil(t, boxA)
	assert.Equal(t, 200, boxA.Width())
	assert.Equal(t, 100, boxA.Height())

	// B: drawn after Q restored the doubled CTM.
	boxB := placements[1].PixelBox(geometry{Width: 612, Height: 792})
	require.NotNil(t, boxB)
	assert.Equal(t, 100, boxB.Width())
	assert.Equal(t, 100, boxB.Height())
}

func TestScanPlacementsSkipsInlineImages(t *testing.T) {
	content := []byte(`
BI /W 2 /H 2 /CS /RGB /BPC 8 ID xxxxxxxxxxxx EI
q 10 0 0 10 0 0 cm /Real Do Q
`)
	placements := ScanPlacements(content)
	require.Len(t, placements, 1)
	assert.Equal(t, "Real", placements[0].Name)
}

func TestScanPlacementsDeterministic(t *testing.T) {
	content := []byte("q 10 0 0 10 5 5 cm /X Do Q q 20 0 0 20 0 0 cm /Y Do Q")
	first := ScanPlacements(content)
	second := ScanPlacements(content)
	assert.Equal(t, first, second)
}

func TestPixelBoxDegenerate(t *testing.T) {
	p := Placement{Name: "Im0", CTM: IdentityMatrix()} // unit square, sub-pixel
	assert.Nil(t, p.PixelBox(geometry{Width: 612, Height: 792}))
}

func TestMatrixMult(t *testing.T) {
	scale := Matrix{2, 0, 0, 2, 0, 0}
	translate := Matrix{1, 0, 0, 1, 10, 20}
	m := scale.Mult(translate)

	x, y := m.apply(1, 1)
	assert.InDelta(t, 12.0, x, 1e-9)
	assert.InDelta(t, 22.0, y, 1e-9)
}

func TestWrapSamplesAsPNG(t *testing.T) {
	rgb := make([]byte, 4*4*3)
	for i := range rgb {
		rgb[i] = 0x7F
	}
	data, ok := wrapSamplesAsPNG(rgb, 4, 4, "DeviceRGB", 8)
	require.True(t, ok)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	gray := make([]byte, 4*4)
	data, ok = wrapSamplesAsPNG(gray, 4, 4, "DeviceGray", 8)
	require.True(t, ok)
	assert.Equal(t, []byte("\x89PNG"), data[:4])

	_, ok = wrapSamplesAsPNG(rgb, 4, 4, "DeviceCMYK", 8)
	assert.False(t, ok)
	_, ok = wrapSamplesAsPNG(rgb[:5], 4, 4, "DeviceRGB", 8)
	assert.False(t, ok)
	_, ok = wrapSamplesAsPNG(rgb, 4, 4, "DeviceRGB", 1)
	assert.False(t, ok)
}

func TestRenderPageSketchesNonPDF(t *testing.T) {
	e := NewExtractor(nil)
	assert.Empty(t, e.RenderPageSketches(context.Background(), []byte("not a pdf")))
}
