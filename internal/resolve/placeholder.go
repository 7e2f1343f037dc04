package resolve

import (
	"fmt"
	"strings"

	"github.com/pagelift/pagelift/pkg/document"
)

const (
	placeholderWidth  = 400
	placeholderHeight = 300
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// PlaceholderSVG synthesizes the tier-3 stand-in image: a bordered
// rectangle carrying the slot's identifier, sized from the reported
// bounding box when one exists. Output is deterministic for a given
// id and box.
func PlaceholderSVG(id string, box *document.BoundingBox) []byte {
	width, height := placeholderWidth, placeholderHeight
	if box != nil && box.Width() > 0 && box.Height() > 0 {
		width, height = box.Width(), box.Height()
	}

	label := xmlEscaper.Replace(id)
	if label == "" {
		label = "image"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		width, height, width, height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#f0f0f0" stroke="#999999" stroke-width="2"/>`,
		width, height)
	fmt.Fprintf(&b, `<text x="50%%" y="45%%" text-anchor="middle" font-family="sans-serif" font-size="14" fill="#666666">image unavailable</text>`)
	fmt.Fprintf(&b, `<text x="50%%" y="60%%" text-anchor="middle" font-family="sans-serif" font-size="12" fill="#999999">%s (%dx%d)</text>`,
		label, width, height)
	b.WriteString(`</svg>`)
	return []byte(b.String())
}
