package resolve

import (
	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/pkg/document"
)

// Pair binds an unresolved image slot to an extracted candidate.
type Pair struct {
	Slot      *document.ImageRef
	Candidate pdfimages.ExtractedImage
}

// PairSlots pairs the k-th unresolved slot with the k-th extracted
// image, both in their reported order. Neither the OCR service nor
// the extractor exposes a shared key, so positional order is the
// defined policy; no content or geometry heuristics. This is a known
// accuracy limitation, kept explicit and swappable should a future
// OCR service expose usable positional metadata.
//
// Leftover slots (more slots than candidates) stay unpaired; leftover
// candidates are ignored.
func PairSlots(slots []*document.ImageRef, candidates []pdfimages.ExtractedImage) []Pair {
	n := len(slots)
	if len(candidates) < n {
		n = len(candidates)
	}
	pairs := make([]Pair, 0, n)
	for k := 0; k < n; k++ {
		pairs = append(pairs, Pair{Slot: slots[k], Candidate: candidates[k]})
	}
	return pairs
}
