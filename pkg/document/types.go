package document

import (
	"fmt"
)

// ImageSource identifies which tier produced an image's bytes.
type ImageSource string

const (
	SourceOCRInline   ImageSource = "ocr_inline"
	SourceExtracted   ImageSource = "extracted_embedded"
	SourcePlaceholder ImageSource = "placeholder"
)

// BoundingBox is a rectangle in page pixel space, top-left origin.
type BoundingBox struct {
	TopLeftX     int `json:"top_left_x"`
	TopLeftY     int `json:"top_left_y"`
	BottomRightX int `json:"bottom_right_x"`
	BottomRightY int `json:"bottom_right_y"`
}

// Width returns the box width in pixels.
func (b BoundingBox) Width() int {
	return b.BottomRightX - b.TopLeftX
}

// Height returns the box height in pixels.
func (b BoundingBox) Height() int {
	return b.BottomRightY - b.TopLeftY
}

// ImageRef is a single image slot on a page. It is created from the
// OCR response (or synthesized from an unmatched markdown link) and
// resolved exactly once by the resolution engine: after Source is set
// the ref is never re-resolved.
type ImageRef struct {
	ID     string       `json:"id"`
	Source ImageSource  `json:"source,omitempty"`
	Box    *BoundingBox `json:"bounding_box,omitempty"`

	// OriginRef is the OCR service's original tag for this image, if
	// any. Empty for refs synthesized from markdown links.
	OriginRef string `json:"origin_ref,omitempty"`

	// InlineB64 is the raw inline payload as reported by the OCR
	// service (possibly a data URI). Consumed at resolution tier 1,
	// never serialized.
	InlineB64 string `json:"-"`

	// Bytes holds the resolved image data. Excluded from the
	// structured record; the JSON output carries Handle only.
	Bytes []byte `json:"-"`

	// MIME of the resolved bytes (image/png, image/jpeg, image/svg+xml).
	MIME string `json:"mime,omitempty"`

	// Handle is the retrieval handle assigned by the artifact store
	// once the resolved bytes are persisted.
	Handle string `json:"handle,omitempty"`
}

// Resolved reports whether a source tier has been assigned.
func (r *ImageRef) Resolved() bool {
	return r.Source != ""
}

// Page is one physical page of the processed document. Identity is
// (document, Index); Index is the join key between OCR output and
// embedded-image extraction.
type Page struct {
	Index    int         `json:"index"`
	Markdown string      `json:"markdown"`
	Images   []*ImageRef `json:"images"`

	// Mismatches counts markdown image links that ended the pipeline
	// without a paired ImageRef. Reported, never silently dropped.
	Mismatches int `json:"mismatches,omitempty"`
}

// CountBySource tallies resolved refs per tier.
func (p *Page) CountBySource(src ImageSource) int {
	n := 0
	for _, img := range p.Images {
		if img.Source == src {
			n++
		}
	}
	return n
}

// Validate checks page-level invariants that hold after resolution.
func (p *Page) Validate() error {
	if p.Index < 0 {
		return fmt.Errorf("page index must be non-negative, got %d", p.Index)
	}
	seen := make(map[string]bool, len(p.Images))
	for _, img := range p.Images {
		if img.ID == "" {
			return fmt.Errorf("page %d: image with empty id", p.Index)
		}
		if seen[img.ID] {
			return fmt.Errorf("page %d: duplicate image id %q", p.Index, img.ID)
		}
		seen[img.ID] = true
	}
	return nil
}

// ExportFormat selects how the final markdown binds its images.
type ExportFormat string

const (
	// ExportEmbedded inlines image bytes as data URIs, yielding a
	// single portable artifact. This is the default.
	ExportEmbedded ExportFormat = "embedded"
	// ExportLinked points image references at retrieval paths; the
	// store must remain servable for the links to work.
	ExportLinked ExportFormat = "linked"
)

// Options is the per-call configuration bundle handed to the pipeline.
type Options struct {
	IncludeImages bool         `json:"include_images"`
	ExportFormat  ExportFormat `json:"export_format"`
}

// Result is the externally visible output of the pipeline. Immutable
// once assembled.
type Result struct {
	DocumentURL string  `json:"document_url"`
	Pages       []*Page `json:"pages"`

	// RenderedMarkdown is the final combined markdown document.
	RenderedMarkdown string `json:"-"`

	// Artifact handles assigned at persistence.
	MarkdownHandle string `json:"markdown_handle,omitempty"`
	RecordHandle   string `json:"record_handle,omitempty"`
}

// TotalMismatches sums reported link/ref mismatches across pages.
func (r *Result) TotalMismatches() int {
	n := 0
	for _, p := range r.Pages {
		n += p.Mismatches
	}
	return n
}
