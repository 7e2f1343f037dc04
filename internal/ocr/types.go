package ocr

import (
	"github.com/pagelift/pagelift/pkg/document"
)

// Response is the recognition response returned by the Mistral OCR
// endpoint: one entry per physical page, markdown plus optional
// inline image payloads.
type Response struct {
	Pages     []Page `json:"pages"`
	Model     string `json:"model"`
	UsageInfo struct {
		PagesProcessed int  `json:"pages_processed"`
		DocSizeBytes   *int `json:"doc_size_bytes"`
	} `json:"usage_info"`

	// DocumentURL is the signed URL the recognition ran against.
	// Filled in by the client, not part of the wire format.
	DocumentURL string `json:"-"`
}

// Page is a single page of the OCR response.
type Page struct {
	Index      int     `json:"index"`
	Markdown   string  `json:"markdown"`
	Images     []Image `json:"images"`
	Dimensions struct {
		DPI    int `json:"dpi"`
		Height int `json:"height"`
		Width  int `json:"width"`
	} `json:"dimensions"`
}

// Image is an inline image reported for a page. Coordinates are page
// pixels, top-left origin. ImageBase64 may be empty, a bare base64
// string, or a data URI.
type Image struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64"`
}

// UploadResponse is returned by the file upload endpoint.
type UploadResponse struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	CreatedAt int64  `json:"created_at"`
}

// SignedURLResponse is returned by the signed retrieval endpoint.
type SignedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// box converts wire coordinates to a domain bounding box, or nil when
// the service reported no geometry.
func (i Image) box() *document.BoundingBox {
	if i.BottomRightX <= i.TopLeftX || i.BottomRightY <= i.TopLeftY {
		return nil
	}
	return &document.BoundingBox{
		TopLeftX:     i.TopLeftX,
		TopLeftY:     i.TopLeftY,
		BottomRightX: i.BottomRightX,
		BottomRightY: i.BottomRightY,
	}
}

// ToPages converts the wire response into domain pages. Page indexes
// are taken from the response when coherent; a page reported with a
// zero index out of position falls back to its slice position, so
// both sides of the extractor join agree on 0-based physical order.
func (r *Response) ToPages() []*document.Page {
	pages := make([]*document.Page, 0, len(r.Pages))
	for i, wp := range r.Pages {
		idx := wp.Index
		if idx == 0 && i != 0 {
			idx = i
		}
		page := &document.Page{
			Index:    idx,
			Markdown: wp.Markdown,
			Images:   make([]*document.ImageRef, 0, len(wp.Images)),
		}
		for _, wi := range wp.Images {
			page.Images = append(page.Images, &document.ImageRef{
				ID:        wi.ID,
				OriginRef: wi.ID,
				Box:       wi.box(),
				InlineB64: wi.ImageBase64,
			})
		}
		pages = append(pages, page)
	}
	return pages
}
