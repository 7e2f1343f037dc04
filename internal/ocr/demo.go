package ocr

import (
	"fmt"
)

// demoImageID doubles as the markdown reference on the demo page, the
// same way the real service tags inline images.
const demoImageID = "img-0.png"

// demoImageB64 is a 1x1 PNG, 67 bytes decoded, so it passes the
// resolution engine's corruption threshold.
const demoImageB64 = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNk+A8AAQUBAScY42YAAAAASUVORK5CYII="

// DemoResponse builds the deterministic degraded-mode result: a fixed
// two-page structure with one synthetic inline image on the first
// page. Returned instead of failing when the OCR service rejects
// authentication, so demo deployments never observe an auth error.
func DemoResponse(ref string) *Response {
	page0 := Page{
		Index: 0,
		Markdown: fmt.Sprintf(`# Demo OCR Result

This text was generated locally instead of a real OCR run.

## Document
%s

![%s](%s)
`, ref, demoImageID, demoImageID),
		Images: []Image{
			{
				ID:           demoImageID,
				TopLeftX:     0,
				TopLeftY:     0,
				BottomRightX: 1,
				BottomRightY: 1,
				ImageBase64:  demoImageB64,
			},
		},
	}

	page1 := Page{
		Index: 1,
		Markdown: `## Note

A valid API key with OCR access is required for real recognition.
Set MISTRAL_API_KEY to leave demo mode.
`,
	}

	resp := &Response{
		Pages:       []Page{page0, page1},
		Model:       "pagelift-demo",
		DocumentURL: ref,
	}
	resp.UsageInfo.PagesProcessed = 2
	return resp
}
