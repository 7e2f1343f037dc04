package markdown

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/pagelift/pagelift/pkg/document"
)

// RenderDocument combines rewritten pages into the final markdown
// document. Linked mode keeps retrieval paths; embedded mode inlines
// each bound asset as a data URI, yielding a single portable
// artifact. Page markdown itself is not mutated.
func RenderDocument(pages []*document.Page, format document.ExportFormat) string {
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		text := page.Markdown
		if format == document.ExportEmbedded {
			text = embedAssets(text, page)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func embedAssets(text string, page *document.Page) string {
	for _, img := range page.Images {
		if img.Handle == "" || len(img.Bytes) == 0 {
			continue
		}
		link := "](" + RetrievalPath(img.Handle) + ")"
		uri := "](" + DataURI(img.MIME, img.Bytes) + ")"
		text = strings.Replace(text, link, uri, 1)
	}
	return text
}

// DataURI encodes image bytes as a data URI.
func DataURI(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// RenderHTMLPreview converts the final markdown to HTML for the
// browser view.
func RenderHTMLPreview(source string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
