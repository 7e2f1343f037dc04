package markdown

import (
	"strings"

	"github.com/pagelift/pagelift/pkg/document"
)

// HandlePrefix is the retrieval path under which persisted assets are
// served.
const HandlePrefix = "/files/"

// RetrievalPath maps an artifact handle to its retrieval identity.
func RetrievalPath(handle string) string {
	return HandlePrefix + handle
}

// Rewrite binds resolved images into a page's markdown. Patterns (in
// document order) are paired linearly with resolved refs (in
// resolution order): the same ordinal policy the resolution engine
// uses, because no shared key exists between link text and image ids.
//
// Each paired literal is replaced exactly once, and only if it is
// still present in the text, which makes the pass idempotent: a
// second run finds no original literals left to replace. Unpaired
// patterns are left untouched and counted on the page as mismatches.
func Rewrite(page *document.Page) {
	patterns := ScanPatterns(page.Markdown)

	// Only refs that actually got a persisted asset can be bound.
	bindable := make([]*document.ImageRef, 0, len(page.Images))
	for _, img := range page.Images {
		if img.Resolved() && img.Handle != "" {
			bindable = append(bindable, img)
		}
	}

	n := len(patterns)
	if len(bindable) < n {
		n = len(bindable)
	}

	text := page.Markdown
	for k := 0; k < n; k++ {
		pat := patterns[k]
		replacement := "![" + pat.Alt + "](" + RetrievalPath(bindable[k].Handle) + ")"
		if !strings.Contains(text, pat.Literal) {
			continue
		}
		text = strings.Replace(text, pat.Literal, replacement, 1)
	}
	page.Markdown = text
	page.Mismatches = len(patterns) - n
}
