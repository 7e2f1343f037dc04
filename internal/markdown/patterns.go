package markdown

import (
	"path"
	"regexp"
	"strings"
)

// Pattern is a located image link inside a page's markdown:
// ![alt](ref) with a raster-extension ref. Transient; computed per
// rewrite pass, never persisted.
type Pattern struct {
	Alt     string
	Ref     string
	Literal string
	Start   int
	End     int
}

var imageLinkRe = regexp.MustCompile(`!\[([^\]\n]*)\]\(([^)\s]+)\)`)

// rasterExts are the reference extensions treated as image links. A
// ref without one of these (data URIs, anchors, URLs to pages) is not
// an image slot.
var rasterExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// ScanPatterns finds image links in left-to-right order, carrying
// their byte ranges in the source text.
func ScanPatterns(markdown string) []Pattern {
	matches := imageLinkRe.FindAllStringSubmatchIndex(markdown, -1)
	patterns := make([]Pattern, 0, len(matches))
	for _, m := range matches {
		ref := markdown[m[4]:m[5]]
		if !HasRasterExt(ref) {
			continue
		}
		patterns = append(patterns, Pattern{
			Alt:     markdown[m[2]:m[3]],
			Ref:     ref,
			Literal: markdown[m[0]:m[1]],
			Start:   m[0],
			End:     m[1],
		})
	}
	return patterns
}

// HasRasterExt reports whether ref ends in a known raster image
// extension.
func HasRasterExt(ref string) bool {
	if strings.HasPrefix(ref, "data:") {
		return false
	}
	return rasterExts[strings.ToLower(path.Ext(ref))]
}
