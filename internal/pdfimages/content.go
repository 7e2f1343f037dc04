package pdfimages

import (
	"strconv"

	"github.com/pagelift/pagelift/pkg/document"
)

// Placement records where a named XObject was drawn: the current
// transformation matrix at its Do operator. Placements appear in draw
// order, which defines the extractor's within-page ordering.
type Placement struct {
	Name string
	CTM  Matrix
}

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

// IdentityMatrix returns the identity transform.
func IdentityMatrix() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Mult returns a * b in PDF row-vector convention.
func (a Matrix) Mult(b Matrix) Matrix {
	return Matrix{
		a[0]*b[0] + a[1]*b[2],
		a[0]*b[1] + a[1]*b[3],
		a[2]*b[0] + a[3]*b[2],
		a[2]*b[1] + a[3]*b[3],
		a[4]*b[0] + a[5]*b[2] + b[4],
		a[4]*b[1] + a[5]*b[3] + b[5],
	}
}

// apply transforms the point (x, y).
func (m Matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// PixelBox converts the placement's unit-square image footprint into
// a page-pixel bounding box, top-left origin, assuming the page's
// point space maps 1:1 onto pixels. Best-effort; nil when degenerate.
func (p Placement) PixelBox(geom geometry) *document.BoundingBox {
	x0, y0 := p.CTM.apply(0, 0)
	x1, y1 := p.CTM.apply(1, 1)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	if x1-x0 < 1 || y1-y0 < 1 {
		return nil
	}
	// Flip from PDF bottom-left origin to pixel top-left origin.
	return &document.BoundingBox{
		TopLeftX:     int(x0),
		TopLeftY:     int(geom.Height - y1),
		BottomRightX: int(x1),
		BottomRightY: int(geom.Height - y0),
	}
}

// ScanPlacements walks a content stream for the operators that affect
// image placement: q/Q (graphics state stack), cm (matrix concat) and
// Do (XObject draw). Inline image data (BI..EI) is skipped wholesale.
// The scan is tolerant: unknown operators just clear the operand
// stack.
func ScanPlacements(content []byte) []Placement {
	var placements []Placement

	ctm := IdentityMatrix()
	stack := []Matrix{}
	var operands []token

	tokens := tokenize(content)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind != tokOperator {
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "q":
			stack = append(stack, ctm)
		case "Q":
			if n := len(stack); n > 0 {
				ctm = stack[n-1]
				stack = stack[:n-1]
			}
		case "cm":
			if m, ok := matrixFromOperands(operands); ok {
				ctm = m.Mult(ctm)
			}
		case "Do":
			if n := len(operands); n > 0 && operands[n-1].kind == tokName {
				placements = append(placements, Placement{Name: operands[n-1].text, CTM: ctm})
			}
		case "BI":
			// Skip inline image payload up to EI.
			for i < len(tokens) && !(tokens[i].kind == tokOperator && tokens[i].text == "EI") {
				i++
			}
		}
		operands = operands[:0]
	}
	return placements
}

func matrixFromOperands(operands []token) (Matrix, bool) {
	if len(operands) < 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i := 0; i < 6; i++ {
		tok := operands[len(operands)-6+i]
		if tok.kind != tokNumber {
			return Matrix{}, false
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return Matrix{}, false
		}
		m[i] = f
	}
	return m, true
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokName
	tokOperator
	tokOther
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits a content stream into the token classes the
// placement scan cares about. Strings, hex strings and dictionaries
// are consumed and discarded.
func tokenize(content []byte) []token {
	var tokens []token
	i := 0
	n := len(content)

	for i < n {
		c := content[i]
		switch {
		case isSpace(c):
			i++
		case c == '%': // comment to end of line
			for i < n && content[i] != '\n' {
				i++
			}
		case c == '(':
			i = skipString(content, i)
		case c == '<':
			if i+1 < n && content[i+1] == '<' {
				i = skipDict(content, i)
			} else {
				for i < n && content[i] != '>' {
					i++
				}
				i++
			}
		case c == '[' || c == ']' || c == '{' || c == '}':
			i++
		case c == '/':
			start := i + 1
			i++
			for i < n && !isDelim(content[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokName, text: string(content[start:i])})
		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < n && (content[i] == '.' || (content[i] >= '0' && content[i] <= '9')) {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: string(content[start:i])})
		default:
			start := i
			for i < n && !isDelim(content[i]) {
				i++
			}
			if i > start {
				tokens = append(tokens, token{kind: tokOperator, text: string(content[start:i])})
			} else {
				i++
			}
		}
	}
	return tokens
}

func skipString(content []byte, i int) int {
	depth := 0
	for ; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

func skipDict(content []byte, i int) int {
	depth := 0
	for i < len(content)-1 {
		if content[i] == '<' && content[i+1] == '<' {
			depth++
			i += 2
			continue
		}
		if content[i] == '>' && content[i+1] == '>' {
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return len(content)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return isSpace(c) || c == '/' || c == '(' || c == ')' || c == '<' || c == '>' ||
		c == '[' || c == ']' || c == '{' || c == '}' || c == '%'
}
