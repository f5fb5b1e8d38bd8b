package splitter

import "unicode"

// snapWindow is how far back from the hard cut point a chunk boundary
// may move to land on whitespace.
const snapWindow = 100

// Piece is one slice of a document. Start is the rune offset of the
// piece within the source text, so consecutive pieces can be stitched
// back together losslessly.
type Piece struct {
	Text  string
	Start int
}

// Splitter cuts text into fixed-size overlapping windows. Boundaries
// prefer whitespace within snapWindow runes of the hard cut point.
type Splitter struct {
	Size    int
	Overlap int
}

// New returns a splitter with the given window size and overlap.
// Overlap is forced below size so the window always advances.
func New(size, overlap int) *Splitter {
	if size < 1 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// Split cuts text into pieces. Every rune of the input appears in at
// least one piece, and consecutive pieces overlap by at least one rune
// unless overlap is zero, so Reconstruct(Split(text)) == text.
func (s *Splitter) Split(text string) []Piece {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.Size {
		return []Piece{{Text: text, Start: 0}}
	}

	var pieces []Piece
	start := 0
	for {
		end := start + s.Size
		if end >= len(runes) {
			pieces = append(pieces, Piece{Text: string(runes[start:]), Start: start})
			break
		}

		cut := snapToWhitespace(runes, start, end)
		pieces = append(pieces, Piece{Text: string(runes[start:cut]), Start: start})

		next := cut - s.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return pieces
}

// snapToWhitespace moves the cut point back to just after the last
// whitespace rune in (end-snapWindow, end), when one exists far enough
// past start to keep the window advancing.
func snapToWhitespace(runes []rune, start, end int) int {
	low := end - snapWindow
	if low <= start {
		low = start + 1
	}
	for i := end - 1; i > low; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

// Reconstruct reassembles the original text from pieces produced by
// Split, dropping the overlapped prefix of each piece.
func Reconstruct(pieces []Piece) string {
	var out []rune
	covered := 0
	for _, p := range pieces {
		r := []rune(p.Text)
		skip := covered - p.Start
		if skip < 0 {
			skip = 0
		}
		if skip >= len(r) {
			continue
		}
		out = append(out, r[skip:]...)
		if end := p.Start + len(r); end > covered {
			covered = end
		}
	}
	return string(out)
}
