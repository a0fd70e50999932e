package corpus

import "strings"

// defaultSeparators is the priority-ordered list of split points for the
// recursive splitter. The empty string is the last resort: raw fixed-width
// rune windows.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits documents into overlapping chunks bounded by a maximum
// size. Splitting is deterministic: it tries each separator in priority
// order, keeps separators attached to the preceding piece so the base
// segments partition the original text exactly, and recurses into oversized
// pieces with the remaining separators.
type Splitter struct {
	// chunkSize is the maximum chunk length in runes.
	chunkSize int
	// chunkOverlap is the number of trailing runes of each chunk repeated
	// at the start of the next chunk.
	chunkOverlap int
	// separators is the priority-ordered list of split separators.
	separators []string
}

// NewSplitter constructs a Splitter. size defaults to 2000 and overlap to
// 200 when zero; an overlap >= size is clamped to size/10 so the merge
// budget stays positive.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 2000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Splitter{
		chunkSize:    size,
		chunkOverlap: overlap,
		separators:   defaultSeparators,
	}
}

// Split divides a document into chunks no longer than the configured maximum
// size. Every chunk after the first starts with the trailing overlap runes
// of the previous chunk; each chunk copies the parent's full metadata.
// Stripping those overlap prefixes and concatenating the chunks reconstructs
// the original text.
func (s *Splitter) Split(doc Document) []Document {
	if strings.TrimSpace(doc.PageContent) == "" {
		return nil
	}

	// Segments are merged up to chunkSize-chunkOverlap so that prepending
	// the overlap prefix never pushes a chunk past chunkSize.
	width := s.chunkSize - s.chunkOverlap
	segments := segment(doc.PageContent, s.separators, width)

	chunks := make([]Document, 0, len(segments))
	var prev []rune
	for _, seg := range segments {
		text := seg
		if prev != nil && s.chunkOverlap > 0 {
			tail := prev
			if len(tail) > s.chunkOverlap {
				tail = tail[len(tail)-s.chunkOverlap:]
			}
			text = string(tail) + seg
		}
		chunks = append(chunks, Document{PageContent: text, Metadata: doc.Metadata})
		prev = []rune(text)
	}
	return chunks
}

// segment recursively partitions text into pieces of at most width runes.
// The concatenation of the returned pieces equals text exactly.
func segment(text string, separators []string, width int) []string {
	if runeLen(text) <= width {
		return []string{text}
	}

	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return windows(text, width)
	}

	var out []string
	var pending strings.Builder
	flush := func() {
		if pending.Len() > 0 {
			out = append(out, pending.String())
			pending.Reset()
		}
	}

	// SplitAfter keeps the separator attached to the preceding piece, so
	// joining the pieces back together is lossless.
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		n := runeLen(piece)
		if n > width {
			flush()
			out = append(out, segment(piece, rest, width)...)
			continue
		}
		if runeLen(pending.String())+n > width {
			flush()
		}
		pending.WriteString(piece)
	}
	flush()
	return out
}

// windows slices text into consecutive fixed-width rune windows. This is the
// fallback for a single unsplittable run longer than the chunk budget.
func windows(text string, width int) []string {
	runes := []rune(text)
	out := make([]string, 0, (len(runes)+width-1)/width)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// runeLen returns the length of s in runes.
func runeLen(s string) int {
	return len([]rune(s))
}
