package corpus

import (
	"strings"
	"testing"
)

// reconstruct strips each chunk's overlap prefix and concatenates the
// remainder, which must reproduce the original text exactly.
func reconstruct(chunks []Document, overlap int) string {
	var sb strings.Builder
	for i, c := range chunks {
		text := []rune(c.PageContent)
		if i > 0 {
			prev := []rune(chunks[i-1].PageContent)
			strip := overlap
			if len(prev) < strip {
				strip = len(prev)
			}
			text = text[strip:]
		}
		sb.WriteString(string(text))
	}
	return sb.String()
}

func TestSplit_SingleChunkWhenSmall(t *testing.T) {
	t.Parallel()

	doc := Document{
		PageContent: "Milvus is a vector database.",
		Metadata:    Metadata{Source: MetadataSource, ID: 1, Title: "Milvus Basics", DocumentID: "d1"},
	}

	chunks := NewSplitter(2000, 200).Split(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].PageContent != doc.PageContent {
		t.Errorf("chunk content = %q, want original text", chunks[0].PageContent)
	}
	if chunks[0].Metadata != doc.Metadata {
		t.Errorf("chunk metadata = %+v, want parent metadata", chunks[0].Metadata)
	}
}

func TestSplit_ReconstructsOriginalText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
	}{
		{
			name:    "paragraphs",
			text:    strings.Repeat("Collections hold entities.\n\nEntities hold fields.\n\n", 20) + "Done.",
			size:    120,
			overlap: 20,
		},
		{
			name:    "lines only",
			text:    strings.Repeat("a line of moderate length here\n", 30),
			size:    80,
			overlap: 10,
		},
		{
			name:    "words only",
			text:    strings.Repeat("token ", 200),
			size:    50,
			overlap: 8,
		},
		{
			name:    "unsplittable run",
			text:    strings.Repeat("x", 500),
			size:    64,
			overlap: 16,
		},
		{
			name:    "multibyte runes",
			text:    strings.Repeat("向量数据库 ", 100),
			size:    40,
			overlap: 6,
		},
		{
			name:    "no overlap",
			text:    strings.Repeat("alpha beta gamma ", 40),
			size:    60,
			overlap: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSplitter(tt.size, tt.overlap)
			chunks := s.Split(Document{PageContent: tt.text, Metadata: Metadata{DocumentID: "d"}})
			if len(chunks) == 0 {
				t.Fatal("expected at least one chunk")
			}

			for i, c := range chunks {
				if n := len([]rune(c.PageContent)); n > tt.size {
					t.Errorf("chunk %d length %d exceeds max size %d", i, n, tt.size)
				}
				if c.Metadata.DocumentID != "d" {
					t.Errorf("chunk %d lost parent metadata", i)
				}
			}

			if got := reconstruct(chunks, tt.overlap); got != tt.text {
				t.Errorf("reconstructed text differs from original\ngot:  %q\nwant: %q", got, tt.text)
			}
		})
	}
}

func TestSplit_OverlapRepeatsPreviousTail(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 60)
	s := NewSplitter(50, 10)
	chunks := s.Split(Document{PageContent: text})
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].PageContent)
		want := 10
		if len(prev) < want {
			want = len(prev)
		}
		tail := string(prev[len(prev)-want:])
		if !strings.HasPrefix(chunks[i].PageContent, tail) {
			t.Errorf("chunk %d does not start with previous chunk's tail %q: %q", i, tail, chunks[i].PageContent)
		}
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	t.Parallel()

	if chunks := NewSplitter(100, 10).Split(Document{PageContent: "   \n "}); chunks != nil {
		t.Errorf("expected nil for whitespace-only document, got %d chunks", len(chunks))
	}
}

func TestNewSplitter_ClampsOverlap(t *testing.T) {
	t.Parallel()

	s := NewSplitter(100, 150)
	if s.chunkOverlap != 10 {
		t.Errorf("overlap >= size must clamp to size/10, got %d", s.chunkOverlap)
	}
}
