package coursesage

import (
	"fmt"
	"strings"
	"time"
)

// SplitLevel records which stage of the chunker produced a chunk.
type SplitLevel string

const (
	SplitLevelMarkdown  SplitLevel = "markdown"
	SplitLevelRecursive SplitLevel = "recursive"
)

// Chunk is the atomic indexed unit of a course document. Identity is the
// triple (CourseID, SlideID, ChunkIndex); ID is its stable stringified form.
type Chunk struct {
	CourseID   string
	SlideID    string
	ChunkIndex int

	Text       string
	WordCount  int
	CharCount  int
	SplitLevel SplitLevel

	PageStart int
	PageEnd   int

	HeadersHierarchy       []int
	HeadersHierarchyTitles []string

	CharStartPos int
	CharEndPos   int

	OriginalChunkID      int
	SentenceSiblingCount int
	SentenceSiblingIndex int

	IsHeader    bool
	HeaderLevel int
	HeaderText  string

	Embedding []float32

	S3FileName string
	TotalPages int
	Timestamp  time.Time
}

// ID returns the chunk's stable stringified identity.
func (c Chunk) ID() string {
	return ChunkID(c.CourseID, c.SlideID, c.ChunkIndex)
}

// ChunkID builds the stable stringified identity for a chunk triple.
func ChunkID(courseID, slideID string, chunkIndex int) string {
	return fmt.Sprintf("%s:%s:%d", courseID, slideID, chunkIndex)
}

// ValidateChunks enforces the §3 invariants over a built chunk sequence. It
// is called once by the chunker after assembly and never by callers that
// merely read already-persisted chunks.
func ValidateChunks(chunks []Chunk, totalPages int) error {
	for i, c := range chunks {
		if c.ChunkIndex != i {
			return fmt.Errorf("%w: chunk at position %d has chunk_index %d, expected %d", ErrInvariant, i, c.ChunkIndex, i)
		}
		if c.PageStart < 1 || c.PageStart > c.PageEnd || c.PageEnd > totalPages {
			return fmt.Errorf("%w: chunk %d has invalid page range [%d,%d] for %d pages", ErrInvariant, c.ChunkIndex, c.PageStart, c.PageEnd, totalPages)
		}
	}

	if err := validateSiblingContiguity(chunks); err != nil {
		return err
	}
	return validateHeaderHierarchy(chunks)
}

func validateSiblingContiguity(chunks []Chunk) error {
	type span struct {
		start, end int
		count      int
		seen       map[int]bool
	}
	spans := map[int]*span{}
	order := []int{}
	for _, c := range chunks {
		s, ok := spans[c.OriginalChunkID]
		if !ok {
			s = &span{start: c.ChunkIndex, end: c.ChunkIndex, count: c.SentenceSiblingCount, seen: map[int]bool{}}
			spans[c.OriginalChunkID] = s
			order = append(order, c.OriginalChunkID)
		}
		if c.ChunkIndex < s.start {
			s.start = c.ChunkIndex
		}
		if c.ChunkIndex > s.end {
			s.end = c.ChunkIndex
		}
		if s.seen[c.SentenceSiblingIndex] {
			return fmt.Errorf("%w: original_chunk_id %d has duplicate sibling index %d", ErrInvariant, c.OriginalChunkID, c.SentenceSiblingIndex)
		}
		s.seen[c.SentenceSiblingIndex] = true
	}
	for _, id := range order {
		s := spans[id]
		if s.end-s.start+1 != s.count || len(s.seen) != s.count {
			return fmt.Errorf("%w: original_chunk_id %d siblings are not contiguous (span %d..%d, count %d)", ErrInvariant, id, s.start, s.end, s.count)
		}
		for k := 0; k < s.count; k++ {
			if !s.seen[k] {
				return fmt.Errorf("%w: original_chunk_id %d missing sibling index %d", ErrInvariant, id, k)
			}
		}
	}
	return nil
}

func validateHeaderHierarchy(chunks []Chunk) error {
	for _, c := range chunks {
		if len(c.HeadersHierarchy) != len(c.HeadersHierarchyTitles) {
			return fmt.Errorf("%w: chunk %d has mismatched header hierarchy lengths", ErrInvariant, c.ChunkIndex)
		}
		lastLevel := 0
		for i, ref := range c.HeadersHierarchy {
			if ref < 0 || ref >= c.ChunkIndex {
				return fmt.Errorf("%w: chunk %d header ref %d is not a strict ancestor", ErrInvariant, c.ChunkIndex, ref)
			}
			ancestor := chunks[ref]
			if !ancestor.IsHeader {
				return fmt.Errorf("%w: chunk %d header ref %d is not a header", ErrInvariant, c.ChunkIndex, ref)
			}
			if ancestor.HeaderLevel <= lastLevel {
				return fmt.Errorf("%w: chunk %d header hierarchy levels are not strictly increasing", ErrInvariant, c.ChunkIndex)
			}
			lastLevel = ancestor.HeaderLevel
			title := fmt.Sprintf("H%d^%s", ancestor.HeaderLevel, ancestor.HeaderText)
			if c.HeadersHierarchyTitles[i] != title {
				return fmt.Errorf("%w: chunk %d header title %q does not match ancestor %q", ErrInvariant, c.ChunkIndex, c.HeadersHierarchyTitles[i], title)
			}
		}
	}
	return nil
}

// WordCount counts whitespace-separated words, matching the chunker's size gate.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
