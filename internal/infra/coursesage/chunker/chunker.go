// Package chunker turns a PDF document into the ordered chunk sequence the
// rest of coursesage indexes and searches.
package chunker

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkoukk/tiktoken-go"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
	"github.com/yanqian/ai-helloworld/pkg/util"
)

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
var numberedRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.\s]+(.+)$`)

var splitSeparators = []string{". ", "! ", "? ", "; ", ", ", " ", ""}

// Chunker implements coursesage.Chunker against real PDF bytes.
type Chunker struct {
	logger *slog.Logger
	enc    *tiktoken.Tiktoken
}

// New constructs a Chunker. The tokenizer only feeds the token count in the
// debug log; size budgets count words either way, so a tokenizer load failure
// disables that count rather than failing construction.
func New(logger *slog.Logger) *Chunker {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, debug token counts disabled", "error", err)
		enc = nil
	}
	return &Chunker{logger: logger.With("component", "chunker"), enc: enc}
}

type pageMarker struct {
	offset int
	page   int
}

// rawChunk is a chunk before ordering, renumbering and hierarchy assignment.
type rawChunk struct {
	text        string
	charStart   int
	charEnd     int
	isHeader    bool
	headerLevel int
	headerText  string

	splitLevel   coursesage.SplitLevel
	originalID   int
	siblingCount int
	siblingIndex int
}

// Chunk implements coursesage.Chunker.
func (c *Chunker) Chunk(pdfBytes []byte, courseID, slideID, s3FileName string, maxWords int) ([]coursesage.Chunk, int, error) {
	if maxWords <= 0 {
		maxWords = 350
	}

	markdown, markers, totalPages, err := c.toMarkdown(pdfBytes)
	if err != nil {
		return nil, 0, err
	}
	if totalPages == 0 {
		return nil, 0, coursesage.WrapInput("pdf has zero readable pages", nil)
	}

	headerChunks := c.headerSplit(markdown)
	raws := c.applySizeGate(headerChunks, maxWords)

	sort.SliceStable(raws, func(i, j int) bool { return raws[i].charStart < raws[j].charStart })

	chunks := make([]coursesage.Chunk, len(raws))
	now := util.NowUTC()
	for i, r := range raws {
		pageStart, pageEnd := pageRangeFor(markers, r.charStart, r.charEnd, totalPages)
		chunks[i] = coursesage.Chunk{
			CourseID:             courseID,
			SlideID:              slideID,
			ChunkIndex:           i,
			Text:                 r.text,
			WordCount:            coursesage.WordCount(r.text),
			CharCount:            len(r.text),
			SplitLevel:           r.splitLevel,
			PageStart:            pageStart,
			PageEnd:              pageEnd,
			CharStartPos:         r.charStart,
			CharEndPos:           r.charEnd,
			OriginalChunkID:      r.originalID,
			SentenceSiblingCount: r.siblingCount,
			SentenceSiblingIndex: r.siblingIndex,
			IsHeader:             r.isHeader,
			HeaderLevel:          r.headerLevel,
			HeaderText:           r.headerText,
			S3FileName:           s3FileName,
			TotalPages:           totalPages,
			Timestamp:            now,
		}
	}

	assignHeaderHierarchy(chunks)

	if err := coursesage.ValidateChunks(chunks, totalPages); err != nil {
		return nil, 0, coursesage.WrapInvariant("chunk invariants violated", err)
	}
	c.logger.Debug("chunked document", "chunks", len(chunks), "pages", totalPages, "tokens", c.tokenCount(markdown))
	return chunks, totalPages, nil
}

// tokenCount estimates the document's token count for diagnostics; returns -1
// when the tokenizer failed to load.
func (c *Chunker) tokenCount(text string) int {
	if c.enc == nil {
		return -1
	}
	return len(c.enc.Encode(text, nil, nil))
}

// toMarkdown renders every page to text, prefixing detected heading lines
// with ATX markers, and records the character offset each page begins at.
func (c *Chunker) toMarkdown(pdfBytes []byte) (string, []pageMarker, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", nil, 0, coursesage.WrapInput("unreadable pdf", err)
	}

	totalPages := reader.NumPage()
	var b strings.Builder
	var markers []pageMarker

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			c.logger.Debug("page text extraction failed, skipping", "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		markers = append(markers, pageMarker{offset: b.Len(), page: i})
		for _, line := range strings.Split(text, "\n") {
			trimmed := strings.TrimRight(line, " \t")
			if level, title := detectHeading(trimmed); level > 0 {
				b.WriteString(strings.Repeat("#", level))
				b.WriteString(" ")
				b.WriteString(title)
			} else {
				b.WriteString(trimmed)
			}
			b.WriteString("\n")
		}
	}

	if b.Len() == 0 {
		return "", nil, totalPages, coursesage.WrapInput("pdf produced no extractable text", nil)
	}
	return b.String(), markers, totalPages, nil
}

func detectHeading(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return 0, ""
	}
	if m := numberedRe.FindStringSubmatch(trimmed); m != nil && len(trimmed) < 120 {
		depth := strings.Count(m[1], ".") + 1
		if depth > 6 {
			depth = 6
		}
		return depth, trimmed
	}
	if len(trimmed) < 80 && trimmed == strings.ToUpper(trimmed) && strings.ToLower(trimmed) != trimmed {
		return 1, trimmed
	}
	return 0, ""
}

// headerSplit partitions the markdown on ATX heading lines, keeping each
// heading attached to the content that follows it (§4.1 step 2).
func (c *Chunker) headerSplit(markdown string) []rawChunk {
	lines := strings.Split(markdown, "\n")
	var out []rawChunk
	offset := 0
	var bodyStart int
	var body strings.Builder
	var pendingHeader *rawChunk

	flush := func(end int) {
		if pendingHeader != nil {
			text := strings.TrimSpace(pendingHeader.headerText + "\n" + body.String())
			if body.Len() == 0 {
				text = pendingHeader.headerText
			}
			out = append(out, rawChunk{
				text: text, charStart: pendingHeader.charStart, charEnd: end,
				isHeader: true, headerLevel: pendingHeader.headerLevel, headerText: pendingHeader.headerText,
			})
			pendingHeader = nil
		} else if body.Len() > 0 {
			text := strings.TrimSpace(body.String())
			if text != "" {
				out = append(out, rawChunk{text: text, charStart: bodyStart, charEnd: end})
			}
		}
		body.Reset()
	}

	for _, line := range lines {
		lineLen := len(line) + 1
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush(offset)
			pendingHeader = &rawChunk{charStart: offset, headerLevel: len(m[1]), headerText: strings.TrimSpace(m[2])}
			bodyStart = offset + lineLen
		} else {
			if body.Len() == 0 && pendingHeader == nil {
				bodyStart = offset
			}
			body.WriteString(line)
			body.WriteString("\n")
		}
		offset += lineLen
	}
	flush(offset)
	return out
}

// applySizeGate emits markdown-level chunks within budget as-is and recursively
// splits the rest (§4.1 steps 3-4). A header whose attached content pushes it
// over budget keeps the header line itself as its own markdown chunk; only the
// content following it is recursively split.
func (c *Chunker) applySizeGate(raws []rawChunk, maxWords int) []rawChunk {
	var out []rawChunk
	nextOriginalID := 0
	for _, r := range raws {
		if coursesage.WordCount(r.text) <= maxWords {
			r.splitLevel = coursesage.SplitLevelMarkdown
			r.siblingCount = 1
			r.siblingIndex = 0
			r.originalID = nextOriginalID
			out = append(out, r)
			nextOriginalID++
			continue
		}

		if r.isHeader {
			headerEnd := r.charStart + len(r.headerText)
			out = append(out, rawChunk{
				text: r.headerText, charStart: r.charStart, charEnd: headerEnd,
				isHeader: true, headerLevel: r.headerLevel, headerText: r.headerText,
				splitLevel: coursesage.SplitLevelMarkdown, originalID: nextOriginalID,
				siblingCount: 1, siblingIndex: 0,
			})
			nextOriginalID++

			body := strings.TrimSpace(strings.TrimPrefix(r.text, r.headerText))
			if body == "" {
				continue
			}
			pieces := recursiveSplit(body, maxWords*6)
			cursor := headerEnd
			for i, piece := range pieces {
				from := cursor - headerEnd
				if from < 0 || from > len(body) {
					from = 0
				}
				start := strings.Index(body[from:], piece)
				if start < 0 {
					start = 0
				}
				absStart := cursor + start
				absEnd := absStart + len(piece)
				out = append(out, rawChunk{
					text: piece, charStart: absStart, charEnd: absEnd,
					splitLevel: coursesage.SplitLevelRecursive, originalID: nextOriginalID,
					siblingCount: len(pieces), siblingIndex: i,
				})
				cursor = absEnd
			}
			nextOriginalID++
			continue
		}

		pieces := recursiveSplit(r.text, maxWords*6)
		cursor := r.charStart
		for i, piece := range pieces {
			start := strings.Index(r.text[cursor-r.charStart:], piece)
			if start < 0 {
				start = 0
			}
			absStart := cursor + start
			absEnd := absStart + len(piece)
			out = append(out, rawChunk{
				text: piece, charStart: absStart, charEnd: absEnd,
				splitLevel: coursesage.SplitLevelRecursive, originalID: nextOriginalID,
				siblingCount: len(pieces), siblingIndex: i,
			})
			cursor = absEnd
		}
		nextOriginalID++
	}
	return out
}

// recursiveSplit partitions text into pieces within charBudget, trying
// separators in order until one yields pieces that all fit.
func recursiveSplit(text string, charBudget int) []string {
	if len(text) <= charBudget {
		return []string{text}
	}
	for _, sep := range splitSeparators {
		pieces := splitKeepingSeparator(text, sep)
		if len(pieces) <= 1 {
			continue
		}
		merged := mergeToBudget(pieces, charBudget)
		allFit := true
		for _, p := range merged {
			if len(p) > charBudget {
				allFit = false
				break
			}
		}
		if allFit || sep == "" {
			return merged
		}
	}
	return hardSplit(text, charBudget)
}

func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		return hardSplit(text, len(text)/2+1)
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			out = append(out, p+sep)
		} else if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hardSplit(text string, budget int) []string {
	if budget <= 0 {
		budget = 1
	}
	var out []string
	for len(text) > budget {
		out = append(out, text[:budget])
		text = text[budget:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// mergeToBudget greedily coalesces adjacent pieces while staying within budget.
func mergeToBudget(pieces []string, budget int) []string {
	var out []string
	var cur strings.Builder
	for _, p := range pieces {
		if cur.Len() > 0 && cur.Len()+len(p) > budget {
			out = append(out, cur.String())
			cur.Reset()
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// assignHeaderHierarchy performs the §4.1 step 7 forward pass.
func assignHeaderHierarchy(chunks []coursesage.Chunk) {
	var ancestors [7]int
	var present [7]bool
	for i := range chunks {
		c := &chunks[i]
		if c.IsHeader {
			for l := c.HeaderLevel; l <= 6; l++ {
				present[l] = false
			}
		}

		for l := 1; l <= 6; l++ {
			if present[l] {
				c.HeadersHierarchy = append(c.HeadersHierarchy, ancestors[l])
				title := fmt.Sprintf("H%d^%s", chunks[ancestors[l]].HeaderLevel, chunks[ancestors[l]].HeaderText)
				c.HeadersHierarchyTitles = append(c.HeadersHierarchyTitles, title)
			}
		}

		if c.IsHeader {
			ancestors[c.HeaderLevel] = i
			present[c.HeaderLevel] = true
		}
	}
}

// pageRangeFor locates the 1-based page range covering [start,end) using a
// binary search over page-start offsets, falling back to (1,1).
func pageRangeFor(markers []pageMarker, start, end, totalPages int) (int, int) {
	if len(markers) == 0 {
		return 1, 1
	}
	pageFor := func(offset int) int {
		lo, hi := 0, len(markers)-1
		best := markers[0].page
		for lo <= hi {
			mid := (lo + hi) / 2
			if markers[mid].offset <= offset {
				best = markers[mid].page
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
		return best
	}
	ps := pageFor(start)
	pe := pageFor(end)
	if ps < 1 {
		ps = 1
	}
	if pe < ps {
		pe = ps
	}
	if pe > totalPages {
		pe = totalPages
	}
	return ps, pe
}
