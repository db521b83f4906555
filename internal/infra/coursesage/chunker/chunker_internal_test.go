package chunker

import (
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestMergeToBudgetCoalescesWithinBudget(t *testing.T) {
	pieces := []string{"a. ", "b. ", "c. ", "d. "}
	merged := mergeToBudget(pieces, 6)
	for _, p := range merged {
		require.LessOrEqual(t, len(p), 6)
	}
	require.Equal(t, strings.Join(pieces, ""), strings.Join(merged, ""))
}

func TestHardSplitRespectsBudget(t *testing.T) {
	text := strings.Repeat("x", 25)
	pieces := hardSplit(text, 10)
	require.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, pieces)
}

func TestRecursiveSplitStaysWithinBudgetFallingBackToSpaceSeparator(t *testing.T) {
	text := strings.Repeat("word ", 400) // one long run-on, no punctuation
	pieces := recursiveSplit(text, 200)
	for _, p := range pieces {
		require.LessOrEqual(t, len(p), 200)
	}
	require.Equal(t, text, strings.Join(pieces, ""))
}

func TestRecursiveSplitNoopUnderBudget(t *testing.T) {
	pieces := recursiveSplit("short text.", 200)
	require.Equal(t, []string{"short text."}, pieces)
}

func TestDetectHeadingNumbered(t *testing.T) {
	level, title := detectHeading("1.2 Background")
	require.Equal(t, 2, level)
	require.Equal(t, "1.2 Background", title)
}

func TestDetectHeadingAllCapsShortLine(t *testing.T) {
	level, title := detectHeading("INTRODUCTION")
	require.Equal(t, 1, level)
	require.Equal(t, "INTRODUCTION", title)
}

func TestDetectHeadingRejectsLongOrLowercaseLines(t *testing.T) {
	level, _ := detectHeading("this is a normal sentence of body text.")
	require.Equal(t, 0, level)

	level, _ = detectHeading("")
	require.Equal(t, 0, level)
}

func TestHeaderSplitKeepsHeadingAttachedToFollowingContent(t *testing.T) {
	c := New(testLogger())
	markdown := "# Intro\nSome intro text.\n\n## Background\nBackground details here.\n"
	raws := c.headerSplit(markdown)

	require.GreaterOrEqual(t, len(raws), 2)
	var sawIntro, sawBackground bool
	for _, r := range raws {
		if r.isHeader && r.headerLevel == 1 {
			sawIntro = true
			require.Contains(t, r.text, "Intro")
			require.Contains(t, r.text, "Some intro text")
		}
		if r.isHeader && r.headerLevel == 2 {
			sawBackground = true
			require.Contains(t, r.text, "Background details")
		}
	}
	require.True(t, sawIntro)
	require.True(t, sawBackground)
}

func TestHeaderSplitHandlesHeaderWithNoFollowingContent(t *testing.T) {
	c := New(testLogger())
	raws := c.headerSplit("# Lonely Header\n# Another Header\nbody\n")
	require.Len(t, raws, 2)
	require.Equal(t, "Lonely Header", raws[0].text)
	require.True(t, raws[0].isHeader)
}

func TestApplySizeGateSplitsOversizeBodyRecursively(t *testing.T) {
	c := New(testLogger())
	longText := strings.Repeat("sentence. ", 400) // well over 350 words
	raws := []rawChunk{{text: longText, charStart: 0, charEnd: len(longText)}}

	out := c.applySizeGate(raws, 350)
	require.Greater(t, len(out), 1)
	for _, r := range out {
		require.Equal(t, coursesage.SplitLevelRecursive, r.splitLevel)
		require.LessOrEqual(t, coursesage.WordCount(r.text), 350)
	}
	// siblings share one original id and form a dense 0..k-1 index range.
	seen := map[int]bool{}
	for _, r := range out {
		seen[r.siblingIndex] = true
		require.Equal(t, len(out), r.siblingCount)
	}
	require.Len(t, seen, len(out))
}

func TestApplySizeGateKeepsHeaderAsMarkdownEvenIfTextLong(t *testing.T) {
	c := New(testLogger())
	longHeaderText := strings.Repeat("Word ", 400)
	raws := []rawChunk{{text: longHeaderText, isHeader: true, headerLevel: 1, headerText: longHeaderText, charStart: 0, charEnd: len(longHeaderText)}}

	out := c.applySizeGate(raws, 350)
	require.Len(t, out, 1)
	require.Equal(t, coursesage.SplitLevelMarkdown, out[0].splitLevel)
}

func TestApplySizeGateEmitsMarkdownLevelUnderBudget(t *testing.T) {
	c := New(testLogger())
	raws := []rawChunk{{text: "short body", charStart: 0, charEnd: 10}}
	out := c.applySizeGate(raws, 350)
	require.Len(t, out, 1)
	require.Equal(t, coursesage.SplitLevelMarkdown, out[0].splitLevel)
	require.Equal(t, 1, out[0].siblingCount)
	require.Equal(t, 0, out[0].siblingIndex)
}

func TestAssignHeaderHierarchyTracksLatestAncestorPerLevel(t *testing.T) {
	chunks := []coursesage.Chunk{
		{ChunkIndex: 0, IsHeader: true, HeaderLevel: 1, HeaderText: "Intro"},
		{ChunkIndex: 1},
		{ChunkIndex: 2, IsHeader: true, HeaderLevel: 2, HeaderText: "Background"},
		{ChunkIndex: 3},
	}
	assignHeaderHierarchy(chunks)

	require.Empty(t, chunks[0].HeadersHierarchy)
	require.Equal(t, []int{0}, chunks[1].HeadersHierarchy)
	require.Equal(t, []string{"H1^Intro"}, chunks[1].HeadersHierarchyTitles)
	require.Equal(t, []int{0}, chunks[2].HeadersHierarchy) // the header itself doesn't include its own level yet
	require.Equal(t, []int{0, 2}, chunks[3].HeadersHierarchy)
	require.Equal(t, []string{"H1^Intro", "H2^Background"}, chunks[3].HeadersHierarchyTitles)
}

func TestAssignHeaderHierarchyClearsDeeperLevelsOnNewHeader(t *testing.T) {
	chunks := []coursesage.Chunk{
		{ChunkIndex: 0, IsHeader: true, HeaderLevel: 1, HeaderText: "A"},
		{ChunkIndex: 1, IsHeader: true, HeaderLevel: 2, HeaderText: "A.1"},
		{ChunkIndex: 2, IsHeader: true, HeaderLevel: 1, HeaderText: "B"}, // new H1 should clear the stale H2
		{ChunkIndex: 3},
	}
	assignHeaderHierarchy(chunks)
	require.Equal(t, []int{2}, chunks[3].HeadersHierarchy)
	require.Equal(t, []string{"H1^B"}, chunks[3].HeadersHierarchyTitles)
}

func TestPageRangeForBinarySearch(t *testing.T) {
	markers := []pageMarker{{offset: 0, page: 1}, {offset: 100, page: 2}, {offset: 250, page: 3}}

	ps, pe := pageRangeFor(markers, 10, 50, 3)
	require.Equal(t, 1, ps)
	require.Equal(t, 1, pe)

	ps, pe = pageRangeFor(markers, 90, 260, 3)
	require.Equal(t, 1, ps)
	require.Equal(t, 3, pe)

	ps, pe = pageRangeFor(markers, 300, 400, 3)
	require.Equal(t, 3, ps)
	require.Equal(t, 3, pe)
}

func TestPageRangeForEmptyMarkersFallsBackToOne(t *testing.T) {
	ps, pe := pageRangeFor(nil, 10, 20, 5)
	require.Equal(t, 1, ps)
	require.Equal(t, 1, pe)
}

// TestFullPipelineBuildsInvariantSatisfyingChunks exercises headerSplit ->
// applySizeGate -> ordering -> hierarchy assignment the same way Chunk does,
// without going through actual PDF bytes (covered by the infra adapter, not
// unit-testable without a PDF fixture generator).
func TestFullPipelineBuildsInvariantSatisfyingChunks(t *testing.T) {
	c := New(testLogger())
	markdown := "# Intro\n" + strings.Repeat("intro word ", 10) +
		"\n## Background\n" + strings.Repeat("background word ", 500) + "\n"
	markers := []pageMarker{{offset: 0, page: 1}, {offset: len(markdown) / 2, page: 2}}

	headerChunks := c.headerSplit(markdown)
	raws := c.applySizeGate(headerChunks, 350)
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].charStart < raws[j].charStart })

	chunks := make([]coursesage.Chunk, len(raws))
	for i, r := range raws {
		pageStart, pageEnd := pageRangeFor(markers, r.charStart, r.charEnd, 2)
		chunks[i] = coursesage.Chunk{
			CourseID: "C1", SlideID: "S1", ChunkIndex: i,
			Text: r.text, WordCount: coursesage.WordCount(r.text), CharCount: len(r.text),
			SplitLevel: r.splitLevel, PageStart: pageStart, PageEnd: pageEnd,
			CharStartPos: r.charStart, CharEndPos: r.charEnd,
			OriginalChunkID: r.originalID, SentenceSiblingCount: r.siblingCount, SentenceSiblingIndex: r.siblingIndex,
			IsHeader: r.isHeader, HeaderLevel: r.headerLevel, HeaderText: r.headerText,
			S3FileName: "a.pdf", TotalPages: 2,
		}
	}
	assignHeaderHierarchy(chunks)

	require.NoError(t, coursesage.ValidateChunks(chunks, 2))
	require.Greater(t, len(chunks), 2)

	var sawRecursive bool
	for _, ch := range chunks {
		if ch.SplitLevel == coursesage.SplitLevelRecursive {
			sawRecursive = true
			require.LessOrEqual(t, ch.WordCount, 350)
		}
	}
	require.True(t, sawRecursive)
}
