// Package vectorstore adapts Qdrant to the coursesage VectorStore contract
// (§4.2, §4.3), giving the retriever a true pre-filter-then-ANN query path.
package vectorstore

import (
	"context"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Qdrant implements coursesage.VectorStore.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// New constructs a Qdrant adapter. It does not create the collection; that
// is an out-of-band operational step (see DESIGN.md).
func New(client *qdrant.Client, collection string, logger *slog.Logger) *Qdrant {
	return &Qdrant{client: client, collection: collection, logger: logger.With("component", "vectorstore", "backend", "qdrant")}
}

// Dial opens a Qdrant client connection.
func Dial(host string, port int, apiKey string, useTLS bool) (*qdrant.Client, error) {
	return qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
}

// Upsert implements coursesage.VectorStore. Duplicate point IDs overwrite
// rather than error under Qdrant's point semantics, so they are reported as
// Duplicates when the ID was already present in the batch's own write set —
// true collection-wide duplicate detection would require a pre-read, which
// the §4.2 contract does not ask for.
func (q *Qdrant) Upsert(ctx context.Context, chunks []coursesage.Chunk) (coursesage.UpsertResult, error) {
	var result coursesage.UpsertResult
	if len(chunks) == 0 {
		return result, nil
	}

	seen := map[string]bool{}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		id := c.ID()
		if seen[id] {
			result.Duplicates++
			continue
		}
		seen[id] = true
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: chunkPayload(c),
		})
	}

	waitUpsert := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           &waitUpsert,
	})
	if err != nil {
		return result, coursesage.WrapTransient("qdrant upsert failed", err)
	}
	result.Inserted = len(points)
	return result, nil
}

// Search implements coursesage.VectorStore: metadata pre-filter applied
// before ANN similarity, bounded by numCandidates (§4.3).
func (q *Qdrant) Search(ctx context.Context, query []float32, filter coursesage.VectorFilter, numCandidates, limit int) ([]coursesage.VectorMatch, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("course_id", filter.CourseID),
	}
	if len(filter.SlideIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("slide_id", filter.SlideIDs...))
	}
	if len(filter.ChunkIndices) > 0 {
		ints := make([]int64, len(filter.ChunkIndices))
		for i, v := range filter.ChunkIndices {
			ints[i] = int64(v)
		}
		must = append(must, qdrant.NewMatchInts("chunk_index", ints...))
	}

	lim := uint64(limit)
	candidates := uint64(numCandidates)
	withPayload := true
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &lim,
		Params:         &qdrant.SearchParams{HnswEf: &candidates},
		WithPayload:    qdrant.NewWithPayload(withPayload),
	})
	if err != nil {
		return nil, coursesage.WrapTransient("qdrant search failed", err)
	}

	matches := make([]coursesage.VectorMatch, len(resp))
	for i, p := range resp {
		matches[i] = coursesage.VectorMatch{
			ID:       p.Id.GetUuid(),
			Score:    float64(p.Score),
			Metadata: payloadToChunk(p.Payload),
		}
	}
	return matches, nil
}

// Count implements coursesage.VectorStore.
func (q *Qdrant) Count(ctx context.Context, courseID, slideID, s3FileName string) (int, error) {
	exact := true
	resp, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: exactMatchFilter(courseID, slideID, s3FileName)},
		Exact:          &exact,
	})
	if err != nil {
		return 0, coursesage.WrapTransient("qdrant count failed", err)
	}
	return int(resp), nil
}

// Delete implements coursesage.VectorStore (§4.7): a single bulk delete
// matching the exact (course, slide, file) triple.
func (q *Qdrant) Delete(ctx context.Context, courseID, slideID, s3FileName string) (int, error) {
	before, err := q.Count(ctx, courseID, slideID, s3FileName)
	if err != nil {
		return 0, err
	}
	if before == 0 {
		return 0, nil
	}
	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Must: exactMatchFilter(courseID, slideID, s3FileName)},
			},
		},
	})
	if err != nil {
		return 0, coursesage.WrapTransient("qdrant delete failed", err)
	}
	return before, nil
}

func exactMatchFilter(courseID, slideID, s3FileName string) []*qdrant.Condition {
	return []*qdrant.Condition{
		qdrant.NewMatch("course_id", courseID),
		qdrant.NewMatch("slide_id", slideID),
		qdrant.NewMatch("s3_file_name", s3FileName),
	}
}

func chunkPayload(c coursesage.Chunk) map[string]*qdrant.Value {
	hierarchy := make([]*qdrant.Value, len(c.HeadersHierarchy))
	for i, h := range c.HeadersHierarchy {
		hierarchy[i] = qdrant.NewValueInt(int64(h))
	}
	titles := make([]*qdrant.Value, len(c.HeadersHierarchyTitles))
	for i, t := range c.HeadersHierarchyTitles {
		titles[i] = qdrant.NewValueString(t)
	}
	return map[string]*qdrant.Value{
		"course_id":                qdrant.NewValueString(c.CourseID),
		"slide_id":                 qdrant.NewValueString(c.SlideID),
		"chunk_index":              qdrant.NewValueInt(int64(c.ChunkIndex)),
		"text":                     qdrant.NewValueString(c.Text),
		"word_count":               qdrant.NewValueInt(int64(c.WordCount)),
		"char_count":               qdrant.NewValueInt(int64(c.CharCount)),
		"split_level":              qdrant.NewValueString(string(c.SplitLevel)),
		"page_start":               qdrant.NewValueInt(int64(c.PageStart)),
		"page_end":                 qdrant.NewValueInt(int64(c.PageEnd)),
		"headers_hierarchy":        qdrant.NewValueList(hierarchy),
		"headers_hierarchy_titles": qdrant.NewValueList(titles),
		"original_chunk_id":        qdrant.NewValueInt(int64(c.OriginalChunkID)),
		"sentence_sibling_count":   qdrant.NewValueInt(int64(c.SentenceSiblingCount)),
		"sentence_sibling_index":   qdrant.NewValueInt(int64(c.SentenceSiblingIndex)),
		"is_header":                qdrant.NewValueBool(c.IsHeader),
		"header_level":             qdrant.NewValueInt(int64(c.HeaderLevel)),
		"header_text":              qdrant.NewValueString(c.HeaderText),
		"s3_file_name":             qdrant.NewValueString(c.S3FileName),
		"total_pages":              qdrant.NewValueInt(int64(c.TotalPages)),
	}
}

func payloadToChunk(payload map[string]*qdrant.Value) coursesage.Chunk {
	get := func(key string) *qdrant.Value { return payload[key] }
	str := func(key string) string {
		if v := get(key); v != nil {
			return v.GetStringValue()
		}
		return ""
	}
	i64 := func(key string) int {
		if v := get(key); v != nil {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	b := func(key string) bool {
		if v := get(key); v != nil {
			return v.GetBoolValue()
		}
		return false
	}

	var hierarchy []int
	var titles []string
	if v := get("headers_hierarchy"); v != nil {
		for _, item := range v.GetListValue().GetValues() {
			hierarchy = append(hierarchy, int(item.GetIntegerValue()))
		}
	}
	if v := get("headers_hierarchy_titles"); v != nil {
		for _, item := range v.GetListValue().GetValues() {
			titles = append(titles, item.GetStringValue())
		}
	}

	return coursesage.Chunk{
		CourseID:               str("course_id"),
		SlideID:                str("slide_id"),
		ChunkIndex:             i64("chunk_index"),
		Text:                   str("text"),
		WordCount:              i64("word_count"),
		CharCount:              i64("char_count"),
		SplitLevel:             coursesage.SplitLevel(str("split_level")),
		PageStart:              i64("page_start"),
		PageEnd:                i64("page_end"),
		HeadersHierarchy:       hierarchy,
		HeadersHierarchyTitles: titles,
		OriginalChunkID:        i64("original_chunk_id"),
		SentenceSiblingCount:   i64("sentence_sibling_count"),
		SentenceSiblingIndex:   i64("sentence_sibling_index"),
		IsHeader:               b("is_header"),
		HeaderLevel:            i64("header_level"),
		HeaderText:             str("header_text"),
		S3FileName:             str("s3_file_name"),
		TotalPages:             i64("total_pages"),
	}
}
