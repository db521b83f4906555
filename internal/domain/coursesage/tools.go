package coursesage

import (
	"context"
	"log/slog"
	"strconv"
)

// ToolName identifies the three tool contracts exposed to the agent.
const (
	ToolRAGSearch       = "rag_search"
	ToolWebSearch       = "web_search"
	ToolRetrievePrevious = "retrieve_previous_sources"
)

// Tools bundles the agent's three tool implementations. Each returns a
// SourcePacket and never raises: failures surface as Success=false.
type Tools struct {
	retriever *Retriever
	web       WebSearch
	state     *StateManager
	logger    *slog.Logger
}

// NewTools constructs the tool bundle.
func NewTools(retriever *Retriever, web WebSearch, state *StateManager, logger *slog.Logger) *Tools {
	return &Tools{retriever: retriever, web: web, state: state, logger: logger.With("component", "tools")}
}

// Definitions returns the LLM tool bindings available for a search type.
func Definitions(searchType SearchType) []LLMTool {
	retrievePrev := LLMTool{
		Name:        ToolRetrievePrevious,
		Description: "Retrieve the full content of previously truncated tool messages by their IDs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tool_message_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"tool_message_ids"},
		},
	}
	rag := LLMTool{
		Name:        ToolRAGSearch,
		Description: "Search course material chunks by semantic similarity.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":           map[string]any{"type": "string"},
				"slides_priority": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"limit":           map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
	web := LLMTool{
		Name:        ToolWebSearch,
		Description: "Search the public web for supplementary information.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string"},
				"max_results": map[string]any{"type": "integer"},
			},
			"required": []string{"query"},
		},
	}
	switch searchType {
	case SearchRAG:
		return []LLMTool{rag, retrievePrev}
	case SearchWeb:
		return []LLMTool{web, retrievePrev}
	case SearchRAGWeb:
		return []LLMTool{rag, web, retrievePrev}
	default:
		return []LLMTool{retrievePrev}
	}
}

// RAGSearch runs the rag_search tool contract (§4.6), returning temporary
// "1".."limit" IDs the tool-node will renumber.
func (t *Tools) RAGSearch(ctx context.Context, courseID, query string, slidesPriority []string, limit int) SourcePacket {
	if limit <= 0 {
		limit = 10
	}
	matches, err := t.retriever.Retrieve(ctx, RetrieveRequest{CourseID: courseID, Slides: slidesPriority, QueryText: query, Limit: limit})
	if err != nil {
		t.logger.Warn("rag_search failed", "error", err)
		return SourcePacket{ToolName: ToolRAGSearch, Success: false, Error: err.Error()}
	}
	results := make([]Source, len(matches))
	for i, m := range matches {
		results[i] = Source{
			ID: strconv.Itoa(i + 1), Kind: "rag", Score: m.Score,
			Slide: m.Metadata.SlideID, S3File: m.Metadata.S3FileName,
			Start: m.Metadata.PageStart, End: m.Metadata.PageEnd, Text: m.Metadata.Text,
		}
	}
	return SourcePacket{ToolName: ToolRAGSearch, Success: true, Results: results}
}

// WebSearch runs the web_search tool contract.
func (t *Tools) WebSearch(ctx context.Context, query string, maxResults int) SourcePacket {
	if maxResults <= 0 {
		maxResults = 5
	}
	if t.web == nil {
		return SourcePacket{ToolName: ToolWebSearch, Success: false, Error: "web search collaborator not configured"}
	}
	hits, err := t.web.Search(ctx, query, maxResults)
	if err != nil {
		t.logger.Warn("web_search failed", "error", err)
		return SourcePacket{ToolName: ToolWebSearch, Success: false, Error: err.Error()}
	}
	results := make([]Source, len(hits))
	for i, h := range hits {
		results[i] = Source{ID: strconv.Itoa(i + 1), Kind: "web", Score: h.Score, Title: h.Title, URL: h.URL, Text: h.Content}
	}
	return SourcePacket{ToolName: ToolWebSearch, Success: true, Results: results}
}

// RetrievePreviousSources runs the retrieve_previous_sources tool contract:
// a State Manager read, never a new round-trip to an external provider.
func (t *Tools) RetrievePreviousSources(ctx context.Context, userID, courseID string, toolMessageIDs []string) SourcePacket {
	messages, err := t.state.GetToolMessages(ctx, userID, courseID, toolMessageIDs)
	if err != nil {
		return SourcePacket{ToolName: ToolRetrievePrevious, Success: false, Error: err.Error()}
	}
	var results []Source
	for _, id := range toolMessageIDs {
		msg, ok := messages[id]
		if !ok {
			continue
		}
		packet, err := ParseToolContent(msg.Content)
		if err != nil {
			continue
		}
		for _, s := range packet.Results {
			s.FromToolMessage = id
			results = append(results, s)
		}
	}
	return SourcePacket{ToolName: ToolRetrievePrevious, Success: true, Results: results}
}
