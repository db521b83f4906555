package coursesage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func newAgentTestGraph(t *testing.T, llm *fakeLLM, web *fakeWebSearch, numRAGChunks int) (*AgentGraph, *StateManager) {
	t.Helper()
	store := newFakeVectorStore()
	for i := 0; i < numRAGChunks; i++ {
		store.points[ChunkID("C1", "S1", i)] = seedChunk("C1", "S1", i)
	}
	retriever := NewRetriever(&fakeEmbedder{}, store, 0, testLogger())
	sm := NewStateManager(newFakePrimaryStore(), newFakeCache(), testLogger())
	tools := NewTools(retriever, web, sm, testLogger())
	return NewAgentGraph(llm, tools, testLogger()), sm
}

func toolCall(id, name string, args map[string]any) ToolCall {
	raw, _ := json.Marshal(args)
	return ToolCall{ID: id, Name: name, Arguments: string(raw)}
}

func TestAgentRAGCitationSourceNumberingIsGaplessPrefix(t *testing.T) {
	graph, _ := newAgentTestGraph(t, nil, nil, 5)
	llm := &fakeLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{
			toolCall("t1", ToolRAGSearch, map[string]any{"query": "a", "limit": 3}),
			toolCall("t2", ToolRAGSearch, map[string]any{"query": "b", "limit": 2}),
		}},
		{Content: "A monopoly is a market with a single seller. [^1][^4]"},
	}}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "What is a monopoly?"}},
		CourseID:   "C1",
		SearchType: SearchRAG,
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, result.RAGSources, 5)
	ids := make([]string, len(result.RAGSources))
	for i, s := range result.RAGSources {
		ids[i] = s.ID
	}
	require.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, ids)
	require.Contains(t, result.ResponseText, "[^1]")
}

func TestAgentDefaultSearchTypeRejectsRAGAndWebTools(t *testing.T) {
	graph, _ := newAgentTestGraph(t, nil, nil, 3)
	llm := &fakeLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{toolCall("t1", ToolRAGSearch, map[string]any{"query": "a"})}},
		{Content: "no sources available"},
	}}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "hi"}},
		CourseID:   "C1",
		SearchType: SearchDefault,
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.Empty(t, result.RAGSources)

	// the rejected tool call's message must still be recorded (tool messages
	// are never dropped, only their success flag reflects the rejection).
	var sawRejection bool
	for _, m := range result.NewMessages {
		if m.Role == RoleTool {
			packet, err := ParseToolContent(m.Content)
			require.NoError(t, err)
			if !packet.Success {
				sawRejection = true
			}
		}
	}
	require.True(t, sawRejection)
}

func TestAgentRecursionCapProducesWellFormedResponse(t *testing.T) {
	graph, _ := newAgentTestGraph(t, nil, nil, 1)
	// Always return a tool call, never terminating on its own.
	loopForever := LLMResponse{ToolCalls: []ToolCall{toolCall("t", ToolRetrievePrevious, map[string]any{"tool_message_ids": []string{}})}}
	llm := &fakeLLM{responses: []LLMResponse{loopForever}}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "hi"}},
		CourseID:   "C1",
		SearchType: SearchDefault,
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.LessOrEqual(t, state.visits, recursionLimit+1)
	require.NotEmpty(t, result.ResponseText)
}

func TestAgentSnapshotSynthesizesImageSource(t *testing.T) {
	graph, _ := newAgentTestGraph(t, nil, nil, 0)
	llm := &fakeLLM{responses: []LLMResponse{{Content: "the page shows a diagram [^Page]"}}}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "what's this?"}},
		CourseID:   "C1",
		SearchType: SearchDefault,
		Snapshot:   &Snapshot{SlideID: "S1", PageNumber: 4, S3Key: "img/p4.png"},
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, result.ImageSources, 1)
	require.Equal(t, "S1", result.ImageSources[0].SlideID)
	require.Equal(t, 4, result.ImageSources[0].PageNumber)
	require.NotEmpty(t, result.ImageSources[0].MessageID)
	require.False(t, result.ImageSources[0].Timestamp.IsZero())
}

func TestAgentToolFailureSurfacesWithoutAbortingRun(t *testing.T) {
	web := &fakeWebSearch{err: WrapFatalExternal("provider down", nil)}
	graph, _ := newAgentTestGraph(t, nil, web, 0)
	llm := &fakeLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{toolCall("t1", ToolWebSearch, map[string]any{"query": "x"})}},
		{Content: "I couldn't find anything external."},
	}}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "search the web"}},
		CourseID:   "C1",
		SearchType: SearchWeb,
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.Empty(t, result.WebSources)
	require.Equal(t, "I couldn't find anything external.", result.ResponseText)
}

func TestAgentLLMFailureAbortsWithFallbackMessage(t *testing.T) {
	graph, _ := newAgentTestGraph(t, nil, nil, 0)
	llm := &fakeLLM{err: WrapFatalExternal("auth failed", nil)}
	graph.llm = llm

	state := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "hi"}},
		CourseID:   "C1",
		SearchType: SearchDefault,
	}
	result, err := graph.Run(context.Background(), state)
	require.NoError(t, err)
	require.Contains(t, result.ResponseText, "error")
	require.Empty(t, result.RAGSources)
	require.Empty(t, result.WebSources)
}

func TestAgentPreviousSourceRetrievalAnnotatesOrigin(t *testing.T) {
	graph, sm := newAgentTestGraph(t, nil, nil, 3)

	// Turn 1: rag_search under assistant A1, persisted via the state manager.
	turn1 := &fakeLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{toolCall("t1", ToolRAGSearch, map[string]any{"query": "a", "limit": 3})}},
		{Content: "here is what I found [^1][^2][^3]"},
	}}
	graph.llm = turn1
	state1 := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "turn one"}},
		CourseID:   "C1",
		UserID:     "u1",
		SearchType: SearchRAG,
	}
	result1, err := graph.Run(context.Background(), state1)
	require.NoError(t, err)
	require.NoError(t, sm.AppendMessages(context.Background(), "u1", "C1", result1.NewMessages, result1.SourcesMap))

	var toolMsgID string
	for _, m := range result1.NewMessages {
		if m.Role == RoleTool {
			toolMsgID = m.ID
		}
	}
	require.NotEmpty(t, toolMsgID)

	// Turn 2: DEFAULT search type, explicitly calling retrieve_previous_sources.
	turn2 := &fakeLLM{responses: []LLMResponse{
		{ToolCalls: []ToolCall{toolCall("t2", ToolRetrievePrevious, map[string]any{"tool_message_ids": []string{toolMsgID}})}},
		{Content: "as found earlier..."},
	}}
	graph.llm = turn2
	state2 := &AgentState{
		Messages:   []ConversationMessage{{Role: RoleUser, Content: "turn two"}},
		CourseID:   "C1",
		UserID:     "u1",
		SearchType: SearchDefault,
	}
	result2, err := graph.Run(context.Background(), state2)
	require.NoError(t, err)

	var sawAnnotated int
	for _, m := range result2.NewMessages {
		if m.Role != RoleTool {
			continue
		}
		packet, err := ParseToolContent(m.Content)
		require.NoError(t, err)
		for _, s := range packet.Results {
			if s.FromToolMessage == toolMsgID {
				sawAnnotated++
			}
		}
	}
	require.Equal(t, 3, sawAnnotated)
}
