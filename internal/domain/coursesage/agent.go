package coursesage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/yanqian/ai-helloworld/pkg/util"
)

// recursionLimit is the hard cap on agent/tools node visits per request (§5).
const recursionLimit = 10

// Snapshot is a reference to an image of the user's currently viewed page.
type Snapshot struct {
	SlideID      string
	PageNumber   int
	S3Key        string
	PresignedURL string
}

// AgentState is the record threaded through the cooperative tool loop (§4.4).
type AgentState struct {
	Messages       []ConversationMessage
	CourseID       string
	UserID         string
	SlidesPriority []string
	SearchType     SearchType
	Snapshot       *Snapshot

	ragCounter int
	webCounter int

	ragSources   []Source
	webSources   []Source
	imageSources []ImageSource
	sourcesMap   map[string]SourceRefs

	finalResponse string
	visits        int
	truncated     bool
}

// AgentResult is the §4.4 finalization payload.
type AgentResult struct {
	ResponseText string
	RAGSources   []Source
	WebSources   []Source
	ImageSources []ImageSource
	SourcesMap   map[string]SourceRefs
	NewMessages  []ConversationMessage
}

// AgentGraph orchestrates the LLM with a restricted tool set under a bounded
// step budget (§4.4, §9 "cooperative tool loop, not recursion").
type AgentGraph struct {
	llm    LLM
	tools  *Tools
	logger *slog.Logger
}

// NewAgentGraph constructs an AgentGraph.
func NewAgentGraph(llm LLM, tools *Tools, logger *slog.Logger) *AgentGraph {
	return &AgentGraph{llm: llm, tools: tools, logger: logger.With("component", "agent_graph")}
}

// Run drives the finite-state loop: start -> agent -> (tools -> agent)* -> format_response -> end.
func (g *AgentGraph) Run(ctx context.Context, state *AgentState) (AgentResult, error) {
	startLen := len(state.Messages)
	for {
		state.visits++
		if state.visits > recursionLimit {
			state.truncated = true
			break
		}

		resp, err := g.llm.Complete(ctx, LLMRequest{
			System:   g.systemPrompt(state),
			Messages: state.Messages,
			Tools:    Definitions(state.SearchType),
		})
		if err != nil {
			state.Messages = append(state.Messages, ConversationMessage{
				ID:      uuid.NewString(),
				Role:    RoleAssistant,
				Content: "I ran into an error answering that: " + err.Error(),
			})
			return g.finalize(state, startLen), nil
		}

		assistant := ConversationMessage{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		state.Messages = append(state.Messages, assistant)

		if len(resp.ToolCalls) == 0 {
			break
		}

		state.visits++
		if state.visits > recursionLimit {
			state.truncated = true
			break
		}
		g.runTools(ctx, state, resp.ToolCalls)
	}

	return g.finalize(state, startLen), nil
}

// runTools executes every tool call in issuing order (required for stable
// source renumbering, §5) and appends one tool message per call.
func (g *AgentGraph) runTools(ctx context.Context, state *AgentState, calls []ToolCall) {
	allowed := allowedTools(state.SearchType)
	for _, call := range calls {
		if !allowed[call.Name] {
			packet := SourcePacket{ToolName: call.Name, Success: false, Error: "tool not available for this search type"}
			state.Messages = append(state.Messages, toolMessage(call, packet))
			continue
		}

		var packet SourcePacket
		switch call.Name {
		case ToolRAGSearch:
			var args struct {
				Query          string   `json:"query"`
				SlidesPriority []string `json:"slides_priority"`
				Limit          int      `json:"limit"`
			}
			_ = json.Unmarshal([]byte(call.Arguments), &args)
			slides := args.SlidesPriority
			if len(slides) == 0 {
				slides = state.SlidesPriority
			}
			packet = g.tools.RAGSearch(ctx, state.CourseID, args.Query, slides, args.Limit)
		case ToolWebSearch:
			var args struct {
				Query      string `json:"query"`
				MaxResults int    `json:"max_results"`
			}
			_ = json.Unmarshal([]byte(call.Arguments), &args)
			packet = g.tools.WebSearch(ctx, args.Query, args.MaxResults)
		case ToolRetrievePrevious:
			var args struct {
				ToolMessageIDs []string `json:"tool_message_ids"`
			}
			_ = json.Unmarshal([]byte(call.Arguments), &args)
			packet = g.tools.RetrievePreviousSources(ctx, state.UserID, state.CourseID, args.ToolMessageIDs)
		default:
			packet = SourcePacket{ToolName: call.Name, Success: false, Error: "unknown tool"}
		}

		if packet.Success {
			g.renumber(state, &packet)
		}
		state.Messages = append(state.Messages, toolMessage(call, packet))
	}
}

func toolMessage(call ToolCall, packet SourcePacket) ConversationMessage {
	content, _ := EncodeToolContent(packet)
	return ConversationMessage{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Content:    content,
	}
}

// renumber assigns monotone global IDs (per kind) to a successful tool
// result, reading and writing the counters through state (§9).
func (g *AgentGraph) renumber(state *AgentState, packet *SourcePacket) {
	for i := range packet.Results {
		kind := packet.Results[i].Kind
		switch kind {
		case "rag":
			state.ragCounter++
			packet.Results[i].ID = strconv.Itoa(state.ragCounter)
		case "web":
			state.webCounter++
			packet.Results[i].ID = strconv.Itoa(state.webCounter)
		}
	}
}

// systemPrompt composes the per-turn instructions: citation syntax, the
// truncated-history / retrieve_previous_sources rule, and the snapshot rule
// when the user has a currently-viewed page attached.
func (g *AgentGraph) systemPrompt(state *AgentState) string {
	var b strings.Builder
	b.WriteString("You are CourseSage, an assistant answering questions about a specific course's materials.\n")
	if state.CourseID != "" {
		fmt.Fprintf(&b, "The active course is %s.\n", state.CourseID)
	}
	if len(state.SlidesPriority) > 0 {
		fmt.Fprintf(&b, "Prefer material from these slide decks when relevant: %s.\n", strings.Join(state.SlidesPriority, ", "))
	}

	b.WriteString("\nCiting sources:\n")
	b.WriteString("- Cite course material with [^n] where n is a rag_search result ID.\n")
	b.WriteString("- Cite web results with {^n} where n is a web_search result ID.\n")
	if state.Snapshot != nil {
		b.WriteString("- Cite the page the user is currently viewing with [^Page].\n")
	}
	b.WriteString("- Only cite IDs that were actually returned by a tool call in this turn.\n")

	b.WriteString("\nEarlier tool results in the conversation history have been truncated to a summary. ")
	b.WriteString("If you need their full content, call retrieve_previous_sources with the relevant tool message IDs rather than re-running the search.\n")

	switch state.SearchType {
	case SearchDefault:
		b.WriteString("\nNo live search tool is enabled for this turn; answer from conversation context and retrieve_previous_sources only.\n")
	case SearchRAG:
		b.WriteString("\nUse rag_search for course material lookups.\n")
	case SearchWeb:
		b.WriteString("\nUse web_search for external lookups.\n")
	case SearchRAGWeb:
		b.WriteString("\nUse rag_search for course material and web_search for external lookups, as needed.\n")
	}

	if state.Snapshot != nil {
		fmt.Fprintf(&b, "\nThe user is currently viewing slide %s, page %d. Treat this as available context even without a tool call.\n",
			state.Snapshot.SlideID, state.Snapshot.PageNumber)
	}

	return b.String()
}

func allowedTools(searchType SearchType) map[string]bool {
	allowed := map[string]bool{ToolRetrievePrevious: true}
	switch searchType {
	case SearchRAG:
		allowed[ToolRAGSearch] = true
	case SearchWeb:
		allowed[ToolWebSearch] = true
	case SearchRAGWeb:
		allowed[ToolRAGSearch] = true
		allowed[ToolWebSearch] = true
	}
	return allowed
}

// finalize implements the format_response node: walk back from the most
// recent assistant message to the most recent user message, collect tool
// results by kind, and synthesize the snapshot ImageSource if present.
func (g *AgentGraph) finalize(state *AgentState, startLen int) AgentResult {
	var assistantIdx = -1
	for i := len(state.Messages) - 1; i >= startLen; i-- {
		if state.Messages[i].Role == RoleAssistant {
			assistantIdx = i
			break
		}
	}

	ragIDs, webIDs := map[string]bool{}, map[string]bool{}
	for i := len(state.Messages) - 1; i >= 0; i-- {
		m := state.Messages[i]
		if m.Role == RoleUser {
			break
		}
		if m.Role != RoleTool {
			continue
		}
		packet, err := ParseToolContent(m.Content)
		if err != nil || !packet.Success {
			continue
		}
		for _, s := range packet.Results {
			switch s.Kind {
			case "rag":
				if !ragIDs[s.ID] {
					ragIDs[s.ID] = true
					state.ragSources = append(state.ragSources, s)
				}
			case "web":
				if !webIDs[s.ID] {
					webIDs[s.ID] = true
					state.webSources = append(state.webSources, s)
				}
			}
		}
	}

	refs := SourceRefs{}
	for _, s := range state.ragSources {
		refs.RAGSourceIDs = append(refs.RAGSourceIDs, s.ID)
	}
	for _, s := range state.webSources {
		refs.WebSourceIDs = append(refs.WebSourceIDs, s.ID)
	}

	state.sourcesMap = map[string]SourceRefs{}
	var assistantID string
	if assistantIdx >= 0 {
		m := &state.Messages[assistantIdx]
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		assistantID = m.ID
	}

	if state.Snapshot != nil {
		img := ImageSource{
			S3Key:      state.Snapshot.S3Key,
			SlideID:    state.Snapshot.SlideID,
			PageNumber: state.Snapshot.PageNumber,
			MessageID:  assistantID,
			Timestamp:  util.NowUTC(),
		}
		state.imageSources = append(state.imageSources, img)
		refs.ImageSource = &img
	}

	if assistantIdx >= 0 {
		m := &state.Messages[assistantIdx]
		m.RAGSourceIDs = refs.RAGSourceIDs
		m.WebSourceIDs = refs.WebSourceIDs
		m.ImageSource = refs.ImageSource
		state.sourcesMap[m.ID] = refs
		state.finalResponse = m.Content
	}

	if state.truncated && state.finalResponse == "" {
		state.finalResponse = "I wasn't able to finish answering within the allotted number of steps."
	}

	return AgentResult{
		ResponseText: state.finalResponse,
		RAGSources:   state.ragSources,
		WebSources:   state.webSources,
		ImageSources: state.imageSources,
		SourcesMap:   state.sourcesMap,
		NewMessages:  append([]ConversationMessage(nil), state.Messages[startLen:]...),
	}
}
