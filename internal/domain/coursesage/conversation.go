package coursesage

import "time"

// MessageRole is the ConversationMessage variant tag.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// SearchType restricts the toolset available to the agent's tool node.
type SearchType string

const (
	SearchDefault SearchType = "DEFAULT"
	SearchRAG     SearchType = "RAG"
	SearchWeb     SearchType = "WEB"
	SearchRAGWeb  SearchType = "RAG_WEB"
)

// ParseSearchType validates a wire-level search_type string.
func ParseSearchType(raw string) (SearchType, error) {
	switch SearchType(raw) {
	case SearchDefault, SearchRAG, SearchWeb, SearchRAGWeb:
		return SearchType(raw), nil
	default:
		return "", ErrUnknownSearchType
	}
}

// ToolCall is an LLM-issued invocation of a named tool with JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ImageSource is a snapshot-derived attachment on an assistant message.
type ImageSource struct {
	S3Key      string
	SlideID    string
	PageNumber int
	MessageID  string
	Timestamp  time.Time
}

// ConversationMessage is one turn in a thread. Only the fields relevant to
// its Role are populated by producers; State Manager persistence keeps all
// fields so replays are exact.
type ConversationMessage struct {
	ID      string
	Role    MessageRole
	Name    string
	Content string

	// user: optional multimodal image reference, stripped before persistence.
	ImageURL string

	// assistant only.
	ToolCalls    []ToolCall
	RAGSourceIDs []string
	WebSourceIDs []string
	ImageSource  *ImageSource

	// tool only.
	ToolCallID string
}

// Source is a single retrieval result. Fields beyond ID/Score are
// tool-specific; only the ones relevant to Kind are populated.
type Source struct {
	ID    string
	Kind  string // "rag" or "web"
	Score float64

	// rag
	Slide string
	S3File string
	Start int
	End   int
	Text  string

	// web
	Title string
	URL   string

	// set only when returned via retrieve_previous_sources
	FromToolMessage string
}

// SourcePacket is the per-tool-call output record a tool returns, before and
// after the tool-node's renumbering pass.
type SourcePacket struct {
	ToolName      string
	ToolMessageID string
	Results       []Source
	Success       bool
	Error         string
}

// ConversationThread is the persisted (user, course) conversation identity.
type ConversationThread struct {
	ThreadID     string
	UserID       string
	CourseID     string
	Messages     []ConversationMessage
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ThreadID builds the stable (user, course) thread identity.
func ThreadID(userID, courseID string) string {
	return userID + ":" + courseID
}

const threadMessageCap = 100

func capMessages(messages []ConversationMessage) []ConversationMessage {
	if len(messages) <= threadMessageCap {
		return messages
	}
	return append([]ConversationMessage(nil), messages[len(messages)-threadMessageCap:]...)
}
