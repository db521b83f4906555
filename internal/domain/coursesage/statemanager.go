package coursesage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/yanqian/ai-helloworld/pkg/util"
)

const cacheTTLSeconds = 24 * 60 * 60

// StateManager owns conversation + source persistence with an advisory cache
// in front of the authoritative primary store (§4.5).
type StateManager struct {
	primary PrimaryStore
	cache   Cache
	logger  *slog.Logger
}

// NewStateManager constructs a StateManager.
func NewStateManager(primary PrimaryStore, cache Cache, logger *slog.Logger) *StateManager {
	return &StateManager{primary: primary, cache: cache, logger: logger.With("component", "state_manager")}
}

func stateCacheKey(threadID string) string  { return "agent_state:" + threadID }
func sourceCacheKey(threadID string) string { return "agent_sources:" + threadID }

// GetConversationHistory loads the last `limit` messages for (userID,
// courseID), preferring the cache and falling through to the primary store
// on miss or corruption. Tool messages are truncated for context economy;
// the untruncated form lives only in the primary store.
func (sm *StateManager) GetConversationHistory(ctx context.Context, userID, courseID string, limit int) ([]ConversationMessage, error) {
	threadID := ThreadID(userID, courseID)
	messages, ok := sm.readCachedMessages(ctx, threadID)
	if !ok {
		thread, found, err := sm.primary.Get(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		messages = thread.Messages
		sm.writeCachedMessages(ctx, threadID, messages)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return truncateToolMessages(messages), nil
}

func truncateToolMessages(messages []ConversationMessage) []ConversationMessage {
	out := make([]ConversationMessage, len(messages))
	for i, m := range messages {
		if m.Role != RoleTool {
			out[i] = m
			continue
		}
		var summary struct {
			Tool        string `json:"tool"`
			Success     bool   `json:"success"`
			ResultCount int    `json:"result_count,omitempty"`
			Error       string `json:"error,omitempty"`
			Message     string `json:"message"`
		}
		summary.Tool = m.Name
		summary.Message = "Use retrieve_previous_sources to access full content."
		var parsed struct {
			Success bool      `json:"success"`
			Error   string    `json:"error"`
			Results []Source  `json:"results"`
		}
		if err := json.Unmarshal([]byte(m.Content), &parsed); err == nil {
			summary.Success = parsed.Success
			summary.Error = parsed.Error
			summary.ResultCount = len(parsed.Results)
		}
		truncated, _ := json.Marshal(summary)
		t := m
		t.Content = string(truncated)
		out[i] = t
	}
	return out
}

// AppendMessages appends new messages and merges sourcesMap into the
// per-assistant-message source references, read-merge-write against the
// primary store then the cache (§4.5, §5 shared-resource policy). New
// messages whose ID is already stored are skipped, so a byte-identical retry
// with stable UUIDs leaves the thread unchanged.
func (sm *StateManager) AppendMessages(ctx context.Context, userID, courseID string, newMessages []ConversationMessage, sourcesMap map[string]SourceRefs) error {
	threadID := ThreadID(userID, courseID)
	now := sm.now()

	thread, found, err := sm.primary.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if !found {
		thread = ConversationThread{ThreadID: threadID, UserID: userID, CourseID: courseID, CreatedAt: now}
	}

	existingIDs := map[string]bool{}
	existingRefs := map[string]SourceRefs{}
	for _, m := range thread.Messages {
		if m.ID != "" {
			existingIDs[m.ID] = true
		}
		if m.Role != RoleAssistant {
			continue
		}
		existingRefs[m.ID] = SourceRefs{RAGSourceIDs: m.RAGSourceIDs, WebSourceIDs: m.WebSourceIDs, ImageSource: m.ImageSource}
	}
	for id, refs := range sourcesMap {
		existingRefs[id] = refs
	}

	stripped := make([]ConversationMessage, 0, len(newMessages))
	for _, m := range newMessages {
		if m.ID != "" && existingIDs[m.ID] {
			continue
		}
		m2 := m
		if m2.Role == RoleUser {
			m2.ImageURL = ""
		}
		if m2.Role == RoleAssistant {
			if refs, ok := existingRefs[m2.ID]; ok {
				m2.RAGSourceIDs = refs.RAGSourceIDs
				m2.WebSourceIDs = refs.WebSourceIDs
				m2.ImageSource = refs.ImageSource
			}
		}
		stripped = append(stripped, m2)
	}

	thread.Messages = capMessages(append(thread.Messages, stripped...))
	thread.MessageCount = len(thread.Messages)
	thread.UpdatedAt = now

	if err := sm.primary.Upsert(ctx, thread); err != nil {
		return err
	}
	sm.writeCachedMessages(ctx, threadID, thread.Messages)
	return nil
}

// SourceRefs is the set of source references embedded on an assistant message.
type SourceRefs struct {
	RAGSourceIDs []string
	WebSourceIDs []string
	ImageSource  *ImageSource
}

// GetToolMessages reads tool-message content straight from the primary store
// (never truncated there) for the retrieve_previous_sources tool.
func (sm *StateManager) GetToolMessages(ctx context.Context, userID, courseID string, ids []string) (map[string]ConversationMessage, error) {
	threadID := ThreadID(userID, courseID)
	thread, found, err := sm.primary.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := map[string]ConversationMessage{}
	if !found {
		return out, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, m := range thread.Messages {
		if m.Role == RoleTool && want[m.ID] {
			out[m.ID] = m
		}
	}
	return out, nil
}

// GetSourcesForMessages resolves per-assistant-message source references,
// preferring the cache and warming it from the primary store on miss.
func (sm *StateManager) GetSourcesForMessages(ctx context.Context, userID, courseID string, assistantIDs []string) (map[string]SourceRefs, error) {
	threadID := ThreadID(userID, courseID)
	out := map[string]SourceRefs{}

	cached, err := sm.cache.HashGetAll(ctx, sourceCacheKey(threadID))
	if err == nil && len(cached) > 0 {
		missing := []string{}
		for _, id := range assistantIDs {
			if raw, ok := cached[id]; ok {
				var refs SourceRefs
				if json.Unmarshal([]byte(raw), &refs) == nil {
					out[id] = refs
					continue
				}
			}
			missing = append(missing, id)
		}
		if len(missing) == 0 {
			return out, nil
		}
		assistantIDs = missing
	}

	thread, found, err := sm.primary.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !found {
		return out, nil
	}
	want := map[string]bool{}
	for _, id := range assistantIDs {
		want[id] = true
	}
	warm := map[string]string{}
	for _, m := range thread.Messages {
		if m.Role != RoleAssistant || !want[m.ID] {
			continue
		}
		refs := SourceRefs{RAGSourceIDs: m.RAGSourceIDs, WebSourceIDs: m.WebSourceIDs, ImageSource: m.ImageSource}
		out[m.ID] = refs
		if encoded, err := json.Marshal(refs); err == nil {
			warm[m.ID] = string(encoded)
		}
	}
	if len(warm) > 0 {
		_ = sm.cache.HashSet(ctx, sourceCacheKey(threadID), warm)
	}
	return out, nil
}

// Clear deletes the primary document and all related cache keys.
func (sm *StateManager) Clear(ctx context.Context, userID, courseID string) error {
	threadID := ThreadID(userID, courseID)
	if err := sm.primary.Delete(ctx, threadID); err != nil {
		return err
	}
	return sm.cache.Delete(ctx, stateCacheKey(threadID), sourceCacheKey(threadID))
}

func (sm *StateManager) readCachedMessages(ctx context.Context, threadID string) ([]ConversationMessage, bool) {
	raw, ok, err := sm.cache.GetString(ctx, stateCacheKey(threadID))
	if err != nil || !ok || raw == "" {
		return nil, false
	}
	var messages []ConversationMessage
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		sm.logger.Warn("corrupt conversation cache entry, falling through to primary", "thread_id", threadID, "error", err)
		return nil, false
	}
	return messages, true
}

func (sm *StateManager) writeCachedMessages(ctx context.Context, threadID string, messages []ConversationMessage) {
	encoded, err := json.Marshal(messages)
	if err != nil {
		sm.logger.Warn("failed to encode conversation for cache", "thread_id", threadID, "error", err)
		return
	}
	if err := sm.cache.SetString(ctx, stateCacheKey(threadID), string(encoded), cacheTTLSeconds); err != nil {
		sm.logger.Warn("cache write failed, primary store remains authoritative", "thread_id", threadID, "error", err)
	}
}

func (sm *StateManager) now() time.Time { return util.NowUTC() }
