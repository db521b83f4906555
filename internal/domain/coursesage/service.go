package coursesage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service composes the chunker, upserter, retriever, deletion and agent
// subsystems behind the three external operations of §6.
type Service struct {
	chunker  Chunker
	upserter *Upserter
	deleter  *Deleter
	agent    *AgentGraph
	tools    *Tools
	state    *StateManager
	storage  ObjectStorage
	logger   *slog.Logger
	maxWords int
}

// NewService constructs a Service.
func NewService(chunker Chunker, upserter *Upserter, deleter *Deleter, agent *AgentGraph, tools *Tools, state *StateManager, storage ObjectStorage, maxWords int, logger *slog.Logger) *Service {
	if maxWords <= 0 {
		maxWords = 350
	}
	return &Service{
		chunker: chunker, upserter: upserter, deleter: deleter, agent: agent, tools: tools,
		state: state, storage: storage, maxWords: maxWords, logger: logger.With("component", "service"),
	}
}

// IngestRequest is the inbound handler's request body (§6).
type IngestRequest struct {
	CourseID   string
	SlideID    string
	S3FileName string
	Bucket     string
}

// IngestStatistics is the inbound handler's statistics payload (§6).
type IngestStatistics struct {
	TotalPages      int
	ChunksCreated   int
	ChunksSaved     int
	DuplicatesSkipped int
	Errors          []string
}

// IngestResult is the inbound handler's response payload (§6).
type IngestResult struct {
	Success         bool
	Error           string
	Statistics      IngestStatistics
	ProcessingTimeMS int64
}

// Ingest implements the inbound operation: fetch bytes, chunk, embed, upsert.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) IngestResult {
	start := time.Now()
	result := func(stats IngestStatistics, err error) IngestResult {
		r := IngestResult{Statistics: stats, ProcessingTimeMS: time.Since(start).Milliseconds()}
		if err != nil {
			r.Error = err.Error()
			return r
		}
		r.Success = true
		return r
	}

	if req.CourseID == "" || req.SlideID == "" || req.S3FileName == "" {
		return result(IngestStatistics{}, WrapInput("course_id, slide_id and s3_file_name are required", nil))
	}

	pdfBytes, err := s.storage.Get(ctx, req.Bucket, req.S3FileName)
	if err != nil {
		return result(IngestStatistics{}, err)
	}

	chunks, totalPages, err := s.chunker.Chunk(pdfBytes, req.CourseID, req.SlideID, req.S3FileName, s.maxWords)
	if err != nil {
		return result(IngestStatistics{TotalPages: totalPages}, err)
	}

	summary, err := s.upserter.EmbedAndSave(ctx, chunks)
	stats := IngestStatistics{
		TotalPages:        totalPages,
		ChunksCreated:      len(chunks),
		ChunksSaved:        summary.Inserted,
		DuplicatesSkipped:  summary.Duplicates,
		Errors:             summary.Errors,
	}
	if err != nil {
		return result(stats, err)
	}
	return result(stats, nil)
}

// DeleteRequest is the management handler's request body (§6).
type DeleteRequest struct {
	CourseID   string
	SlideID    string
	S3FileName string
}

// DeleteResponse is the management handler's response payload (§6).
type DeleteResponse struct {
	Success          bool
	Error            string
	VectorsDeleted   int
	ProcessingTimeMS int64
}

// Delete implements the management operation.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) DeleteResponse {
	start := time.Now()
	res, err := s.deleter.Delete(ctx, req.CourseID, req.SlideID, req.S3FileName)
	resp := DeleteResponse{ProcessingTimeMS: time.Since(start).Milliseconds()}
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = res.Acknowledged
	resp.VectorsDeleted = res.DeletedCount
	return resp
}

// AskRequest is the outbound handler's request body (§6).
type AskRequest struct {
	UserID         string
	CourseID       string
	UserPrompt     string
	Snapshot       *Snapshot
	SlidesPriority []string
	SearchType     SearchType
}

// AskResponse is the outbound handler's response payload (§6).
type AskResponse struct {
	Response     string
	RAGSources   []Source
	WebSources   []Source
	ImageSources []ImageSource
}

// Ask implements the outbound operation: load history, run the agent loop,
// persist the new turn.
func (s *Service) Ask(ctx context.Context, req AskRequest) AskResponse {
	if req.SearchType == "" {
		req.SearchType = SearchDefault
	}

	history, err := s.state.GetConversationHistory(ctx, req.UserID, req.CourseID, 50)
	if err != nil {
		s.logger.Error("failed to load conversation history", "error", err)
		return AskResponse{Response: "I couldn't load this conversation right now."}
	}

	userMsg := ConversationMessage{ID: uuid.NewString(), Role: RoleUser, Content: req.UserPrompt}
	if req.Snapshot != nil {
		userMsg.ImageURL = req.Snapshot.PresignedURL
	}

	state := &AgentState{
		Messages:       append(history, userMsg),
		CourseID:       req.CourseID,
		UserID:         req.UserID,
		SlidesPriority: req.SlidesPriority,
		SearchType:     req.SearchType,
		Snapshot:       req.Snapshot,
	}

	agentResult, err := s.agent.Run(ctx, state)
	if err != nil {
		s.logger.Error("agent run failed", "error", err)
		return AskResponse{Response: "I ran into an unexpected error answering that."}
	}

	if err := s.state.AppendMessages(ctx, req.UserID, req.CourseID, append([]ConversationMessage{userMsg}, agentResult.NewMessages...), agentResult.SourcesMap); err != nil {
		s.logger.Error("failed to persist conversation turn", "error", err)
	}

	return AskResponse{
		Response:     agentResult.ResponseText,
		RAGSources:   agentResult.RAGSources,
		WebSources:   agentResult.WebSources,
		ImageSources: agentResult.ImageSources,
	}
}
