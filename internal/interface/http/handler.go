package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
)

// Handler wires the HTTP transport to the coursesage service (§6).
type Handler struct {
	svc    *coursesage.Service
	logger *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(svc *coursesage.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With("component", "http.handler")}
}

type ingestBody struct {
	CourseID   string `json:"course_id" binding:"required"`
	SlideID    string `json:"slide_id" binding:"required"`
	S3FileName string `json:"s3_file_name" binding:"required"`
	Bucket     string `json:"bucket"`
}

// Ingest handles the inbound document-indexing endpoint.
func (h *Handler) Ingest(c *gin.Context) {
	var body ingestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	result := h.svc.Ingest(c.Request.Context(), coursesage.IngestRequest{
		CourseID: body.CourseID, SlideID: body.SlideID, S3FileName: body.S3FileName, Bucket: body.Bucket,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"success": result.Success,
		"error":   result.Error,
		"statistics": gin.H{
			"total_pages":        result.Statistics.TotalPages,
			"chunks_created":     result.Statistics.ChunksCreated,
			"chunks_saved":       result.Statistics.ChunksSaved,
			"duplicates_skipped": result.Statistics.DuplicatesSkipped,
			"errors":             result.Statistics.Errors,
		},
		"processing_time_ms": result.ProcessingTimeMS,
	})
}

type deleteBody struct {
	CourseID   string `json:"course_id" binding:"required"`
	SlideID    string `json:"slide_id" binding:"required"`
	S3FileName string `json:"s3_file_name" binding:"required"`
}

// Delete handles the management endpoint that removes a document's vectors.
func (h *Handler) Delete(c *gin.Context) {
	var body deleteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	resp := h.svc.Delete(c.Request.Context(), coursesage.DeleteRequest{
		CourseID: body.CourseID, SlideID: body.SlideID, S3FileName: body.S3FileName,
	})
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"success":             resp.Success,
		"error":               resp.Error,
		"vectors_deleted":     resp.VectorsDeleted,
		"processing_time_ms":  resp.ProcessingTimeMS,
	})
}

type snapshotBody struct {
	SlideID    string `json:"slide_id"`
	PageNumber int    `json:"page_number"`
	S3Key      string `json:"s3_key"`
}

type askBody struct {
	UserID         string        `json:"user_id" binding:"required"`
	CourseID       string        `json:"course_id" binding:"required"`
	UserPrompt     string        `json:"user_prompt" binding:"required"`
	Snapshot       *snapshotBody `json:"snapshot"`
	SlidePriority  []string      `json:"slide_priority"`
	SearchType     string        `json:"search_type"`
}

// Ask handles the outbound conversational endpoint.
func (h *Handler) Ask(c *gin.Context) {
	var body askBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	searchType := coursesage.SearchDefault
	if body.SearchType != "" {
		parsed, err := coursesage.ParseSearchType(body.SearchType)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_search_type", err.Error(), err))
			return
		}
		searchType = parsed
	}

	var snapshot *coursesage.Snapshot
	if body.Snapshot != nil {
		snapshot = &coursesage.Snapshot{SlideID: body.Snapshot.SlideID, PageNumber: body.Snapshot.PageNumber, S3Key: body.Snapshot.S3Key}
	}

	resp := h.svc.Ask(c.Request.Context(), coursesage.AskRequest{
		UserID: body.UserID, CourseID: body.CourseID, UserPrompt: body.UserPrompt,
		Snapshot: snapshot, SlidesPriority: body.SlidePriority, SearchType: searchType,
	})

	c.JSON(http.StatusOK, gin.H{
		"response":    resp.Response,
		"ragSources":  toRAGSourcesJSON(resp.RAGSources),
		"webSources":  toWebSourcesJSON(resp.WebSources),
		"imageSources": toImageSourcesJSON(resp.ImageSources),
	})
}

func toRAGSourcesJSON(sources []coursesage.Source) []gin.H {
	out := make([]gin.H, len(sources))
	for i, s := range sources {
		out[i] = gin.H{"id": s.ID, "slide": s.Slide, "s3file": s.S3File, "start": s.Start, "end": s.End, "text": s.Text}
	}
	return out
}

func toWebSourcesJSON(sources []coursesage.Source) []gin.H {
	out := make([]gin.H, len(sources))
	for i, s := range sources {
		out[i] = gin.H{"id": s.ID, "title": s.Title, "url": s.URL, "text": s.Text}
	}
	return out
}

func toImageSourcesJSON(images []coursesage.ImageSource) []gin.H {
	out := make([]gin.H, len(images))
	for i, img := range images {
		out[i] = gin.H{
			"id":         "page",
			"type":       "current",
			"messageId":  img.MessageID,
			"timestamp":  img.Timestamp.Format(time.RFC3339),
			"slideId":    img.SlideID,
			"pageNumber": img.PageNumber,
		}
	}
	return out
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
