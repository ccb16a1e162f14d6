package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kaelo-ai/kaelo/internal/api"
	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/repository"
)

type KnowledgeReader interface {
	List(ctx context.Context, limit, offset int) ([]*domain.KnowledgeChunk, error)
	Count(ctx context.Context) (int64, error)
}

type GuidanceLogReader interface {
	ListRecent(ctx context.Context, limit int) ([]*repository.GuidanceLogEntry, error)
	CountByDecision(ctx context.Context, since time.Time) (map[domain.Decision]int64, error)
}

type CacheBumper interface {
	Bump() string
}

type IngestQueue interface {
	Create(ctx context.Context, job *domain.IngestJob) error
}

type AdminHandler struct {
	knowledge KnowledgeReader
	guidance  GuidanceLogReader
	cache     CacheBumper
	ingest    IngestQueue
}

func NewAdminHandler(knowledge KnowledgeReader, guidance GuidanceLogReader, cache CacheBumper, ingest IngestQueue) *AdminHandler {
	return &AdminHandler{
		knowledge: knowledge,
		guidance:  guidance,
		cache:     cache,
		ingest:    ingest,
	}
}

type ChunkResponse struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Source       string   `json:"source"`
	Category     string   `json:"category"`
	CareerTags   []string `json:"career_tags,omitempty"`
	Institutions []string `json:"institutions,omitempty"`
	Position     int      `json:"position"`
	CreatedAt    string   `json:"created_at"`
}

type KnowledgeListResponse struct {
	Items []*ChunkResponse `json:"items"`
	Total int64            `json:"total"`
}

func chunkToResponse(c *domain.KnowledgeChunk) *ChunkResponse {
	return &ChunkResponse{
		ID:           c.ID,
		Text:         c.Text,
		Source:       c.Metadata.Source,
		Category:     c.Metadata.Category,
		CareerTags:   c.Metadata.CareerTags,
		Institutions: c.Metadata.Institutions,
		Position:     c.Position,
		CreatedAt:    c.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func queryInt(r *http.Request, name string, fallback, ceiling int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	if ceiling > 0 && value > ceiling {
		return ceiling
	}
	return value
}

func (h *AdminHandler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	offset := queryInt(r, "offset", 0, 0)

	chunks, err := h.knowledge.List(r.Context(), limit, offset)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	total, err := h.knowledge.Count(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ChunkResponse, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, chunkToResponse(chunk))
	}

	api.Success(w, http.StatusOK, KnowledgeListResponse{Items: items, Total: total})
}

type GuidanceLogResponse struct {
	ID            string  `json:"id"`
	Query         string  `json:"query"`
	Grade         int     `json:"grade"`
	Decision      string  `json:"decision"`
	FinalAnswer   string  `json:"final_answer"`
	Confidence    float64 `json:"confidence"`
	RequiresHuman bool    `json:"requires_human"`
	IssueCount    int     `json:"issue_count"`
	ProcessingMs  int64   `json:"processing_ms"`
	CreatedAt     string  `json:"created_at"`
}

func (h *AdminHandler) ListGuidance(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)

	entries, err := h.guidance.ListRecent(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*GuidanceLogResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, &GuidanceLogResponse{
			ID:            entry.ID,
			Query:         entry.Query,
			Grade:         entry.Grade,
			Decision:      string(entry.Decision),
			FinalAnswer:   entry.FinalAnswer,
			Confidence:    entry.Confidence,
			RequiresHuman: entry.RequiresHuman,
			IssueCount:    entry.IssueCount,
			ProcessingMs:  entry.ProcessingMs,
			CreatedAt:     entry.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}

	api.Success(w, http.StatusOK, map[string]interface{}{"items": items})
}

type GuidanceStatsResponse struct {
	Since     string           `json:"since"`
	Decisions map[string]int64 `json:"decisions"`
}

func (h *AdminHandler) GuidanceStats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24, 24*30)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	counts, err := h.guidance.CountByDecision(r.Context(), since)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	decisions := make(map[string]int64, len(counts))
	for decision, count := range counts {
		decisions[string(decision)] = count
	}

	api.Success(w, http.StatusOK, GuidanceStatsResponse{
		Since:     since.Format(time.RFC3339),
		Decisions: decisions,
	})
}

func (h *AdminHandler) BumpCache(w http.ResponseWriter, r *http.Request) {
	version := h.cache.Bump()
	api.Success(w, http.StatusOK, map[string]string{"version": version})
}

type IngestRequest struct {
	ObjectKey string `json:"object_key"`
	Category  string `json:"category"`
}

type IngestResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (h *AdminHandler) EnqueueIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ObjectKey == "" {
		api.Error(w, http.StatusBadRequest, "object_key is required")
		return
	}

	job := domain.NewIngestJob(uuid.NewString(), req.ObjectKey, req.Category)
	if err := h.ingest.Create(r.Context(), job); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, IngestResponse{JobID: job.ID, Status: string(job.Status)})
}
