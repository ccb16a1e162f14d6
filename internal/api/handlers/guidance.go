package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kaelo-ai/kaelo/internal/api"
	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/pipeline"
)

type GuidanceService interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

type GuidanceHandler struct {
	svc GuidanceService
}

func NewGuidanceHandler(svc GuidanceService) *GuidanceHandler {
	return &GuidanceHandler{svc: svc}
}

type ProfileRequest struct {
	Grade        int                `json:"grade"`
	Curriculum   string             `json:"curriculum"`
	Subjects     []string           `json:"subjects"`
	Marks        map[string]float64 `json:"marks"`
	Interests    []string           `json:"interests"`
	Weaknesses   []string           `json:"weaknesses"`
	Financial    string             `json:"financial_constraint"`
	Location     string             `json:"location"`
	TimeFlexible bool               `json:"time_flexible"`
}

type GuidanceOptionsRequest struct {
	SkipLLMVerification bool `json:"skip_llm_verification"`
	StrictMode          bool `json:"strict_mode"`
}

type GuidanceRequest struct {
	Query   string                 `json:"query"`
	Profile *ProfileRequest        `json:"profile"`
	Options GuidanceOptionsRequest `json:"options"`
}

type IssueResponse struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Problem  string `json:"problem"`
}

type GuidanceResponse struct {
	Answer           string          `json:"answer"`
	Decision         string          `json:"decision"`
	Confidence       float64         `json:"confidence"`
	RequiresHuman    bool            `json:"requires_human"`
	Cached           bool            `json:"cached"`
	ProcessingMs     int64           `json:"processing_ms"`
	Issues           []IssueResponse `json:"issues"`
	RevisionsApplied []string        `json:"revisions_applied,omitempty"`
	Stages           []string        `json:"stages"`
}

func profileFromRequest(req *ProfileRequest) *domain.StudentProfile {
	if req == nil {
		return nil
	}
	profile := domain.NewStudentProfile(req.Grade, req.Curriculum, req.Subjects, req.Marks)
	profile.Interests = req.Interests
	profile.Weaknesses = req.Weaknesses
	profile.Constraints = domain.ProfileConstraints{
		Financial:    domain.FinancialConstraint(req.Financial),
		Location:     req.Location,
		TimeFlexible: req.TimeFlexible,
	}
	return profile
}

func outcomeToResponse(result *pipeline.Result) *GuidanceResponse {
	outcome := result.Outcome
	issues := make([]IssueResponse, 0, len(outcome.Issues))
	for _, issue := range outcome.Issues {
		issues = append(issues, IssueResponse{
			Type:     string(issue.Type),
			Severity: string(issue.Severity),
			Location: issue.Location,
			Problem:  issue.Problem,
		})
	}

	stages := make([]string, 0, len(outcome.StagesCompleted))
	for _, stage := range outcome.StagesCompleted {
		stages = append(stages, string(stage))
	}

	return &GuidanceResponse{
		Answer:           result.Response,
		Decision:         string(outcome.Decision),
		Confidence:       outcome.Confidence,
		RequiresHuman:    outcome.RequiresHuman,
		Cached:           outcome.FromCache(),
		ProcessingMs:     outcome.ProcessingTime.Milliseconds(),
		Issues:           issues,
		RevisionsApplied: outcome.RevisionsApplied,
		Stages:           stages,
	}
}

func (h *GuidanceHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req GuidanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Profile == nil {
		api.Error(w, http.StatusBadRequest, "profile is required")
		return
	}

	profile := profileFromRequest(req.Profile)
	if err := domain.ValidateStudentProfile(profile); err != nil {
		api.HandleError(w, err)
		return
	}

	result, err := h.svc.Run(r.Context(), pipeline.Request{
		Query:   req.Query,
		Profile: profile,
		Options: pipeline.Options{
			SkipLLMVerification: req.Options.SkipLLMVerification,
			StrictMode:          req.Options.StrictMode,
		},
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, outcomeToResponse(result))
}
