package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/applicant-screener/internal/gates"
	"alfredoptarigan/applicant-screener/internal/logger"
	"alfredoptarigan/applicant-screener/internal/models"
)

var ErrMalformedOutput = errors.New("malformed model output")

const (
	matchTemperature = 0.2
	maxRecencyRoles  = 2
)

type Scorer interface {
	// Analyze scores the resume against the job with the given model tier.
	Analyze(ctx context.Context, resume string, job *models.JobPosting, model string) (*models.Analysis, error)
	// VerifyYears recounts the years for skills whose shortfall would cap the score.
	VerifyYears(ctx context.Context, resume string, job *models.JobPosting, skills []models.SkillYears, model string) (*gates.YearsVerification, error)
}

type scorer struct {
	llm           LLMClient
	promptBuilder *PromptBuilder
	log           *zap.Logger
}

func NewScorer(llm LLMClient, log *zap.Logger) Scorer {
	return &scorer{
		llm:           llm,
		promptBuilder: NewPromptBuilder(),
		log:           logger.OrNop(log).With(zap.String("component", "scorer")),
	}
}

// analysisPayload mirrors models.Analysis with optional numbers so missing
// fields can be told apart from zeros.
type analysisPayload struct {
	Score             *float64                `json:"score"`
	Summary           string                  `json:"summary"`
	MatchedSkills     []string                `json:"matched_skills"`
	MatchedExperience []string                `json:"matched_experience"`
	Gaps              string                  `json:"gaps"`
	YearsAnalysis     []models.SkillYears     `json:"years_analysis"`
	Recency           *models.RecencyAnalysis `json:"recency"`
	Experience        *models.ExperienceLevel `json:"experience"`
}

func (s *scorer) Analyze(ctx context.Context, resume string, job *models.JobPosting, model string) (*models.Analysis, error) {
	prompt := s.promptBuilder.BuildMatchPrompt(resume, job)

	response, err := s.llm.GenerateStructured(ctx, StructuredRequest{
		Model:             model,
		SystemInstruction: matchSystemInstruction,
		Prompt:            prompt,
		Schema:            MatchSchema(),
		Temperature:       matchTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate match analysis: %w", err)
	}

	var payload analysisPayload
	if err := parseJSONResponse(response, &payload); err != nil {
		return nil, err
	}
	if payload.Score == nil || math.IsNaN(*payload.Score) {
		return nil, fmt.Errorf("%w: missing score", ErrMalformedOutput)
	}
	if payload.Recency == nil || payload.Experience == nil {
		return nil, fmt.Errorf("%w: missing recency or experience analysis", ErrMalformedOutput)
	}

	analysis := &models.Analysis{
		Score:             int(math.Round(*payload.Score)),
		Summary:           strings.TrimSpace(payload.Summary),
		MatchedSkills:     payload.MatchedSkills,
		MatchedExperience: payload.MatchedExperience,
		Gaps:              strings.TrimSpace(payload.Gaps),
		YearsAnalysis:     cleanSkillYears(payload.YearsAnalysis),
		Recency:           *payload.Recency,
		Experience:        *payload.Experience,
		Model:             model,
	}
	normalizeAnalysis(analysis)

	s.log.Debug("analysis parsed",
		zap.String("job_id", job.ID),
		zap.String("model", model),
		zap.Int("score", analysis.Score),
		zap.Int("years_entries", len(analysis.YearsAnalysis)))
	return analysis, nil
}

type yearsPayload struct {
	Skills []models.SkillYears `json:"skills"`
}

func (s *scorer) VerifyYears(ctx context.Context, resume string, job *models.JobPosting, skills []models.SkillYears, model string) (*gates.YearsVerification, error) {
	response, err := s.llm.GenerateStructured(ctx, StructuredRequest{
		Model:             model,
		SystemInstruction: yearsSystemInstruction,
		Prompt:            s.promptBuilder.BuildYearsVerificationPrompt(resume, job, skills),
		Schema:            YearsVerificationSchema(),
		Temperature:       0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate years verification: %w", err)
	}

	var payload yearsPayload
	if err := parseJSONResponse(response, &payload); err != nil {
		return nil, err
	}

	// Skills the recount left out keep their original estimate.
	recounted := make(map[string]models.SkillYears, len(payload.Skills))
	for _, sk := range cleanSkillYears(payload.Skills) {
		recounted[strings.ToLower(sk.Skill)] = sk
	}
	merged := make([]models.SkillYears, 0, len(skills))
	for _, orig := range skills {
		if sk, ok := recounted[strings.ToLower(orig.Skill)]; ok {
			sk.Skill = orig.Skill
			sk.RequiredYears = orig.RequiredYears
			sk.MeetsRequirement = sk.EstimatedYears >= orig.RequiredYears
			merged = append(merged, sk)
			continue
		}
		merged = append(merged, orig)
	}

	v := gates.NewYearsVerification(merged)
	s.log.Info("years re-verified",
		zap.String("job_id", job.ID),
		zap.Int("skills", len(merged)),
		zap.Bool("overturned", v.Overturned))
	return v, nil
}

func normalizeAnalysis(a *models.Analysis) {
	a.Score = max(0, min(100, a.Score))

	r := &a.Recency
	r.RoleCount = max(0, min(maxRecencyRoles, r.RoleCount))
	r.MonthsSinceRelevantWork = max(0, r.MonthsSinceRelevantWork)
	r.SelfReportedPenalty = max(0, r.SelfReportedPenalty)

	if a.Experience.TotalProfessionalYears < 0 {
		a.Experience.TotalProfessionalYears = 0
	}
	a.Experience.Classification = models.ExperienceClass(strings.ToLower(strings.TrimSpace(string(a.Experience.Classification))))
	a.Experience.HighestRoleType = models.RoleType(strings.ToLower(strings.TrimSpace(string(a.Experience.HighestRoleType))))
}

func cleanSkillYears(in []models.SkillYears) []models.SkillYears {
	out := make([]models.SkillYears, 0, len(in))
	for _, s := range in {
		s.Skill = strings.TrimSpace(s.Skill)
		if s.Skill == "" {
			continue
		}
		if s.RequiredYears < 0 {
			s.RequiredYears = 0
		}
		if s.EstimatedYears < 0 {
			s.EstimatedYears = 0
		}
		out = append(out, s)
	}
	return out
}

func parseJSONResponse(response string, target any) error {
	jsonStr := extractJSON(response)
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

// extractJSON strips markdown fences and anything outside the outermost object.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}
