package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/applicant-screener/internal/models"
)

const validAnalysis = "```json\n" + `{
  "score": 72.6,
  "summary": " Solid backend engineer ",
  "matched_skills": ["Go", "PostgreSQL"],
  "matched_experience": ["Payments platform"],
  "gaps": "No Kubernetes",
  "years_analysis": [
    {"skill": "Go", "required_years": 3, "estimated_years": 4, "meets_requirement": true, "calculation": "2019-2023"},
    {"skill": "  ", "required_years": 1, "estimated_years": 0}
  ],
  "recency": {"role_count": 5, "most_recent_role_relevant": true, "previous_role_relevant": true, "months_since_relevant_work": -3},
  "experience": {"classification": " Senior ", "total_professional_years": 6, "highest_role_type": "Professional"}
}` + "\n```"

func TestAnalyzeParsesAndNormalizes(t *testing.T) {
	llm := &fakeLLM{respond: func(StructuredRequest) (string, error) { return validAnalysis, nil }}
	j := testJob("j1", "Backend engineer")

	a, err := NewScorer(llm, nil).Analyze(context.Background(), "resume", &j, "flash")
	require.NoError(t, err)

	assert.Equal(t, 73, a.Score)
	assert.Equal(t, "Solid backend engineer", a.Summary)
	assert.Equal(t, "flash", a.Model)
	require.Len(t, a.YearsAnalysis, 1, "blank skills are dropped")
	assert.Equal(t, "Go", a.YearsAnalysis[0].Skill)
	assert.Equal(t, 2, a.Recency.RoleCount)
	assert.Equal(t, 0, a.Recency.MonthsSinceRelevantWork)
	assert.Equal(t, models.ExperienceSenior, a.Experience.Classification)
	assert.Equal(t, models.RoleProfessional, a.Experience.HighestRoleType)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "flash", req.Model)
	assert.NotNil(t, req.Schema)
	assert.Contains(t, req.Prompt, "Backend engineer")
}

func TestAnalyzeClampsScore(t *testing.T) {
	llm := &fakeLLM{respond: func(StructuredRequest) (string, error) {
		return `{"score": 130, "recency": {}, "experience": {}}`, nil
	}}
	j := testJob("j1", "desc")

	a, err := NewScorer(llm, nil).Analyze(context.Background(), "resume", &j, "flash")
	require.NoError(t, err)
	assert.Equal(t, 100, a.Score)
}

func TestAnalyzeMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"not json":           "I think the candidate is great",
		"missing score":      `{"summary": "ok", "recency": {}, "experience": {}}`,
		"missing recency":    `{"score": 50, "experience": {}}`,
		"missing experience": `{"score": 50, "recency": {}}`,
		"truncated":          `{"score": 50, "summary": "cut off`,
		"score wrong type":   `{"score": "high", "recency": {}, "experience": {}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			llm := &fakeLLM{respond: func(StructuredRequest) (string, error) { return body, nil }}
			j := testJob("j1", "desc")
			_, err := NewScorer(llm, nil).Analyze(context.Background(), "resume", &j, "flash")
			assert.True(t, errors.Is(err, ErrMalformedOutput), "got %v", err)
		})
	}
}

func TestAnalyzeKeepsQuotaErrors(t *testing.T) {
	llm := &fakeLLM{respond: func(StructuredRequest) (string, error) { return "", errQuota }}
	j := testJob("j1", "desc")

	_, err := NewScorer(llm, nil).Analyze(context.Background(), "resume", &j, "flash")
	require.Error(t, err)
	assert.True(t, IsQuotaError(err))
	assert.False(t, errors.Is(err, ErrMalformedOutput))
}

func TestVerifyYearsMergesRecount(t *testing.T) {
	skills := []models.SkillYears{
		{Skill: "Go", RequiredYears: 5, EstimatedYears: 2},
		{Skill: "Kubernetes", RequiredYears: 3, EstimatedYears: 0.5},
	}
	j := testJob("j1", "desc")

	t.Run("partial recount keeps cap", func(t *testing.T) {
		llm := &fakeLLM{respond: func(StructuredRequest) (string, error) {
			return `{"skills": [{"skill": "go", "required_years": 1, "estimated_years": 4.5, "calculation": "2019-2023 + 2024"}]}`, nil
		}}
		v, err := NewScorer(llm, nil).VerifyYears(context.Background(), "resume", &j, skills, "flash")
		require.NoError(t, err)
		require.Len(t, v.Skills, 2)

		assert.Equal(t, "Go", v.Skills[0].Skill)
		assert.Equal(t, 5.0, v.Skills[0].RequiredYears, "required years are not the model's to change")
		assert.Equal(t, 4.5, v.Skills[0].EstimatedYears)
		assert.False(t, v.Skills[0].MeetsRequirement)
		assert.Equal(t, 0.5, v.Skills[1].EstimatedYears)
		assert.False(t, v.Overturned)

		require.Len(t, llm.requests, 1)
		assert.Zero(t, llm.requests[0].Temperature)
	})

	t.Run("full recount overturns", func(t *testing.T) {
		llm := &fakeLLM{respond: func(StructuredRequest) (string, error) {
			return `{"skills": [
				{"skill": "Go", "estimated_years": 5},
				{"skill": "KUBERNETES", "estimated_years": 2}
			]}`, nil
		}}
		v, err := NewScorer(llm, nil).VerifyYears(context.Background(), "resume", &j, skills, "flash")
		require.NoError(t, err)
		assert.True(t, v.Skills[0].MeetsRequirement)
		assert.True(t, v.Overturned)
	})
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("Here you go:\n```json\n{\"a\":1}\n```\nThanks"))
	assert.Equal(t, "plain", extractJSON("  plain  "))
}
