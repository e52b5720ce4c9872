package services

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"alfredoptarigan/applicant-screener/internal/models"
)

const matchSystemInstruction = `You are a senior technical recruiter screening candidates against open positions.
You are strict about years of experience and honest about gaps. You answer only with JSON
that follows the provided schema.`

const yearsSystemInstruction = `You are checking date arithmetic on a resume. Compute durations
from the stated start and end dates only. Do not guess dates that are not written.`

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildMatchPrompt creates the prompt for scoring one resume against one job
func (pb *PromptBuilder) BuildMatchPrompt(resume string, job *models.JobPosting) string {
	return fmt.Sprintf(`Evaluate how well the candidate fits the position below.

POSITION: %s
LOCATION: %s (%s)

JOB DESCRIPTION:
%s

CANDIDATE RESUME:
%s

Instructions:
1. Score the overall fit from 0 to 100. 85+ means a clear match, 60-84 partial, below 60 weak.
2. List the skills and the experience from the resume that match the job requirements.
3. Describe the gaps in 2-4 sentences.
4. For every requirement that states a number of years, add an entry to years_analysis with the
   required years, your estimate of the candidate's years for that skill and the calculation you
   used (for example "2019-03 to 2021-09 = 2.5y"). Only count paid professional roles.
5. For recency, judge whether the most recent role and the role before it are relevant to this
   job, how many months ago relevant work ended (0 if the current role is relevant) and a penalty
   from 0 to 30 you would apply for stale experience.
6. Classify the candidate as fresh_graduate, entry, mid or senior, give total professional years,
   and the highest role type held: internship, academic, professional or management.`,
		job.Title, job.Location, job.WorkMode, strings.TrimSpace(job.Description), strings.TrimSpace(resume))
}

// BuildYearsVerificationPrompt asks for a focused recount of the skills whose
// shortfall would cap the score.
func (pb *PromptBuilder) BuildYearsVerificationPrompt(resume string, job *models.JobPosting, skills []models.SkillYears) string {
	var lines []string
	for _, s := range skills {
		lines = append(lines, fmt.Sprintf("- %s: requires %gy, previous estimate %gy (%s)",
			s.Skill, s.RequiredYears, s.EstimatedYears, s.Calculation))
	}

	return fmt.Sprintf(`A previous review of this resume for the position "%s" estimated the following
years of experience:

%s

CANDIDATE RESUME:
%s

Recount the years for each listed skill from the role dates in the resume. Add up every
professional role where the skill was used, without double counting overlapping periods.
Return one entry per listed skill with the same skill name and required years, your recounted
estimate, whether it meets the requirement and the calculation.`,
		job.Title, strings.Join(lines, "\n"), strings.TrimSpace(resume))
}

func skillYearsSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"skill":             {Type: genai.TypeString},
			"required_years":    {Type: genai.TypeNumber},
			"estimated_years":   {Type: genai.TypeNumber},
			"meets_requirement": {Type: genai.TypeBoolean},
			"calculation":       {Type: genai.TypeString},
		},
		Required: []string{"skill", "required_years", "estimated_years", "meets_requirement", "calculation"},
	}
}

// MatchSchema is the response schema of BuildMatchPrompt.
func MatchSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score":              {Type: genai.TypeInteger},
			"summary":            {Type: genai.TypeString},
			"matched_skills":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"matched_experience": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"gaps":               {Type: genai.TypeString},
			"years_analysis":     {Type: genai.TypeArray, Items: skillYearsSchema()},
			"recency": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"role_count":                 {Type: genai.TypeInteger},
					"most_recent_role_relevant":  {Type: genai.TypeBoolean},
					"previous_role_relevant":     {Type: genai.TypeBoolean},
					"months_since_relevant_work": {Type: genai.TypeInteger},
					"self_reported_penalty":      {Type: genai.TypeInteger},
					"notes":                      {Type: genai.TypeString},
				},
				Required: []string{"role_count", "most_recent_role_relevant", "previous_role_relevant", "months_since_relevant_work", "self_reported_penalty"},
			},
			"experience": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"classification": {
						Type: genai.TypeString,
						Enum: []string{
							string(models.ExperienceFreshGraduate), string(models.ExperienceEntry),
							string(models.ExperienceMid), string(models.ExperienceSenior),
						},
					},
					"total_professional_years": {Type: genai.TypeNumber},
					"highest_role_type": {
						Type: genai.TypeString,
						Enum: []string{
							string(models.RoleInternship), string(models.RoleAcademic),
							string(models.RoleProfessional), string(models.RoleManagement),
						},
					},
				},
				Required: []string{"classification", "total_professional_years", "highest_role_type"},
			},
		},
		Required: []string{"score", "summary", "matched_skills", "matched_experience", "gaps", "years_analysis", "recency", "experience"},
	}
}

// YearsVerificationSchema is the response schema of BuildYearsVerificationPrompt.
func YearsVerificationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"skills": {Type: genai.TypeArray, Items: skillYearsSchema()},
		},
		Required: []string{"skills"},
	}
}
