package models

type ExperienceClass string

const (
	ExperienceFreshGraduate ExperienceClass = "fresh_graduate"
	ExperienceEntry         ExperienceClass = "entry"
	ExperienceMid           ExperienceClass = "mid"
	ExperienceSenior        ExperienceClass = "senior"
)

type RoleType string

const (
	RoleInternship   RoleType = "internship"
	RoleAcademic     RoleType = "academic"
	RoleProfessional RoleType = "professional"
	RoleManagement   RoleType = "management"
)

// SkillYears is the model's years-of-experience estimate for one required skill.
type SkillYears struct {
	Skill            string  `json:"skill"`
	RequiredYears    float64 `json:"required_years"`
	EstimatedYears   float64 `json:"estimated_years"`
	MeetsRequirement bool    `json:"meets_requirement"`
	Calculation      string  `json:"calculation"`
}

// Shortfall is required minus estimated years, or zero when the skill is
// flagged as meeting the requirement.
func (s SkillYears) Shortfall() float64 {
	if s.MeetsRequirement {
		return 0
	}
	d := s.RequiredYears - s.EstimatedYears
	if d < 0 {
		return 0
	}
	return d
}

type RecencyAnalysis struct {
	// RoleCount is how many of the two most recent roles were assessed (0-2).
	RoleCount               int    `json:"role_count"`
	MostRecentRoleRelevant  bool   `json:"most_recent_role_relevant"`
	PreviousRoleRelevant    bool   `json:"previous_role_relevant"`
	MonthsSinceRelevantWork int    `json:"months_since_relevant_work"`
	SelfReportedPenalty     int    `json:"self_reported_penalty"`
	Notes                   string `json:"notes,omitempty"`
}

type ExperienceLevel struct {
	Classification         ExperienceClass `json:"classification"`
	TotalProfessionalYears float64         `json:"total_professional_years"`
	HighestRoleType        RoleType        `json:"highest_role_type"`
}

// InternshipOnly is true when the candidate never held a professional role.
func (e ExperienceLevel) InternshipOnly() bool {
	return e.HighestRoleType == RoleInternship || e.HighestRoleType == RoleAcademic
}

// Analysis is the structured output of one scoring call for a (resume, job) pair.
type Analysis struct {
	Score             int             `json:"score"`
	Summary           string          `json:"summary"`
	MatchedSkills     []string        `json:"matched_skills"`
	MatchedExperience []string        `json:"matched_experience"`
	Gaps              string          `json:"gaps"`
	YearsAnalysis     []SkillYears    `json:"years_analysis"`
	Recency           RecencyAnalysis `json:"recency"`
	Experience        ExperienceLevel `json:"experience"`
	Model             string          `json:"model,omitempty"`
}

// Evidence is the JSON payload persisted alongside a MatchResult.
type Evidence struct {
	MatchedSkills     []string        `json:"matched_skills"`
	MatchedExperience []string        `json:"matched_experience"`
	YearsAnalysis     []SkillYears    `json:"years_analysis"`
	Recency           RecencyAnalysis `json:"recency"`
	Experience        ExperienceLevel `json:"experience"`
	AppliedGates      []string        `json:"applied_gates,omitempty"`
	YearsVerified     bool            `json:"years_verified,omitempty"`
	YearsOverturned   bool            `json:"years_overturned,omitempty"`
}
