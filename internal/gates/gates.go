// Package gates holds the deterministic corrections applied to a model score
// before it is persisted. Every gate is a pure function of the analysis: it
// may only lower the score, never below zero, and only appends to the gap text.
package gates

import (
	"fmt"
	"strings"

	"alfredoptarigan/applicant-screener/internal/models"
)

const (
	YearsCapShortfall     = 2.0
	YearsPenaltyShortfall = 1.0
	YearsCapScore         = 60
	YearsPenalty          = 15

	RecencyBothUnrelatedPenalty = 20
	RecencyStalePenalty         = 12
	RecencyStaleMonths          = 12

	SeniorRequirementYears = 3.0
	JuniorCapScore         = 55
	InternshipCapScore     = 65
	InternshipMinProYears  = 1.0
)

type Gate string

const (
	GateYearsCap             Gate = "years_cap"
	GateYearsPenalty         Gate = "years_penalty"
	GateRecencyBothUnrelated Gate = "recency_both_unrelated"
	GateRecencyStale         Gate = "recency_stale"
	GateJuniorCap            Gate = "experience_junior_cap"
	GateInternshipYears      Gate = "experience_internship_years"
	GateInternshipCap        Gate = "experience_internship_cap"
)

// YearsVerification is the result of the focused arithmetic re-check run
// before a years cap is finalised.
type YearsVerification struct {
	Skills     []models.SkillYears `json:"skills"`
	Overturned bool                `json:"overturned"`
}

// NewYearsVerification marks the cap as overturned when every re-verified
// skill is now short by less than the cap shortfall.
func NewYearsVerification(skills []models.SkillYears) *YearsVerification {
	v := &YearsVerification{Skills: skills}
	if len(skills) == 0 {
		return v
	}
	t, _ := yearsTierOf(skills)
	v.Overturned = t != tierCap
	return v
}

type Input struct {
	Analysis     models.Analysis
	Verification *YearsVerification
}

type Result struct {
	RawScore        int
	FinalScore      int
	Gaps            string
	Applied         []Gate
	YearsOverturned bool
}

func (r Result) AppliedNames() []string {
	names := make([]string, len(r.Applied))
	for i, g := range r.Applied {
		names[i] = string(g)
	}
	return names
}

// Apply runs years, recency and experience-floor gates in that order.
// The result depends only on the input, so re-applying it is a no-op.
func Apply(in Input) Result {
	a := in.Analysis
	raw := clampScore(a.Score)
	res := &Result{RawScore: raw, FinalScore: raw, Gaps: a.Gaps}

	applyYears(res, a.YearsAnalysis, in.Verification)
	applyRecency(res, a.Recency)
	applyExperienceFloor(res, a)

	return *res
}

// NeedsYearsVerification reports whether the analysis would trigger the years cap.
func NeedsYearsVerification(a models.Analysis) bool {
	t, _ := yearsTierOf(a.YearsAnalysis)
	return t == tierCap
}

type yearsTier int

const (
	tierNone yearsTier = iota
	tierPenalty
	tierCap
)

func yearsTierOf(skills []models.SkillYears) (yearsTier, models.SkillYears) {
	var worst models.SkillYears
	top := 0.0
	for _, s := range skills {
		if sf := s.Shortfall(); sf > top {
			top = sf
			worst = s
		}
	}
	switch {
	case top >= YearsCapShortfall:
		return tierCap, worst
	case top >= YearsPenaltyShortfall:
		return tierPenalty, worst
	default:
		return tierNone, worst
	}
}

func applyYears(res *Result, skills []models.SkillYears, v *YearsVerification) {
	tier, worst := yearsTierOf(skills)
	switch tier {
	case tierCap:
		if v != nil && v.Overturned {
			res.YearsOverturned = true
			return
		}
		res.tighten(GateYearsCap, YearsCapScore, fmt.Sprintf(
			"Years gap: %s requires %gy, estimated %gy (%.1fy short); score capped at %d.",
			worst.Skill, worst.RequiredYears, worst.EstimatedYears, worst.Shortfall(), YearsCapScore))
	case tierPenalty:
		res.tighten(GateYearsPenalty, res.FinalScore-YearsPenalty, fmt.Sprintf(
			"Years gap: %s requires %gy, estimated %gy (%.1fy short); -%d.",
			worst.Skill, worst.RequiredYears, worst.EstimatedYears, worst.Shortfall(), YearsPenalty))
	}
}

func applyRecency(res *Result, r models.RecencyAnalysis) {
	if r.RoleCount <= 0 || r.MostRecentRoleRelevant {
		return
	}
	if r.RoleCount >= 2 && !r.PreviousRoleRelevant {
		p := max(RecencyBothUnrelatedPenalty, r.SelfReportedPenalty)
		res.tighten(GateRecencyBothUnrelated, res.FinalScore-p,
			fmt.Sprintf("Recency: the two most recent roles are unrelated to this job; -%d.", p))
		return
	}
	if r.MonthsSinceRelevantWork >= RecencyStaleMonths {
		p := max(RecencyStalePenalty, r.SelfReportedPenalty)
		res.tighten(GateRecencyStale, res.FinalScore-p,
			fmt.Sprintf("Recency: most recent role is unrelated and relevant work ended %d months ago; -%d.",
				r.MonthsSinceRelevantWork, p))
	}
}

func applyExperienceFloor(res *Result, a models.Analysis) {
	exp := a.Experience
	senior := seniorRequirement(a.YearsAnalysis)

	if (exp.Classification == models.ExperienceFreshGraduate || exp.Classification == models.ExperienceEntry) && senior > 0 {
		res.tighten(GateJuniorCap, JuniorCapScore, fmt.Sprintf(
			"Experience: %s profile against a %gy requirement; score capped at %d.",
			strings.ReplaceAll(string(exp.Classification), "_", " "), senior, JuniorCapScore))
	}

	if !exp.InternshipOnly() {
		return
	}

	original, _ := yearsTierOf(a.YearsAnalysis)
	corrected := make([]models.SkillYears, len(a.YearsAnalysis))
	for i, s := range a.YearsAnalysis {
		if s.RequiredYears >= SeniorRequirementYears {
			s.MeetsRequirement = false
		}
		corrected[i] = s
	}
	tier, worst := yearsTierOf(corrected)
	if tier > original {
		reason := fmt.Sprintf("Experience: internship/academic work does not meet the %gy %s requirement", worst.RequiredYears, worst.Skill)
		switch tier {
		case tierCap:
			res.tighten(GateInternshipYears, YearsCapScore, fmt.Sprintf("%s; score capped at %d.", reason, YearsCapScore))
		case tierPenalty:
			res.tighten(GateInternshipYears, res.FinalScore-YearsPenalty, fmt.Sprintf("%s; -%d.", reason, YearsPenalty))
		}
	}

	if exp.TotalProfessionalYears < InternshipMinProYears {
		res.tighten(GateInternshipCap, InternshipCapScore, fmt.Sprintf(
			"Experience: internship/academic only with under %gy of professional work; score capped at %d.",
			InternshipMinProYears, InternshipCapScore))
	}
}

// seniorRequirement returns the largest required years at or above the
// senior threshold, or 0.
func seniorRequirement(skills []models.SkillYears) float64 {
	top := 0.0
	for _, s := range skills {
		if s.RequiredYears >= SeniorRequirementYears && s.RequiredYears > top {
			top = s.RequiredYears
		}
	}
	return top
}

func (r *Result) tighten(g Gate, candidate int, reason string) {
	if candidate < r.FinalScore {
		r.FinalScore = candidate
	}
	if r.FinalScore < 0 {
		r.FinalScore = 0
	}
	r.Applied = append(r.Applied, g)
	r.Gaps = appendReason(r.Gaps, reason)
}

func appendReason(gaps, reason string) string {
	gaps = strings.TrimSpace(gaps)
	if strings.Contains(gaps, reason) {
		return gaps
	}
	if gaps == "" {
		return reason
	}
	return gaps + "\n" + reason
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
