package models

import "time"

type CycleOutcomeResponse struct {
	Outcome    string   `json:"outcome"`
	Requests   int      `json:"requests"`
	Recovered  int      `json:"recovered"`
	Notified   int      `json:"notified"`
	Deferred   int      `json:"deferred"`
	BreakerHit bool     `json:"breaker_tripped"`
	Errors     []string `json:"errors,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

type LockStatusResponse struct {
	InProgress bool       `json:"in_progress"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	Stale      bool       `json:"stale"`
}

type RequestResponse struct {
	Request *ScreeningRequest `json:"request"`
	Matches []MatchResult     `json:"matches"`
}

// SettingsPatch carries a partial update of ScreeningSettings. Nil fields are left unchanged.
type SettingsPatch struct {
	ScreeningEnabled        *bool           `json:"screening_enabled"`
	QualificationThreshold  *int            `json:"qualification_threshold"`
	JobThresholds           *map[string]int `json:"job_thresholds"`
	SimilarityThreshold     *float64        `json:"similarity_threshold"`
	SimilarityFilterEnabled *bool           `json:"similarity_filter_enabled"`
	ScoringModel            *string         `json:"scoring_model"`
	EscalationModel         *string         `json:"escalation_model"`
	EscalationLow           *int            `json:"escalation_low"`
	EscalationHigh          *int            `json:"escalation_high"`
	BatchSize               *int            `json:"batch_size"`
	SafeguardTopN           *int            `json:"safeguard_top_n"`
	BacklogCutoff           *time.Time      `json:"backlog_cutoff"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
