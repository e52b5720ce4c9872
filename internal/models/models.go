package models

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&JobPosting{},
		&JobEmbedding{},
		&ScreeningRequest{},
		&MatchResult{},
		&FilterRecord{},
		&EscalationRecord{},
		&CycleLock{},
		&ScreeningSettings{},
	}
}
