package engine

import "assessment-service/internal/domain"

// Ledger records at most one answer per question. Later selections overwrite earlier ones.
type Ledger struct {
	answers map[string]domain.Answer
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{answers: make(map[string]domain.Answer)}
}

// Set upserts the answer for a question.
func (l *Ledger) Set(questionID string, a domain.Answer) {
	l.answers[questionID] = a
}

// Get returns the recorded answer for a question, if any.
func (l *Ledger) Get(questionID string) (domain.Answer, bool) {
	a, ok := l.answers[questionID]
	return a, ok
}

// Len reports how many questions have an answer.
func (l *Ledger) Len() int { return len(l.answers) }

// Snapshot copies the ledger contents.
func (l *Ledger) Snapshot() map[string]domain.Answer {
	out := make(map[string]domain.Answer, len(l.answers))
	for k, v := range l.answers {
		out[k] = v
	}
	return out
}
