package engine

import (
	"fmt"

	"assessment-service/internal/domain"
)

// Bank is the ordered, immutable question set of one assessment.
type Bank struct {
	questions []domain.Question
	index     map[string]int
}

// NewBank validates and copies questions. An empty set yields an empty bank, which the
// controller reports as unavailable.
func NewBank(questions []domain.Question) (*Bank, error) {
	b := &Bank{
		questions: make([]domain.Question, len(questions)),
		index:     make(map[string]int, len(questions)),
	}
	for i, q := range questions {
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		if _, dup := b.index[q.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate question id %q", domain.ErrMalformedAssessment, q.ID)
		}
		q.Options = append([]string(nil), q.Options...)
		b.questions[i] = q
		b.index[q.ID] = i
	}
	return b, nil
}

func validateQuestion(q domain.Question) error {
	if q.ID == "" {
		return fmt.Errorf("%w: question without id", domain.ErrMalformedAssessment)
	}
	if len(q.Options) == 0 {
		return fmt.Errorf("%w: question %q has no options", domain.ErrMalformedAssessment, q.ID)
	}
	if q.Points < 0 {
		return fmt.Errorf("%w: question %q has negative points", domain.ErrMalformedAssessment, q.ID)
	}
	if q.CorrectText != "" {
		for _, opt := range q.Options {
			if opt == q.CorrectText {
				return nil
			}
		}
		return fmt.Errorf("%w: question %q correct text is not an option", domain.ErrMalformedAssessment, q.ID)
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("%w: question %q correct answer out of range", domain.ErrMalformedAssessment, q.ID)
	}
	return nil
}

// Len returns the number of questions.
func (b *Bank) Len() int { return len(b.questions) }

// Empty reports whether the bank has nothing to play.
func (b *Bank) Empty() bool { return len(b.questions) == 0 }

// At returns the question at position i.
func (b *Bank) At(i int) domain.Question { return b.questions[i] }

// Lookup finds a question by id.
func (b *Bank) Lookup(id string) (domain.Question, int, bool) {
	i, ok := b.index[id]
	if !ok {
		return domain.Question{}, -1, false
	}
	return b.questions[i], i, true
}

// Public returns the questions without answer keys.
func (b *Bank) Public() []domain.PublicQuestion {
	out := make([]domain.PublicQuestion, len(b.questions))
	for i, q := range b.questions {
		out[i] = q.Public()
	}
	return out
}
