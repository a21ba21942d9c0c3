package engine

import "assessment-service/internal/domain"

// Score is the scorer output.
type Score struct {
	RawScore            int  `json:"rawScore"`
	TotalPossiblePoints int  `json:"totalPossiblePoints"`
	Percentage          int  `json:"percentage"`
	Passed              bool `json:"passed"`
}

// ScoreAnswers computes the score of answers against questions. Unanswered questions earn nothing.
// Percentage rounds half up; passing is inclusive.
func ScoreAnswers(questions []domain.Question, answers map[string]domain.Answer, passingPercent int) (Score, error) {
	var s Score
	for _, q := range questions {
		w := q.Weight()
		s.TotalPossiblePoints += w
		if a, ok := answers[q.ID]; ok && q.IsCorrect(a) {
			s.RawScore += w
		}
	}
	if s.TotalPossiblePoints == 0 {
		return Score{}, domain.ErrEmptyAssessment
	}
	s.Percentage = roundPercent(s.RawScore, s.TotalPossiblePoints)
	s.Passed = s.Percentage >= passingPercent
	return s, nil
}

// roundPercent returns floor(100*num/den + 0.5) for non-negative operands.
func roundPercent(num, den int) int {
	return (200*num + den) / (2 * den)
}

// rawScore sums points of correctly answered questions; used for running feedback.
func rawScore(questions []domain.Question, l *Ledger) int {
	total := 0
	for _, q := range questions {
		if a, ok := l.Get(q.ID); ok && q.IsCorrect(a) {
			total += q.Weight()
		}
	}
	return total
}
