package engine

import (
	"fmt"
	"testing"

	"assessment-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func fourQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 0},
		{ID: "q2", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 1},
		{ID: "q3", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2},
		{ID: "q4", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 3},
	}
}

func TestScoreAnswersCountsOnlyCorrectAnswers(t *testing.T) {
	answers := map[string]domain.Answer{
		"q1": {Index: 0},
		"q2": {Index: 1},
		"q3": {Index: 9},
	}

	got, err := ScoreAnswers(fourQuestions(), answers, 70)
	require.NoError(t, err)
	require.Equal(t, Score{RawScore: 2, TotalPossiblePoints: 4, Percentage: 50, Passed: false}, got)
}

func TestScoreAnswersPassingBoundaryIsInclusive(t *testing.T) {
	questions := make([]domain.Question, 0, 100)
	answers := map[string]domain.Answer{}
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("q%d", i)
		questions = append(questions, domain.Question{ID: id, Options: []string{"x", "y"}, CorrectAnswer: 1})
		if i < 70 {
			answers[id] = domain.Answer{Index: 1}
		}
	}

	got, err := ScoreAnswers(questions, answers, 70)
	require.NoError(t, err)
	require.Equal(t, 70, got.Percentage)
	require.True(t, got.Passed)

	delete(answers, questions[0].ID)
	got, err = ScoreAnswers(questions, answers, 70)
	require.NoError(t, err)
	require.Equal(t, 69, got.Percentage)
	require.False(t, got.Passed)
}

func TestScoreAnswersWeightsAndRounding(t *testing.T) {
	tests := []struct {
		name    string
		qs      []domain.Question
		answers map[string]domain.Answer
		raw     int
		total   int
		pct     int
	}{
		{
			name: "two of three rounds up",
			qs: []domain.Question{
				{ID: "a", Options: []string{"x", "y"}, CorrectAnswer: 0},
				{ID: "b", Options: []string{"x", "y"}, CorrectAnswer: 0},
				{ID: "c", Options: []string{"x", "y"}, CorrectAnswer: 0},
			},
			answers: map[string]domain.Answer{"a": {Index: 0}, "b": {Index: 0}},
			raw: 2, total: 3, pct: 67,
		},
		{
			name: "one of three rounds down",
			qs: []domain.Question{
				{ID: "a", Options: []string{"x", "y"}, CorrectAnswer: 0},
				{ID: "b", Options: []string{"x", "y"}, CorrectAnswer: 0},
				{ID: "c", Options: []string{"x", "y"}, CorrectAnswer: 0},
			},
			answers: map[string]domain.Answer{"a": {Index: 0}},
			raw: 1, total: 3, pct: 33,
		},
		{
			name: "half point rounds up",
			qs: []domain.Question{
				{ID: "a", Options: []string{"x", "y"}, CorrectAnswer: 0, Points: 1},
				{ID: "b", Options: []string{"x", "y"}, CorrectAnswer: 0, Points: 7},
			},
			answers: map[string]domain.Answer{"a": {Index: 0}, "b": {Index: 1}},
			raw: 1, total: 8, pct: 13,
		},
		{
			name: "weighted question",
			qs: []domain.Question{
				{ID: "a", Options: []string{"x", "y"}, CorrectAnswer: 1, Points: 3},
				{ID: "b", Options: []string{"x", "y"}, CorrectAnswer: 0},
			},
			answers: map[string]domain.Answer{"a": {Index: 1}},
			raw: 3, total: 4, pct: 75,
		},
		{
			name: "exact text variant",
			qs: []domain.Question{
				{ID: "a", Options: []string{"Paris", "Rome"}, CorrectText: "Paris"},
				{ID: "b", Options: []string{"Paris", "Rome"}, CorrectText: "Rome"},
			},
			answers: map[string]domain.Answer{"a": {Text: "Paris"}, "b": {Index: 1}},
			raw: 2, total: 2, pct: 100,
		},
		{
			name:    "nothing answered",
			qs:      fourQuestions(),
			answers: map[string]domain.Answer{},
			raw: 0, total: 4, pct: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScoreAnswers(tc.qs, tc.answers, 70)
			require.NoError(t, err)
			require.Equal(t, tc.raw, got.RawScore)
			require.Equal(t, tc.total, got.TotalPossiblePoints)
			require.Equal(t, tc.pct, got.Percentage)
			require.Equal(t, tc.pct >= 70, got.Passed)
		})
	}
}

func TestScoreAnswersRejectsEmptyQuestionSet(t *testing.T) {
	_, err := ScoreAnswers(nil, map[string]domain.Answer{}, 70)
	require.ErrorIs(t, err, domain.ErrEmptyAssessment)
}
