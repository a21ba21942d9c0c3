package engine

import (
	"testing"

	"assessment-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestNewBankValidatesQuestions(t *testing.T) {
	tests := []struct {
		name string
		q    domain.Question
	}{
		{"missing id", domain.Question{Options: []string{"a"}}},
		{"no options", domain.Question{ID: "q1"}},
		{"index out of range", domain.Question{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: 2}},
		{"negative index", domain.Question{ID: "q1", Options: []string{"a", "b"}, CorrectAnswer: -1}},
		{"text not an option", domain.Question{ID: "q1", Options: []string{"a", "b"}, CorrectText: "c"}},
		{"negative points", domain.Question{ID: "q1", Options: []string{"a"}, Points: -2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewBank([]domain.Question{tc.q})
			require.ErrorIs(t, err, domain.ErrMalformedAssessment)
		})
	}
}

func TestNewBankRejectsDuplicateIDs(t *testing.T) {
	_, err := NewBank([]domain.Question{
		{ID: "q1", Options: []string{"a"}},
		{ID: "q1", Options: []string{"b"}},
	})
	require.ErrorIs(t, err, domain.ErrMalformedAssessment)
}

func TestBankKeepsOrderAndCopiesInput(t *testing.T) {
	input := fourQuestions()
	b, err := NewBank(input)
	require.NoError(t, err)
	require.Equal(t, 4, b.Len())
	require.False(t, b.Empty())

	input[0].Options[0] = "mutated"
	require.Equal(t, "a", b.At(0).Options[0])

	q, idx, ok := b.Lookup("q3")
	require.True(t, ok)
	require.Equal(t, 2, idx)
	require.Equal(t, "q3", q.ID)

	_, _, ok = b.Lookup("nope")
	require.False(t, ok)

	pub := b.Public()
	require.Len(t, pub, 4)
	require.Equal(t, 1, pub[0].Points)
}

func TestEmptyBankIsNotAnError(t *testing.T) {
	b, err := NewBank(nil)
	require.NoError(t, err)
	require.True(t, b.Empty())
}

func TestLedgerOverwritesAnswers(t *testing.T) {
	l := NewLedger()
	l.Set("q1", domain.Answer{Index: 0})
	l.Set("q1", domain.Answer{Index: 2})
	l.Set("q2", domain.Answer{Text: "b"})

	require.Equal(t, 2, l.Len())
	a, ok := l.Get("q1")
	require.True(t, ok)
	require.Equal(t, 2, a.Index)

	snap := l.Snapshot()
	snap["q3"] = domain.Answer{}
	require.Equal(t, 2, l.Len())
}

func TestIntegrityMonitorCountsHiddenTransitions(t *testing.T) {
	m := startIntegrityMonitor()
	require.True(t, m.observe(true))
	require.False(t, m.observe(true))
	require.False(t, m.observe(false))
	require.True(t, m.observe(true))
	require.Equal(t, 2, m.violations)

	m.stop()
	m.observe(false)
	require.False(t, m.observe(true))
	require.Equal(t, 2, m.violations)
}
