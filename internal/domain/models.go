package domain

import "time"

// DefaultPassingScorePercent applies when an assessment does not configure a passing score.
const DefaultPassingScorePercent = 70

// Question models a multiple-choice question. The correct answer is an option index unless
// CorrectText is set, in which case the option text must match exactly.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	CorrectText   string   `json:"correctText,omitempty"`
	Points        int      `json:"points,omitempty"` // defaults to 1 if zero
}

// Weight returns the question's points, defaulting to 1.
func (q Question) Weight() int {
	if q.Points == 0 {
		return 1
	}
	return q.Points
}

// IsCorrect reports whether the answer matches the question's key.
func (q Question) IsCorrect(a Answer) bool {
	if q.CorrectText != "" {
		text := a.Text
		if text == "" && a.Index >= 0 && a.Index < len(q.Options) {
			text = q.Options[a.Index]
		}
		return text == q.CorrectText
	}
	idx := a.Index
	if a.Text != "" {
		idx = -1
		for i, opt := range q.Options {
			if opt == a.Text {
				idx = i
				break
			}
		}
	}
	return idx == q.CorrectAnswer
}

// Public strips the answer key so the question can be sent to learners.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Points: q.Weight()}
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Points  int      `json:"points"`
}

// Answer is a learner's selection. Text wins over Index when non-empty.
type Answer struct {
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
}

// AssessmentConfig is everything needed to run one assessment for a scope.
type AssessmentConfig struct {
	Scope               string     `json:"scope"`
	Title               string     `json:"title,omitempty"`
	TimeLimitSeconds    int        `json:"timeLimitSeconds"`
	PassingScorePercent *int       `json:"passingScorePercent,omitempty"`
	Questions           []Question `json:"questions"`
}

// PassingScore returns the configured passing score or the default.
func (c AssessmentConfig) PassingScore() int {
	if c.PassingScorePercent == nil {
		return DefaultPassingScorePercent
	}
	return *c.PassingScorePercent
}

// Status is the lifecycle state of an assessment session.
type Status string

const (
	StatusUnavailable Status = "unavailable"
	StatusNotStarted  Status = "not_started"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
)

// SubmitReason records what ended a session.
type SubmitReason string

const (
	ReasonManual      SubmitReason = "manual"
	ReasonTimeExpired SubmitReason = "time_expired"
	ReasonCompleted   SubmitReason = "completed"
)

// AssessmentResult is the immutable outcome of one session.
type AssessmentResult struct {
	RawScore                int               `json:"rawScore"`
	TotalPossiblePoints     int               `json:"totalPossiblePoints"`
	Percentage              int               `json:"percentage"`
	Passed                  bool              `json:"passed"`
	PassingScorePercent     int               `json:"passingScorePercent"`
	TimeTakenSeconds        int               `json:"timeTakenSeconds"`
	IntegrityViolationCount int               `json:"integrityViolationCount"`
	Answers                 map[string]Answer `json:"answers"`
	Reason                  SubmitReason      `json:"reason"`
	SubmittedAt             time.Time         `json:"submittedAt"`
}

// AttemptRecord is a persisted result keyed by (learner, scope, attempt).
type AttemptRecord struct {
	LearnerID string           `json:"learnerId"`
	Scope     string           `json:"scope"`
	Attempt   int              `json:"attempt"`
	Result    AssessmentResult `json:"result"`
}

// History summarises a learner's prior attempts on a scope.
type History struct {
	LearnerID      string          `json:"learnerId"`
	Scope          string          `json:"scope"`
	Attempts       []AttemptRecord `json:"attempts"`
	AttemptCount   int             `json:"attemptCount"`
	BestPercentage int             `json:"bestPercentage"`
	BestPassed     bool            `json:"bestPassed"`
}

// NewHistory derives the summary fields from the attempts.
func NewHistory(learnerID, scope string, attempts []AttemptRecord) History {
	h := History{LearnerID: learnerID, Scope: scope, Attempts: attempts, AttemptCount: len(attempts)}
	if h.Attempts == nil {
		h.Attempts = []AttemptRecord{}
	}
	for _, a := range attempts {
		if a.Result.Percentage > h.BestPercentage {
			h.BestPercentage = a.Result.Percentage
		}
		if a.Result.Passed {
			h.BestPassed = true
		}
	}
	return h
}
