package domain

import "errors"

var (
	// ErrConfiguration is returned when an assessment cannot be played with its current settings
	// (non-positive time limit, passing score outside [0,100]).
	ErrConfiguration = errors.New("invalid assessment configuration")
	// ErrInvalidQuestionID indicates the caller referenced a question outside the loaded bank.
	ErrInvalidQuestionID = errors.New("question not in assessment")
	// ErrLoadFailed wraps any failure to load assessment content; callers may retry.
	ErrLoadFailed = errors.New("assessment load failed")
	// ErrPersistFailed wraps any failure to store a completed result.
	ErrPersistFailed = errors.New("assessment result persist failed")
	// ErrAssessmentNotFound is returned by loaders when no assessment is attached to a scope.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrAssessmentUnavailable means the scope has no playable questions.
	ErrAssessmentUnavailable = errors.New("no assessment available")
	// ErrMalformedAssessment indicates loaded content violates question invariants.
	ErrMalformedAssessment = errors.New("malformed assessment")
	// ErrEmptyAssessment is returned when scoring is attempted with zero possible points.
	ErrEmptyAssessment = errors.New("assessment has no scorable questions")
	// ErrInvalidTransition is returned when an operation is not valid in the session's state.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrNavigationDisabled is returned by free navigation in immediate-feedback sessions.
	ErrNavigationDisabled = errors.New("navigation disabled for this session")
	// ErrNotCurrentQuestion is returned when an immediate-feedback answer targets another question.
	ErrNotCurrentQuestion = errors.New("question is not the current question")
	// ErrAnswerLocked is returned when feedback for the question has already been shown.
	ErrAnswerLocked = errors.New("answer already locked")
	// ErrSessionNotFound is returned when an assessment session is unknown.
	ErrSessionNotFound = errors.New("assessment session not found")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("assessment session closed")
	// ErrServiceClosed is returned when a session is opened during shutdown.
	ErrServiceClosed = errors.New("assessment service is shutting down")
)
