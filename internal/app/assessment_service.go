package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"assessment-service/internal/engine"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// SessionRepository abstracts how live assessment sessions are tracked (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
	List() []*Session
}

// AssessmentRepository loads assessment content for a scope (from cache/backing store).
type AssessmentRepository interface {
	GetAssessment(ctx context.Context, scope string) (domain.AssessmentConfig, error)
}

// ResultRepository stores completed attempts and reads them back as history.
type ResultRepository interface {
	// SaveResult assigns the next attempt number for (learner, scope) and stores the record.
	SaveResult(ctx context.Context, record domain.AttemptRecord) (domain.AttemptRecord, error)
	ListResults(ctx context.Context, learnerID, scope string) ([]domain.AttemptRecord, error)
}

// EventPublisher announces completed attempts to other services.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, record domain.AttemptRecord) error
}

// Option configures an AssessmentService.
type Option func(*AssessmentService)

func WithClock(clock clockwork.Clock) Option {
	return func(s *AssessmentService) { s.clock = clock }
}

func WithTiming(tick, feedbackDelay time.Duration) Option {
	return func(s *AssessmentService) {
		s.tickInterval = tick
		s.feedbackDelay = feedbackDelay
	}
}

func WithPersistTimeout(d time.Duration) Option {
	return func(s *AssessmentService) { s.persistTimeout = d }
}

func WithPublisher(p EventPublisher) Option {
	return func(s *AssessmentService) { s.publisher = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *AssessmentService) { s.log = l }
}

// AssessmentService contains the assessment use cases: opening sessions, persisting results
// and reading history.
type AssessmentService struct {
	sessions    SessionRepository
	assessments AssessmentRepository
	results     ResultRepository
	publisher   EventPublisher
	log         logrus.FieldLogger

	clock          clockwork.Clock
	tickInterval   time.Duration
	feedbackDelay  time.Duration
	persistTimeout time.Duration

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

func NewAssessmentService(sessions SessionRepository, assessments AssessmentRepository, results ResultRepository, opts ...Option) *AssessmentService {
	s := &AssessmentService{
		sessions:       sessions,
		assessments:    assessments,
		results:        results,
		log:            logrus.StandardLogger(),
		clock:          clockwork.NewRealClock(),
		persistTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Session binds a controller to the learner and scope it was opened for.
type Session struct {
	ID         string
	LearnerID  string
	Scope      string
	OpenedAt   time.Time
	Controller *engine.Controller
}

// AssessmentSummary describes a scope's assessment without answer keys.
type AssessmentSummary struct {
	Scope               string                  `json:"scope"`
	Title               string                  `json:"title,omitempty"`
	Available           bool                    `json:"available"`
	TimeLimitSeconds    int                     `json:"timeLimitSeconds"`
	PassingScorePercent int                     `json:"passingScorePercent"`
	QuestionCount       int                     `json:"questionCount"`
	Questions           []domain.PublicQuestion `json:"questions"`
}

// Open loads the scope's assessment and creates a session for the learner. A scope without
// questions yields a session in the unavailable condition; load failures create nothing.
func (s *AssessmentService) Open(ctx context.Context, learnerID, scope string, mode engine.Mode) (*Session, error) {
	cfg, err := s.load(ctx, scope)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		Scope:     scope,
		OpenedAt:  s.clock.Now(),
	}
	ctrl, err := engine.NewController(cfg, engine.Options{
		Mode:          mode,
		TickInterval:  s.tickInterval,
		FeedbackDelay: s.feedbackDelay,
		Clock:         s.clock,
		OnComplete: func(res domain.AssessmentResult) {
			s.persistAsync(session, res)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scope %s: %w", domain.ErrLoadFailed, scope, err)
	}
	session.Controller = ctrl

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ctrl.Close()
		return nil, domain.ErrServiceClosed
	}
	s.sessions.Put(session)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"session": session.ID,
		"learner": learnerID,
		"scope":   scope,
		"mode":    mode,
	}).Info("assessment session opened")
	return session, nil
}

// Get returns a live session.
func (s *AssessmentService) Get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Close abandons a session and drops it from the repository.
func (s *AssessmentService) Close(id string) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return
	}
	session.Controller.Close()
	s.sessions.Delete(id)
}

// Describe returns the learner-safe view of a scope's assessment.
func (s *AssessmentService) Describe(ctx context.Context, scope string) (AssessmentSummary, error) {
	cfg, err := s.load(ctx, scope)
	if err != nil {
		return AssessmentSummary{}, err
	}
	bank, err := engine.NewBank(cfg.Questions)
	if err != nil {
		return AssessmentSummary{}, fmt.Errorf("%w: scope %s: %w", domain.ErrLoadFailed, scope, err)
	}
	return AssessmentSummary{
		Scope:               scope,
		Title:               cfg.Title,
		Available:           !bank.Empty(),
		TimeLimitSeconds:    cfg.TimeLimitSeconds,
		PassingScorePercent: cfg.PassingScore(),
		QuestionCount:       bank.Len(),
		Questions:           bank.Public(),
	}, nil
}

// History reads prior attempts for a learner and scope.
func (s *AssessmentService) History(ctx context.Context, learnerID, scope string) (domain.History, error) {
	records, err := s.results.ListResults(ctx, learnerID, scope)
	if err != nil {
		return domain.History{}, err
	}
	return domain.NewHistory(learnerID, scope, records), nil
}

// Wait blocks until in-flight result persistence has finished.
func (s *AssessmentService) Wait() {
	s.inflight.Wait()
}

// CloseAll abandons every live session and refuses new ones. Attempts still in progress are
// not scored; results already handed to persistence are drained by Wait.
func (s *AssessmentService) CloseAll() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	sessions := s.sessions.List()
	for _, session := range sessions {
		session.Controller.Close()
		s.sessions.Delete(session.ID)
	}
	if len(sessions) > 0 {
		s.log.WithField("sessions", len(sessions)).Info("live assessment sessions closed")
	}
}

func (s *AssessmentService) load(ctx context.Context, scope string) (domain.AssessmentConfig, error) {
	cfg, err := s.assessments.GetAssessment(ctx, scope)
	if errors.Is(err, domain.ErrAssessmentNotFound) {
		return domain.AssessmentConfig{Scope: scope}, nil
	}
	if err != nil {
		return domain.AssessmentConfig{}, fmt.Errorf("%w: scope %s: %w", domain.ErrLoadFailed, scope, err)
	}
	if cfg.Scope == "" {
		cfg.Scope = scope
	}
	return cfg, nil
}

// persistAsync stores the result off the controller goroutine. Failures are reported to the
// session's subscribers and never change the result.
func (s *AssessmentService) persistAsync(session *Session, res domain.AssessmentResult) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.log.WithField("session", session.ID).Warn("service closing, assessment result dropped")
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()

		logger := s.log.WithFields(logrus.Fields{
			"session": session.ID,
			"learner": session.LearnerID,
			"scope":   session.Scope,
		})

		record, err := s.persist(ctx, session, res)
		if err != nil {
			logger.WithError(err).Warn("assessment result not persisted")
			session.Controller.Notify(engine.Update{
				Type:    engine.UpdatePersistFailed,
				Result:  &res,
				Message: err.Error(),
			})
			return
		}
		logger.WithFields(logrus.Fields{
			"attempt":    record.Attempt,
			"percentage": res.Percentage,
			"passed":     res.Passed,
			"violations": res.IntegrityViolationCount,
		}).Info("assessment result persisted")
		session.Controller.Notify(engine.Update{
			Type:    engine.UpdatePersisted,
			Result:  &record.Result,
			Message: fmt.Sprintf("attempt %d saved", record.Attempt),
		})
	}()
}

func (s *AssessmentService) persist(ctx context.Context, session *Session, res domain.AssessmentResult) (domain.AttemptRecord, error) {
	record, err := s.results.SaveResult(ctx, domain.AttemptRecord{
		LearnerID: session.LearnerID,
		Scope:     session.Scope,
		Result:    res,
	})
	if err != nil {
		return domain.AttemptRecord{}, fmt.Errorf("%w: %w", domain.ErrPersistFailed, err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishCompleted(ctx, record); err != nil {
			s.log.WithError(err).WithField("scope", session.Scope).Warn("assessment completion event not published")
		}
	}
	return record, nil
}
