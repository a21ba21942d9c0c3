package engine

import (
	"fmt"
	"sync"
	"time"

	"assessment-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Mode selects how answers are handled during a session.
type Mode string

const (
	// ModeReview lets the learner navigate freely and submit once at the end.
	ModeReview Mode = "review"
	// ModeImmediate shows correctness per answer and auto-advances after a fixed delay.
	ModeImmediate Mode = "immediate"
)

// ParseMode maps a wire value to a Mode. Empty means review.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeReview:
		return ModeReview, nil
	case ModeImmediate:
		return ModeImmediate, nil
	default:
		return "", fmt.Errorf("unknown session mode %q", raw)
	}
}

const (
	DefaultTickInterval  = time.Second
	DefaultFeedbackDelay = 1500 * time.Millisecond
)

// Options tune a Controller. Zero values fall back to defaults.
type Options struct {
	Mode          Mode
	TickInterval  time.Duration
	FeedbackDelay time.Duration
	Clock         clockwork.Clock
	// OnComplete runs on the controller goroutine exactly once per completed attempt.
	// It must not block or call back into the controller synchronously.
	OnComplete func(domain.AssessmentResult)
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeReview
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.FeedbackDelay <= 0 {
		o.FeedbackDelay = DefaultFeedbackDelay
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// UpdateType tags entries of the update feed.
type UpdateType string

const (
	UpdateState         UpdateType = "state"
	UpdateTick          UpdateType = "tick"
	UpdateFeedback      UpdateType = "feedback"
	UpdateWarning       UpdateType = "warning"
	UpdateCompleted     UpdateType = "completed"
	UpdatePersisted     UpdateType = "persisted"
	UpdatePersistFailed UpdateType = "persist_failed"
)

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	Scope                   string                   `json:"scope"`
	Mode                    Mode                     `json:"mode"`
	Status                  domain.Status            `json:"status"`
	Attempt                 int                      `json:"attempt"`
	QuestionCount           int                      `json:"questionCount"`
	CurrentQuestionIndex    int                      `json:"currentQuestionIndex"`
	RemainingSeconds        int                      `json:"remainingSeconds"`
	IntegrityViolationCount int                      `json:"integrityViolationCount"`
	Answers                 map[string]domain.Answer `json:"answers"`
	Result                  *domain.AssessmentResult `json:"result,omitempty"`
}

// Feedback is returned for each selected answer. Correct and RunningScore are only
// populated in immediate mode.
type Feedback struct {
	QuestionID   string `json:"questionId"`
	Correct      *bool  `json:"correct,omitempty"`
	RunningScore int    `json:"runningScore"`
}

// Update is one entry of the controller's update feed.
type Update struct {
	Type     UpdateType               `json:"type"`
	Snapshot *Snapshot                `json:"snapshot,omitempty"`
	Feedback *Feedback                `json:"feedback,omitempty"`
	Result   *domain.AssessmentResult `json:"result,omitempty"`
	Message  string                   `json:"message,omitempty"`
}

type sessionState struct {
	status   domain.Status
	attempt  int
	current  int
	ledger   *Ledger
	timer    *countdown
	monitor  *integrityMonitor
	feedback clockwork.Timer
	locked   map[string]bool
	result   *domain.AssessmentResult
}

func (st *sessionState) stop() {
	st.timer.stop()
	st.monitor.stop()
	if st.feedback != nil {
		st.feedback.Stop()
		st.feedback = nil
	}
}

// Controller runs the assessment state machine. A single goroutine owns all session state;
// public methods post work onto its queue and wait for the outcome.
type Controller struct {
	cfg  domain.AssessmentConfig
	bank *Bank
	opts Options

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by the loop goroutine
	state    *sessionState
	attempts int
	subs     map[chan Update]struct{}
}

// NewController validates the question bank and starts the controller loop. An empty bank
// produces a controller in the unavailable condition.
func NewController(cfg domain.AssessmentConfig, opts Options) (*Controller, error) {
	bank, err := NewBank(cfg.Questions)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:  cfg,
		bank: bank,
		opts: opts.withDefaults(),
		cmds: make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		subs: make(map[chan Update]struct{}),
	}
	go c.run()
	return c, nil
}

// Bank exposes the loaded questions.
func (c *Controller) Bank() *Bank { return c.bank }

// Config returns the assessment configuration the controller was built with.
func (c *Controller) Config() domain.AssessmentConfig { return c.cfg }

// Mode returns the session mode.
func (c *Controller) Mode() Mode { return c.opts.Mode }

func (c *Controller) run() {
	defer close(c.done)
	for {
		var tick, advance <-chan time.Time
		if st := c.state; st != nil && st.status == domain.StatusInProgress {
			tick = st.timer.C()
			if st.feedback != nil {
				advance = st.feedback.Chan()
			}
		}

		select {
		case <-c.quit:
			if c.state != nil {
				c.state.stop()
			}
			for ch := range c.subs {
				delete(c.subs, ch)
				close(ch)
			}
			return
		case fn := <-c.cmds:
			fn()
		case <-tick:
			c.handleTick()
		case <-advance:
			c.handleAdvance()
		}
	}
}

// call runs fn on the controller goroutine and returns its error.
func (c *Controller) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.cmds <- func() { errc <- fn() }:
	case <-c.done:
		return domain.ErrSessionClosed
	}
	return <-errc
}

// Start moves a fresh controller into progress.
func (c *Controller) Start() error {
	return c.call(func() error {
		if c.bank.Empty() {
			return domain.ErrAssessmentUnavailable
		}
		if c.state != nil {
			return fmt.Errorf("%w: start from %s", domain.ErrInvalidTransition, c.state.status)
		}
		if err := c.validate(); err != nil {
			return err
		}
		c.begin()
		return nil
	})
}

// Restart replaces a completed attempt with a fresh one and resumes directly in progress.
func (c *Controller) Restart() error {
	return c.call(func() error {
		if c.state == nil || c.state.status != domain.StatusCompleted {
			return fmt.Errorf("%w: restart from %s", domain.ErrInvalidTransition, c.statusLocked())
		}
		c.state.stop()
		c.begin()
		return nil
	})
}

func (c *Controller) validate() error {
	if c.cfg.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time limit must be positive, got %d", domain.ErrConfiguration, c.cfg.TimeLimitSeconds)
	}
	if p := c.cfg.PassingScore(); p < 0 || p > 100 {
		return fmt.Errorf("%w: passing score must be within [0,100], got %d", domain.ErrConfiguration, p)
	}
	return nil
}

func (c *Controller) begin() {
	c.attempts++
	c.state = &sessionState{
		status:  domain.StatusInProgress,
		attempt: c.attempts,
		ledger:  NewLedger(),
		timer:   startCountdown(c.opts.Clock, c.cfg.TimeLimitSeconds, c.opts.TickInterval),
		monitor: startIntegrityMonitor(),
		locked:  make(map[string]bool),
	}
	c.publish(Update{Type: UpdateState})
}

// SelectAnswer records the learner's answer for a question.
func (c *Controller) SelectAnswer(questionID string, answer domain.Answer) (Feedback, error) {
	var fb Feedback
	err := c.call(func() error {
		st, err := c.inProgress("select answer")
		if err != nil {
			return err
		}
		q, idx, ok := c.bank.Lookup(questionID)
		if !ok {
			return fmt.Errorf("%w: %q", domain.ErrInvalidQuestionID, questionID)
		}

		if c.opts.Mode != ModeImmediate {
			st.ledger.Set(questionID, answer)
			fb = Feedback{QuestionID: questionID}
			c.publish(Update{Type: UpdateState})
			return nil
		}

		if idx != st.current {
			return fmt.Errorf("%w: %q", domain.ErrNotCurrentQuestion, questionID)
		}
		if st.locked[questionID] {
			return fmt.Errorf("%w: %q", domain.ErrAnswerLocked, questionID)
		}
		st.ledger.Set(questionID, answer)
		st.locked[questionID] = true
		correct := q.IsCorrect(answer)
		fb = Feedback{
			QuestionID:   questionID,
			Correct:      &correct,
			RunningScore: rawScore(c.bank.questions, st.ledger),
		}
		st.feedback = c.opts.Clock.NewTimer(c.opts.FeedbackDelay)
		c.publish(Update{Type: UpdateFeedback, Feedback: &fb})
		return nil
	})
	return fb, err
}

// GoToQuestion jumps to a question index in review mode. Out-of-range indexes are clamped.
func (c *Controller) GoToQuestion(index int) error {
	return c.call(func() error {
		if c.opts.Mode == ModeImmediate {
			return domain.ErrNavigationDisabled
		}
		st, err := c.inProgress("navigate")
		if err != nil {
			return err
		}
		if index < 0 {
			index = 0
		}
		if last := c.bank.Len() - 1; index > last {
			index = last
		}
		if index == st.current {
			return nil
		}
		st.current = index
		c.publish(Update{Type: UpdateState})
		return nil
	})
}

// ReportVisibility feeds the host page's visibility signal to the integrity monitor.
// Signals outside an in-progress attempt are ignored.
func (c *Controller) ReportVisibility(hidden bool) error {
	return c.call(func() error {
		st := c.state
		if st == nil || st.status != domain.StatusInProgress {
			return nil
		}
		if st.monitor.observe(hidden) {
			c.publish(Update{
				Type:    UpdateWarning,
				Message: fmt.Sprintf("leaving the test page was recorded (%d so far)", st.monitor.violations),
			})
		}
		return nil
	})
}

// Submit scores the attempt and completes it. Submitting an already completed attempt returns
// the existing result without scoring again.
func (c *Controller) Submit() (domain.AssessmentResult, error) {
	var res domain.AssessmentResult
	err := c.call(func() error {
		st := c.state
		if st != nil && st.status == domain.StatusCompleted {
			res = *st.result
			return nil
		}
		if _, err := c.inProgress("submit"); err != nil {
			return err
		}
		var err error
		res, err = c.submit(domain.ReasonManual)
		return err
	})
	return res, err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := c.call(func() error {
		s = c.snapshot()
		return nil
	})
	return s, err
}

// Result returns the last completed attempt's result.
func (c *Controller) Result() (domain.AssessmentResult, bool) {
	var (
		res domain.AssessmentResult
		ok  bool
	)
	_ = c.call(func() error {
		if c.state != nil && c.state.result != nil {
			res, ok = *c.state.result, true
		}
		return nil
	})
	return res, ok
}

// Subscribe returns a channel of updates starting with the current state. The caller must
// invoke the returned cancel function to avoid leaks.
func (c *Controller) Subscribe() (<-chan Update, func(), error) {
	ch := make(chan Update, 16)
	err := c.call(func() error {
		c.subs[ch] = struct{}{}
		s := c.snapshot()
		ch <- Update{Type: UpdateState, Snapshot: &s}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	cancel := func() {
		_ = c.call(func() error {
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
			return nil
		})
	}
	return ch, cancel, nil
}

// Notify pushes an externally produced update (e.g. persistence outcome) to subscribers.
func (c *Controller) Notify(u Update) {
	_ = c.call(func() error {
		c.publish(u)
		return nil
	})
}

// Close stops the controller. An in-progress attempt is abandoned without scoring.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Controller) handleTick() {
	st := c.state
	_, expired := st.timer.tick()
	c.publish(Update{Type: UpdateTick})
	if expired {
		_, _ = c.submit(domain.ReasonTimeExpired)
	}
}

func (c *Controller) handleAdvance() {
	st := c.state
	st.feedback = nil
	if st.current < c.bank.Len()-1 {
		st.current++
		c.publish(Update{Type: UpdateState})
		return
	}
	_, _ = c.submit(domain.ReasonCompleted)
}

// submit must only be called while the state is in progress.
func (c *Controller) submit(reason domain.SubmitReason) (domain.AssessmentResult, error) {
	st := c.state
	passing := c.cfg.PassingScore()
	score, err := ScoreAnswers(c.bank.questions, st.ledger.answers, passing)
	if err != nil {
		return domain.AssessmentResult{}, err
	}
	st.stop()
	res := domain.AssessmentResult{
		RawScore:                score.RawScore,
		TotalPossiblePoints:     score.TotalPossiblePoints,
		Percentage:              score.Percentage,
		Passed:                  score.Passed,
		PassingScorePercent:     passing,
		TimeTakenSeconds:        st.timer.elapsed(),
		IntegrityViolationCount: st.monitor.violations,
		Answers:                 st.ledger.Snapshot(),
		Reason:                  reason,
		SubmittedAt:             c.opts.Clock.Now(),
	}
	st.status = domain.StatusCompleted
	st.result = &res
	c.publish(Update{Type: UpdateCompleted, Result: &res})
	if c.opts.OnComplete != nil {
		c.opts.OnComplete(res)
	}
	return res, nil
}

func (c *Controller) inProgress(op string) (*sessionState, error) {
	if c.state == nil || c.state.status != domain.StatusInProgress {
		return nil, fmt.Errorf("%w: %s from %s", domain.ErrInvalidTransition, op, c.statusLocked())
	}
	return c.state, nil
}

func (c *Controller) statusLocked() domain.Status {
	switch {
	case c.bank.Empty():
		return domain.StatusUnavailable
	case c.state == nil:
		return domain.StatusNotStarted
	default:
		return c.state.status
	}
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		Scope:         c.cfg.Scope,
		Mode:          c.opts.Mode,
		Status:        c.statusLocked(),
		QuestionCount: c.bank.Len(),
		Answers:       map[string]domain.Answer{},
	}
	if st := c.state; st != nil {
		s.Attempt = st.attempt
		s.CurrentQuestionIndex = st.current
		s.RemainingSeconds = st.timer.remaining
		s.IntegrityViolationCount = st.monitor.violations
		s.Answers = st.ledger.Snapshot()
		if st.result != nil {
			res := *st.result
			s.Result = &res
		}
	} else {
		s.RemainingSeconds = c.cfg.TimeLimitSeconds
	}
	return s
}

// publish attaches a snapshot when missing and fans the update out. Slow subscribers lose
// their oldest buffered update rather than blocking the loop.
func (c *Controller) publish(u Update) {
	if u.Snapshot == nil {
		s := c.snapshot()
		u.Snapshot = &s
	}
	for ch := range c.subs {
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- u
		}
	}
}
