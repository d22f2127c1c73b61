// Package dispatch orchestrates submissions: fixtures in, runners driven,
// verdict graded, persisted and broadcast to the owning room.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/paulgasbarra/together-we-code/internal/exec"
	"github.com/paulgasbarra/together-we-code/internal/grade"
	"github.com/paulgasbarra/together-we-code/internal/metrics"
	"github.com/paulgasbarra/together-we-code/internal/models"
	"github.com/paulgasbarra/together-we-code/internal/session"
	"github.com/paulgasbarra/together-we-code/internal/store"
)

// Publisher fans a verdict out to a room. *session.Hub satisfies it.
type Publisher interface {
	Publish(sessionID string, sender *session.Client, env models.Envelope) bool
}

// Config sizes the execution pool.
type Config struct {
	// Capacity is the number of submissions allowed to execute at once.
	Capacity int
	// QueueDepth is how many submissions may wait for a slot before new
	// ones are rejected as busy.
	QueueDepth int
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.QueueDepth < 0 {
		c.QueueDepth = 0
	}
	return c
}

// Dispatcher runs the submit pipeline. Submissions execute on the calling
// goroutine but are admitted through a bounded pool, so callers must not
// invoke Submit from a connection's read loop.
type Dispatcher struct {
	questions   store.QuestionStore
	submissions store.SubmissionStore
	registry    *exec.Registry
	hub         Publisher
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics

	// admission bounds running + queued work; running bounds concurrency.
	admission chan struct{}
	running   chan struct{}
}

func New(questions store.QuestionStore, submissions store.SubmissionStore,
	registry *exec.Registry, hub Publisher, log *zap.SugaredLogger,
	m *metrics.Metrics, cfg Config) *Dispatcher {

	cfg = cfg.withDefaults()
	return &Dispatcher{
		questions:   questions,
		submissions: submissions,
		registry:    registry,
		hub:         hub,
		log:         log,
		metrics:     m,
		admission:   make(chan struct{}, cfg.Capacity+cfg.QueueDepth),
		running:     make(chan struct{}, cfg.Capacity),
	}
}

// Submit validates the request, executes every test case, grades the
// results, persists the terminal submission and broadcasts the verdict.
// Exactly one of the following happens: a submission-result event reaches
// the room, or an error is returned for the caller to surface.
func (d *Dispatcher) Submit(ctx context.Context, req models.SubmitRequest) (*models.Submission, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	runner, ok := d.registry.Lookup(req.Language)
	if !ok {
		return nil, &ValidationError{Message: exec.ErrUnsupportedLanguage.Error() + ": " + req.Language}
	}

	select {
	case d.admission <- struct{}{}:
	default:
		d.metrics.PoolRejections.Inc()
		return nil, ErrBusy
	}
	defer func() { <-d.admission }()

	select {
	case d.running <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-d.running }()

	d.metrics.ActiveRuns.Inc()
	defer d.metrics.ActiveRuns.Dec()

	question, err := d.questions.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return d.failSubmission(ctx, req, err)
	}

	sub := models.NewSubmission(req.QuestionID, req.UserID, req.Code, req.Language)
	if err := d.submissions.Create(ctx, sub); err != nil {
		d.log.Errorw("failed to create submission", "questionId", req.QuestionID, "error", err)
		return nil, err
	}

	start := time.Now()
	results := d.runCases(ctx, runner, question, req.Code)
	d.metrics.RunSeconds.Observe(time.Since(start).Seconds())

	sub.Status = grade.Aggregate(results)
	sub.Results = results

	if err := d.submissions.Update(ctx, sub); err != nil {
		// Terminal state could not be recorded: the submission is marked
		// error and the failure surfaces to the caller instead of a verdict.
		d.log.Errorw("failed to persist verdict", "submissionId", sub.ID, "error", err)
		sub.Status = models.StatusError
		sub.Results = nil
		d.metrics.SubmissionsTotal.WithLabelValues(string(models.StatusError)).Inc()
		return nil, err
	}

	d.metrics.SubmissionsTotal.WithLabelValues(string(sub.Status)).Inc()
	d.broadcastVerdict(req.SessionID, sub)
	return sub, nil
}

// failSubmission records a batch-level failure: a submission with status
// error and no results, broadcast as the terminal verdict.
func (d *Dispatcher) failSubmission(ctx context.Context, req models.SubmitRequest, cause error) (*models.Submission, error) {
	if errors.Is(cause, store.ErrNotFound) {
		d.log.Warnw("question not found for submission", "questionId", req.QuestionID)
	} else {
		d.log.Errorw("failed to fetch fixtures", "questionId", req.QuestionID, "error", cause)
	}

	sub := models.NewSubmission(req.QuestionID, req.UserID, req.Code, req.Language)
	sub.Status = models.StatusError
	if err := d.submissions.Create(ctx, sub); err != nil {
		d.log.Errorw("failed to record errored submission", "questionId", req.QuestionID, "error", err)
		return nil, cause
	}
	d.metrics.SubmissionsTotal.WithLabelValues(string(models.StatusError)).Inc()
	d.broadcastVerdict(req.SessionID, sub)
	return sub, nil
}

// runCases executes every test case in fixture order. A failure of one case
// is folded into its TestResult and never aborts the siblings.
func (d *Dispatcher) runCases(ctx context.Context, runner exec.Runner, question *models.Question, code string) []models.TestResult {
	results := make([]models.TestResult, 0, len(question.TestCases))
	for _, tc := range question.TestCases {
		result := models.TestResult{Input: tc.Args, Expected: tc.Expected}
		actual, err := runner.Run(ctx, code, question.FunctionName, tc.Args)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Actual = actual
			result.Passed = grade.Compare(actual, tc.Expected)
		}
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) broadcastVerdict(sessionID string, sub *models.Submission) {
	delivered := d.hub.Publish(sessionID, nil, models.Envelope{
		Type: models.EventSubmissionResult,
		Data: models.SubmissionResult{
			SubmissionID: sub.ID.String(),
			QuestionID:   sub.QuestionID,
			UserID:       sub.StudentID,
			Status:       sub.Status,
			Results:      sub.Results,
		},
	})
	if !delivered {
		d.log.Warnw("verdict had no room to land in", "sessionId", sessionID, "submissionId", sub.ID)
	}
}

func validate(req models.SubmitRequest) error {
	switch {
	case req.SessionID == "":
		return &ValidationError{Message: "sessionId is required"}
	case req.QuestionID == "":
		return &ValidationError{Message: "questionId is required"}
	case req.UserID == "":
		return &ValidationError{Message: "userId is required"}
	case req.Code == "":
		return &ValidationError{Message: "code is required"}
	case req.Language == "":
		return &ValidationError{Message: "language is required"}
	}
	return nil
}
