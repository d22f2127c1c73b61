// Package store holds the persistence collaborators the core depends on:
// question fixtures, session records and submission writes. Room state and
// presence never touch a store; they live in memory only.
package store

import (
	"context"
	"errors"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// QuestionStore resolves a question and its ordered test fixtures.
type QuestionStore interface {
	GetQuestion(ctx context.Context, questionID string) (*models.Question, error)
}

// SessionStore resolves session records for join validation.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// SubmissionStore persists submissions. Create writes the pending record;
// Update records the terminal status and results exactly once.
type SubmissionStore interface {
	Create(ctx context.Context, sub *models.Submission) error
	Update(ctx context.Context, sub *models.Submission) error
}
