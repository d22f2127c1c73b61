package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Postgres implements the store interfaces over the service schema:
// sessions, questions (test_cases json) and submissions (results json).
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing handle (used in tests).
func NewPostgresFromDB(db *sqlx.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error { return p.db.Close() }

type questionRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  sql.NullString `db:"description"`
	FunctionName string         `db:"function_name"`
	TestCases    []byte         `db:"test_cases"`
}

func (p *Postgres) GetQuestion(ctx context.Context, questionID string) (*models.Question, error) {
	var row questionRow
	err := p.db.GetContext(ctx, &row,
		`SELECT id, title, description, function_name, test_cases FROM questions WHERE id = $1`,
		questionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question %s: %w", questionID, err)
	}
	return rowToQuestion(row)
}

func rowToQuestion(row questionRow) (*models.Question, error) {
	q := &models.Question{
		ID:           row.ID,
		Title:        row.Title,
		Description:  row.Description.String,
		FunctionName: row.FunctionName,
	}
	if len(row.TestCases) > 0 {
		if err := json.Unmarshal(row.TestCases, &q.TestCases); err != nil {
			return nil, fmt.Errorf("decode test cases for question %s: %w", row.ID, err)
		}
	}
	return q, nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	err := p.db.GetContext(ctx, &s,
		`SELECT id, title, COALESCE(description, '') AS description, teacher_id, question_id, is_active
		 FROM sessions WHERE id = $1`,
		sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (p *Postgres) Create(ctx context.Context, sub *models.Submission) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO submissions (id, question_id, student_id, code, language, status, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.QuestionID, sub.StudentID, sub.Code, sub.Language, sub.Status, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("create submission %s: %w", sub.ID, err)
	}
	return nil
}

func (p *Postgres) Update(ctx context.Context, sub *models.Submission) error {
	results, err := json.Marshal(sub.Results)
	if err != nil {
		return fmt.Errorf("encode results for submission %s: %w", sub.ID, err)
	}
	_, err = p.db.ExecContext(ctx,
		`UPDATE submissions SET status = $2, results = $3 WHERE id = $1`,
		sub.ID, sub.Status, results)
	if err != nil {
		return fmt.Errorf("update submission %s: %w", sub.ID, err)
	}
	return nil
}
