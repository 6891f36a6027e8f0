package repository

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/db"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
)

// Submission is one immutable evaluation record. A resubmission is a new
// row; rows are never updated after insert.
type Submission struct {
	SubmissionID string    `json:"submission_id"`
	UserID       int64     `json:"user_id"`
	ProblemID    int64     `json:"problem_id"`
	Language     string    `json:"language"`
	SourceKey    string    `json:"source_key"`
	SourceHash   string    `json:"source_hash"`
	Passed       bool      `json:"passed"`
	CasesPassed  int       `json:"cases_passed"`
	CasesTotal   int       `json:"cases_total"`
	FirstFailure int       `json:"first_failure"`
	FailureID    int       `json:"failure_status_id"`
	Failure      string    `json:"failure_status"`
	MaxTimeSec   float64   `json:"max_time_sec"`
	MaxMemoryKB  int       `json:"max_memory_kb"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
	ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "submission_id, user_id, problem_id, language, source_key, source_hash, passed, cases_passed, cases_total, first_failure, failure_status_id, failure_status, max_time_sec, max_memory_kb, created_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.SubmissionID == "" {
		return errors.New("submissionID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}
	if submission.SourceKey == "" {
		return errors.New("sourceKey is required")
	}
	if submission.SourceHash == "" {
		return errors.New("sourceHash is required")
	}

	query := `
		INSERT INTO submission
		(submission_id, user_id, problem_id, language, source_key, source_hash, passed, cases_passed, cases_total, first_failure, failure_status_id, failure_status, max_time_sec, max_memory_kb)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.SubmissionID,
		submission.UserID,
		submission.ProblemID,
		submission.Language,
		submission.SourceKey,
		submission.SourceHash,
		submission.Passed,
		submission.CasesPassed,
		submission.CasesTotal,
		submission.FirstFailure,
		submission.FailureID,
		submission.Failure,
		submission.MaxTimeSec,
		submission.MaxMemoryKB,
	)
	return err
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submissionID is required")
	}
	query := "SELECT " + submissionColumns + " FROM submission WHERE submission_id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission := &Submission{}
	if err := scanSubmission(row, submission); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// ListByUserProblem returns a user's submissions for one problem,
// newest first.
func (r *MySQLSubmissionRepository) ListByUserProblem(ctx context.Context, userID, problemID int64, limit int) ([]Submission, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := "SELECT " + submissionColumns + " FROM submission WHERE user_id = ? AND problem_id = ? ORDER BY created_at DESC, submission_id DESC LIMIT ?"
	rows, err := r.db.Query(ctx, query, userID, problemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]Submission, 0, limit)
	for rows.Next() {
		var submission Submission
		if err := scanSubmission(rows, &submission); err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner, submission *Submission) error {
	return row.Scan(
		&submission.SubmissionID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.Language,
		&submission.SourceKey,
		&submission.SourceHash,
		&submission.Passed,
		&submission.CasesPassed,
		&submission.CasesTotal,
		&submission.FirstFailure,
		&submission.FailureID,
		&submission.Failure,
		&submission.MaxTimeSec,
		&submission.MaxMemoryKB,
		&submission.CreatedAt,
	)
}
