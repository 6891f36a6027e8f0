package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	problemKeyPrefix       = "problem:full:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
)

type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error)
	Update(ctx context.Context, tx db.Transaction, problem *Problem) error
	Delete(ctx context.Context, tx db.Transaction, problemID int64) error
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error)
	List(ctx context.Context, page, pageSize int) ([]Summary, int64, error)
	InvalidateCache(ctx context.Context, problemID int64) error
}

type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) ProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) ProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}

	tags, err := json.Marshal(problem.Tags)
	if err != nil {
		return 0, err
	}
	startCode, err := json.Marshal(problem.StartCode)
	if err != nil {
		return 0, err
	}

	querier := db.GetQuerier(r.db, tx)
	query := "INSERT INTO problem (title, description, difficulty, tags, start_code, creator_id) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := querier.Exec(ctx, query,
		problem.Title, problem.Description, problem.Difficulty, string(tags), string(startCode), problem.CreatorID)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	problem.ID = id

	if err := r.insertCases(ctx, querier, id, problem.TestCases); err != nil {
		return 0, err
	}
	if err := r.insertSolutions(ctx, querier, id, problem.ReferenceSolutions); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *MySQLProblemRepository) Update(ctx context.Context, tx db.Transaction, problem *Problem) error {
	if problem == nil || problem.ID <= 0 {
		return errors.New("problem id is required")
	}

	tags, err := json.Marshal(problem.Tags)
	if err != nil {
		return err
	}
	startCode, err := json.Marshal(problem.StartCode)
	if err != nil {
		return err
	}

	querier := db.GetQuerier(r.db, tx)
	query := "UPDATE problem SET title = ?, description = ?, difficulty = ?, tags = ?, start_code = ? WHERE id = ?"
	result, err := querier.Exec(ctx, query,
		problem.Title, problem.Description, problem.Difficulty, string(tags), string(startCode), problem.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.getHeader(ctx, querier, problem.ID); err != nil {
			return err
		}
	}

	// Cases and solutions are replaced wholesale on update.
	if _, err := querier.Exec(ctx, "DELETE FROM problem_test_case WHERE problem_id = ?", problem.ID); err != nil {
		return err
	}
	if _, err := querier.Exec(ctx, "DELETE FROM problem_reference_solution WHERE problem_id = ?", problem.ID); err != nil {
		return err
	}
	if err := r.insertCases(ctx, querier, problem.ID, problem.TestCases); err != nil {
		return err
	}
	return r.insertSolutions(ctx, querier, problem.ID, problem.ReferenceSolutions)
}

func (r *MySQLProblemRepository) Delete(ctx context.Context, tx db.Transaction, problemID int64) error {
	querier := db.GetQuerier(r.db, tx)
	result, err := querier.Exec(ctx, "DELETE FROM problem WHERE id = ?", problemID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProblemNotFound
	}
	if _, err := querier.Exec(ctx, "DELETE FROM problem_test_case WHERE problem_id = ?", problemID); err != nil {
		return err
	}
	if _, err := querier.Exec(ctx, "DELETE FROM problem_reference_solution WHERE problem_id = ?", problemID); err != nil {
		return err
	}
	return nil
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	if r.cache != nil && tx == nil {
		problem, err := cache.GetWithCached[*Problem](
			ctx,
			r.cache,
			problemKey(problemID),
			cache.JitterTTL(r.ttl),
			cache.JitterTTL(r.emptyTTL),
			func(p *Problem) bool { return p == nil },
			func(p *Problem) string {
				data, _ := json.Marshal(p)
				return string(data)
			},
			func(data string) (*Problem, error) {
				var p Problem
				if err := json.Unmarshal([]byte(data), &p); err != nil {
					return nil, err
				}
				return &p, nil
			},
			func(ctx context.Context) (*Problem, error) {
				problem, err := r.getFromDB(ctx, nil, problemID)
				if err != nil {
					if errors.Is(err, ErrProblemNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return problem, nil
			},
		)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, ErrProblemNotFound
		}
		return problem, nil
	}
	return r.getFromDB(ctx, tx, problemID)
}

func (r *MySQLProblemRepository) List(ctx context.Context, page, pageSize int) ([]Summary, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM problem").Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	rows, err := r.db.Query(ctx,
		"SELECT id, title, difficulty, tags FROM problem ORDER BY id LIMIT ? OFFSET ?",
		pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]Summary, 0, pageSize)
	for rows.Next() {
		var summary Summary
		var tags string
		if err := rows.Scan(&summary.ID, &summary.Title, &summary.Difficulty, &tags); err != nil {
			return nil, 0, err
		}
		if tags != "" {
			_ = json.Unmarshal([]byte(tags), &summary.Tags)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}

func (r *MySQLProblemRepository) InvalidateCache(ctx context.Context, problemID int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Del(ctx, problemKey(problemID))
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	querier := db.GetQuerier(r.db, tx)
	problem, err := r.getHeader(ctx, querier, problemID)
	if err != nil {
		return nil, err
	}

	rows, err := querier.Query(ctx,
		"SELECT input, expected_output, visible FROM problem_test_case WHERE problem_id = ? ORDER BY position",
		problemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput, &tc.Visible); err != nil {
			return nil, err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	solRows, err := querier.Query(ctx,
		"SELECT language, source_code FROM problem_reference_solution WHERE problem_id = ? ORDER BY id",
		problemID)
	if err != nil {
		return nil, err
	}
	defer solRows.Close()
	for solRows.Next() {
		var sol ReferenceSolution
		if err := solRows.Scan(&sol.Language, &sol.SourceCode); err != nil {
			return nil, err
		}
		problem.ReferenceSolutions = append(problem.ReferenceSolutions, sol)
	}
	if err := solRows.Err(); err != nil {
		return nil, err
	}
	return problem, nil
}

func (r *MySQLProblemRepository) getHeader(ctx context.Context, querier db.Querier, problemID int64) (*Problem, error) {
	var problem Problem
	var tags, startCode string
	err := querier.QueryRow(ctx,
		"SELECT id, title, description, difficulty, tags, start_code, creator_id, created_at, updated_at FROM problem WHERE id = ?",
		problemID).Scan(
		&problem.ID, &problem.Title, &problem.Description, &problem.Difficulty,
		&tags, &startCode, &problem.CreatorID, &problem.CreatedAt, &problem.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &problem.Tags)
	}
	if startCode != "" {
		_ = json.Unmarshal([]byte(startCode), &problem.StartCode)
	}
	return &problem, nil
}

func (r *MySQLProblemRepository) insertCases(ctx context.Context, querier db.Querier, problemID int64, cases []TestCase) error {
	for i, tc := range cases {
		_, err := querier.Exec(ctx,
			"INSERT INTO problem_test_case (problem_id, position, input, expected_output, visible) VALUES (?, ?, ?, ?, ?)",
			problemID, i, tc.Input, tc.ExpectedOutput, tc.Visible)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *MySQLProblemRepository) insertSolutions(ctx context.Context, querier db.Querier, problemID int64, solutions []ReferenceSolution) error {
	for _, sol := range solutions {
		_, err := querier.Exec(ctx,
			"INSERT INTO problem_reference_solution (problem_id, language, source_code) VALUES (?, ?, ?)",
			problemID, sol.Language, sol.SourceCode)
		if err != nil {
			return err
		}
	}
	return nil
}

func problemKey(problemID int64) string {
	return problemKeyPrefix + strconv.FormatInt(problemID, 10)
}
