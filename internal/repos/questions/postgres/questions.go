package questions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tgpredict/parimarket/internal/repos/questions"
)

var _ questions.Questions = (*questionsRepo)(nil)

type questionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *questionsRepo {
	return &questionsRepo{db: db}
}

const questionColumns = `id, prompt, options, status, COALESCE(correct_option, ''), settled_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (questions.Question, error) {
	var (
		q       questions.Question
		rawOpts []byte
	)

	err := row.Scan(&q.ID, &q.Prompt, &rawOpts, &q.Status, &q.CorrectOption, &q.SettledAt, &q.CreatedAt)
	if err != nil {
		return questions.Question{}, err
	}

	err = json.Unmarshal(rawOpts, &q.Options)
	if err != nil {
		return questions.Question{}, fmt.Errorf("decode options: %w", err)
	}

	return q, nil
}

func (r *questionsRepo) Create(ctx context.Context, prompt string, options []string) (questions.Question, error) {
	rawOpts, err := json.Marshal(options)
	if err != nil {
		return questions.Question{}, fmt.Errorf("encode options: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO questions (id, prompt, options, status)
		VALUES ($1, $2, $3, 'open')
		RETURNING `+questionColumns+`
	`, uuid.New().String(), prompt, rawOpts)

	q, err := scanQuestion(row)
	if err != nil {
		return questions.Question{}, fmt.Errorf("insert question: %w", err)
	}

	return q, nil
}

func (r *questionsRepo) GetByID(ctx context.Context, id string) (questions.Question, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE id = $1
	`, id)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return questions.Question{}, questions.ErrQuestionNotFound
		}

		return questions.Question{}, fmt.Errorf("get question: %w", err)
	}

	return q, nil
}

func (r *questionsRepo) ListOpen(ctx context.Context) ([]questions.Question, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE status = 'open'
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list open questions: %w", err)
	}
	defer rows.Close()

	var out []questions.Question

	for rows.Next() {
		q, serr := scanQuestion(rows)
		if serr != nil {
			return nil, fmt.Errorf("scan question: %w", serr)
		}

		out = append(out, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	return out, nil
}

func (r *questionsRepo) lock(tx *sql.Tx, id, lockClause string) (questions.Question, error) {
	row := tx.QueryRow(`
		SELECT `+questionColumns+`
		FROM questions
		WHERE id = $1
	`+lockClause, id)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return questions.Question{}, questions.ErrQuestionNotFound
		}

		return questions.Question{}, fmt.Errorf("lock question: %w", err)
	}

	return q, nil
}

func (r *questionsRepo) LockShared(tx *sql.Tx, id string) (questions.Question, error) {
	return r.lock(tx, id, "FOR SHARE")
}

func (r *questionsRepo) LockExclusive(tx *sql.Tx, id string) (questions.Question, error) {
	return r.lock(tx, id, "FOR UPDATE")
}

func (r *questionsRepo) Close(tx *sql.Tx, id, correctOption string) error {
	res, err := tx.Exec(`
		UPDATE questions
		SET status = 'closed', correct_option = $2
		WHERE id = $1
		  AND status = 'open'
	`, id, correctOption)
	if err != nil {
		return fmt.Errorf("close question: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return questions.ErrAlreadyClosed
	}

	return nil
}

func (r *questionsRepo) MarkSettled(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`
		UPDATE questions
		SET settled_at = now()
		WHERE id = $1
		  AND settled_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}

	return nil
}
