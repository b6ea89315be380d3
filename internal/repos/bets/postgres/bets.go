package bets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tgpredict/parimarket/internal/repos/bets"
)

var _ bets.Bets = (*betsRepo)(nil)

type betsRepo struct{ db *sql.DB }

func New(db *sql.DB) *betsRepo {
	return &betsRepo{db: db}
}

func (r *betsRepo) Insert(tx *sql.Tx, userID uint64, questionID, selectedOption string, amount int64) (bets.Bet, error) {
	b := bets.Bet{
		UserID:         userID,
		QuestionID:     questionID,
		SelectedOption: selectedOption,
		Amount:         amount,
	}

	err := tx.QueryRow(`
		INSERT INTO bets (id, user_id, question_id, selected_option, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, placed_at
	`, uuid.New().String(), userID, questionID, selectedOption, amount).Scan(&b.ID, &b.PlacedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == "23505" { // unique_violation
				return bets.Bet{}, bets.ErrDuplicateBet
			}
		}

		return bets.Bet{}, fmt.Errorf("insert bet: %w", err)
	}

	return b, nil
}

func (r *betsRepo) ExistsForPair(tx *sql.Tx, userID uint64, questionID string) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM bets WHERE user_id = $1 AND question_id = $2
		)
	`, userID, questionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing bet: %w", err)
	}

	return exists, nil
}

func (r *betsRepo) ListByQuestion(tx *sql.Tx, questionID string) ([]bets.Bet, error) {
	rows, err := tx.Query(`
		SELECT id, user_id, question_id, selected_option, amount, placed_at
		FROM bets
		WHERE question_id = $1
		ORDER BY placed_at
	`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	var out []bets.Bet

	for rows.Next() {
		var b bets.Bet

		serr := rows.Scan(&b.ID, &b.UserID, &b.QuestionID, &b.SelectedOption, &b.Amount, &b.PlacedAt)
		if serr != nil {
			return nil, fmt.Errorf("scan bet: %w", serr)
		}

		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bets: %w", err)
	}

	return out, nil
}

func (r *betsRepo) GetByUserAndQuestion(ctx context.Context, userID uint64, questionID string) (bets.Bet, error) {
	var b bets.Bet

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, question_id, selected_option, amount, placed_at
		FROM bets
		WHERE user_id = $1 AND question_id = $2
	`, userID, questionID).Scan(&b.ID, &b.UserID, &b.QuestionID, &b.SelectedOption, &b.Amount, &b.PlacedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bets.Bet{}, bets.ErrBetNotFound
		}

		return bets.Bet{}, fmt.Errorf("get bet: %w", err)
	}

	return b, nil
}
