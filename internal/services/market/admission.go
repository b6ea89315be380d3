package market

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/tgpredict/parimarket/internal/infra/pgutils"
	"github.com/tgpredict/parimarket/internal/repos/bets"
	"github.com/tgpredict/parimarket/internal/repos/questions"
	"github.com/tgpredict/parimarket/internal/repos/users"
)

// PlaceBet runs the full admission flow in a single DB transaction:
//
// 1) Lock the question row shared; reject closed/unknown questions.
// 2) Validate the selected option against the question's option set.
// 3) Reject a second bet on the same (user, question) pair.
// 4) Lock user row (FOR UPDATE) and pre-check the balance.
// 5) Guarded debit + bet insert; the unique constraint on the pair turns
//    a concurrent duplicate into ErrDuplicateBet.
//
// Either the debit and the insert both commit, or neither does.
func (s *Service) PlaceBet(ctx context.Context, userID uint64, questionID, selectedOption string, amount int64) (bets.Bet, error) {
	if amount <= 0 {
		return bets.Bet{}, ErrInvalidAmount
	}

	if selectedOption == "" {
		return bets.Bet{}, ErrInvalidOption
	}

	var placed bets.Bet

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// 1) Question must exist and be open. The shared lock keeps a
		// concurrent closure from committing under us.
		q, err := s.questions.LockShared(tx, questionID)
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}

		if q.Status != questions.StatusOpen {
			return ErrQuestionClosed
		}

		// 2) Option must belong to this question.
		if !slices.Contains(q.Options, selectedOption) {
			return ErrInvalidOption
		}

		// 3) One bet per user per question.
		exists, err := s.bets.ExistsForPair(tx, userID, questionID)
		if err != nil {
			return fmt.Errorf("check existing bet: %w", err)
		}

		if exists {
			return bets.ErrDuplicateBet
		}

		// 4) Lock user row and pre-check against the locked balance.
		balance, err := s.users.LockAndGetBalance(tx, userID)
		if err != nil {
			return fmt.Errorf("lock and get balance: %w", err)
		}

		if balance < amount {
			return fmt.Errorf("pre-check debit: %w", users.ErrInsufficientBalance)
		}

		// 5) Debit and record the bet.
		err = s.users.DecreaseBalance(tx, userID, amount)
		if err != nil {
			return fmt.Errorf("decrease balance: %w", err)
		}

		placed, err = s.bets.Insert(tx, userID, questionID, selectedOption, amount)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}

		return nil
	})
	if err != nil {
		return bets.Bet{}, fmt.Errorf("place bet: %w", err)
	}

	return placed, nil
}
