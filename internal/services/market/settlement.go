package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tgpredict/parimarket/internal/infra/pgutils"
	"github.com/tgpredict/parimarket/internal/repos/bets"
	"github.com/tgpredict/parimarket/internal/repos/questions"
	"github.com/tgpredict/parimarket/internal/repos/users"
)

// CloseQuestion transitions the question open -> closed, recording the
// correct option, then settles it. The transition itself commits first:
// if settlement dies afterwards, re-invoking Settle is safe because of the
// settlement marker.
func (s *Service) CloseQuestion(ctx context.Context, questionID, correctOption string) (SettlementResult, error) {
	if correctOption == "" {
		return SettlementResult{}, ErrInvalidOption
	}

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		q, err := s.questions.LockExclusive(tx, questionID)
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}

		if q.Status != questions.StatusOpen {
			return questions.ErrAlreadyClosed
		}

		if !slices.Contains(q.Options, correctOption) {
			return ErrInvalidOption
		}

		err = s.questions.Close(tx, questionID, correctOption)
		if err != nil {
			return fmt.Errorf("close question: %w", err)
		}

		return nil
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("close question: %w", err)
	}

	return s.Settle(ctx, questionID)
}

// Settle distributes the losing pool to winners proportionally to their
// stakes. It runs in one transaction guarded by the question's settled_at
// marker, so redelivered closure events credit winners at most once.
//
// A winner whose user row has vanished is logged and skipped; it does not
// abort the rest of the run.
func (s *Service) Settle(ctx context.Context, questionID string) (SettlementResult, error) {
	res := SettlementResult{QuestionID: questionID}

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		q, err := s.questions.LockExclusive(tx, questionID)
		if err != nil {
			return fmt.Errorf("load question: %w", err)
		}

		if q.Status != questions.StatusClosed {
			return questions.ErrNotClosed
		}

		if q.SettledAt != nil {
			res.AlreadySettled = true
			return nil
		}

		allBets, err := s.bets.ListByQuestion(tx, questionID)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}

		res.Bets = len(allBets)

		if len(allBets) == 0 {
			slog.Info("no bets to settle", "question_id", questionID)
			return s.questions.MarkSettled(tx, questionID)
		}

		var winners, losers []bets.Bet
		for _, b := range allBets {
			if b.SelectedOption == q.CorrectOption {
				winners = append(winners, b)
			} else {
				losers = append(losers, b)
			}
		}

		res.Winners = len(winners)

		if len(winners) == 0 {
			err = s.settleWithoutWinners(tx, &res, losers)
			if err != nil {
				return err
			}

			return s.questions.MarkSettled(tx, questionID)
		}

		var totalWinners, totalLosers int64
		for _, w := range winners {
			totalWinners += w.Amount
		}
		for _, l := range losers {
			totalLosers += l.Amount
		}

		for _, w := range winners {
			payout := winnerPayout(w.Amount, totalWinners, totalLosers)

			err = s.users.IncreaseBalance(tx, w.UserID, payout)
			if err != nil {
				if errors.Is(err, users.ErrUserNotFound) {
					slog.Warn("winner user vanished, skipping credit",
						"question_id", questionID, "user_id", w.UserID, "payout", payout)
					continue
				}

				return fmt.Errorf("credit winner %d: %w", w.UserID, err)
			}

			res.Credited += payout
		}

		return s.questions.MarkSettled(tx, questionID)
	})
	if err != nil {
		return SettlementResult{}, fmt.Errorf("settle question %s: %w", questionID, err)
	}

	if res.AlreadySettled {
		slog.Info("question already settled", "question_id", questionID)
	} else {
		slog.Info("settlement completed",
			"question_id", questionID,
			"bets", res.Bets,
			"winners", res.Winners,
			"credited", res.Credited)
	}

	return res, nil
}

// settleWithoutWinners applies the configured no-winners policy. The
// default keeps all stakes in the house; the refund policy hands each
// loser their stake back.
func (s *Service) settleWithoutWinners(tx *sql.Tx, res *SettlementResult, losers []bets.Bet) error {
	if s.noWinners != PolicyRefund {
		slog.Info("no winners, stakes kept", "question_id", res.QuestionID, "bets", res.Bets)
		return nil
	}

	for _, l := range losers {
		err := s.users.IncreaseBalance(tx, l.UserID, l.Amount)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				slog.Warn("loser user vanished, skipping refund",
					"question_id", res.QuestionID, "user_id", l.UserID, "refund", l.Amount)
				continue
			}

			return fmt.Errorf("refund loser %d: %w", l.UserID, err)
		}

		res.Credited += l.Amount
	}

	slog.Info("no winners, stakes refunded", "question_id", res.QuestionID, "refunded", res.Credited)

	return nil
}
