package bets

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrDuplicateBet = errors.New("bet already placed")
	ErrBetNotFound  = errors.New("bet not found")
)

// Bet is an immutable historical fact: once inserted it is never updated
// or deleted. At most one bet exists per (user, question) pair.
type Bet struct {
	ID             string
	UserID         uint64
	QuestionID     string
	SelectedOption string
	Amount         int64
	PlacedAt       time.Time
}

type Bets interface {
	// Insert records a new bet. The (user_id, question_id) uniqueness
	// constraint turns a concurrent duplicate into ErrDuplicateBet.
	Insert(tx *sql.Tx, userID uint64, questionID, selectedOption string, amount int64) (Bet, error)
	ExistsForPair(tx *sql.Tx, userID uint64, questionID string) (bool, error)
	ListByQuestion(tx *sql.Tx, questionID string) ([]Bet, error)
	GetByUserAndQuestion(ctx context.Context, userID uint64, questionID string) (Bet, error)
}
