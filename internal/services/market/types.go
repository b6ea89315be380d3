package market

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount   = errors.New("amount must be a positive number of points")
	ErrInvalidOption   = errors.New("selected option is not valid for this question")
	ErrQuestionClosed  = errors.New("question is not open for betting")
	ErrInvalidQuestion = errors.New("question needs a prompt and at least two distinct options")
)

// NoWinnersPolicy decides what happens to the pool when a question closes
// and nobody picked the correct option.
type NoWinnersPolicy string

const (
	// PolicyHouseKeeps leaves all stakes deducted; nothing is paid out.
	PolicyHouseKeeps NoWinnersPolicy = "house"
	// PolicyRefund credits every loser their stake back.
	PolicyRefund NoWinnersPolicy = "refund"
)

func ParseNoWinnersPolicy(s string) (NoWinnersPolicy, error) {
	switch NoWinnersPolicy(s) {
	case PolicyHouseKeeps, PolicyRefund:
		return NoWinnersPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid no-winners policy: %q", s)
	}
}

// SettlementResult summarizes one settlement run for logging and the API.
type SettlementResult struct {
	QuestionID     string
	AlreadySettled bool
	Bets           int
	Winners        int
	Credited       int64
}
