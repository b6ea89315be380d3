package users

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInsufficientBalance = errors.New("insufficient balance")
var ErrUserNotFound = errors.New("user not found")

// User is a bettor account. TelegramID is the external identity the
// authentication layer verified before calling us; Balance is in points.
type User struct {
	ID         uint64
	TelegramID int64
	Name       string
	Balance    int64
}

type Users interface {
	// Upsert creates the user on first sight of a new telegram id with the
	// given starting balance; on later calls it refreshes the name and
	// leaves the balance alone.
	Upsert(ctx context.Context, telegramID int64, name string, startingBalance int64) (User, error)
	GetBalance(ctx context.Context, userID uint64) (int64, error)
	LockAndGetBalance(tx *sql.Tx, userID uint64) (int64, error)
	IncreaseBalance(tx *sql.Tx, userID uint64, amount int64) error
	DecreaseBalance(tx *sql.Tx, userID uint64, amount int64) error
}
