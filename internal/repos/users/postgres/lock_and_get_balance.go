package users

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tgpredict/parimarket/internal/repos/users"
)

// LockAndGetBalance takes the user's row lock for the rest of the
// transaction, so concurrent debits/credits on the same user serialize.
func (r *usersRepo) LockAndGetBalance(tx *sql.Tx, userID uint64) (int64, error) {
	var balance int64

	err := tx.QueryRow(`
		SELECT balance
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, users.ErrUserNotFound
		}

		return 0, fmt.Errorf("lock/get balance: %w", err)
	}

	return balance, nil
}
