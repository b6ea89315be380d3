package users

import (
	"database/sql"
	"fmt"

	"github.com/tgpredict/parimarket/internal/repos/users"
)

// IncreaseBalance credits relative to the stored value. Zero rows affected
// means the user row is gone; settlement logs and skips that winner.
func (r *usersRepo) IncreaseBalance(tx *sql.Tx, userID uint64, amount int64) error {
	res, err := tx.Exec(`
		UPDATE users
		SET balance = balance + $2
		WHERE id = $1
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("increase balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return users.ErrUserNotFound
	}

	return nil
}
