package users

import (
	"context"
	"fmt"

	"github.com/tgpredict/parimarket/internal/repos/users"
)

// Upsert keys on the unique telegram_id. A fresh identity gets the starting
// balance; a known one only has its display name refreshed.
func (r *usersRepo) Upsert(ctx context.Context, telegramID int64, name string, startingBalance int64) (users.User, error) {
	u := users.User{TelegramID: telegramID}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (telegram_id, name, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, balance
	`, telegramID, name, startingBalance).Scan(&u.ID, &u.Name, &u.Balance)
	if err != nil {
		return users.User{}, fmt.Errorf("upsert user: %w", err)
	}

	return u, nil
}
