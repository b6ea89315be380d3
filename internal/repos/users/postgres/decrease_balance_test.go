package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/tgpredict/parimarket/internal/infra/pgtestutil"
	"github.com/tgpredict/parimarket/internal/repos/users"
)

func seedUser(db *sql.DB, t *testing.T, id uint64, bal int64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO users (id, telegram_id, name, balance) VALUES ($1, $1, 'seed', $2)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance
	`, id, bal)
	if err != nil {
		t.Fatalf("seed user(%d): %v", id, err)
	}
}

func TestUsers_DecreaseBalance_Table(t *testing.T) {
	t.Parallel()

	type tc struct {
		name          string
		seedBalance   int64
		seedUser      bool
		userID        uint64
		amount        int64
		wantBalance   int64
		wantErr       bool // true -> expect users.ErrInsufficientBalance
		checkFinalBal bool
	}

	tests := []tc{
		{
			name:          "sufficient_balance_decrease_from_positive",
			seedUser:      true,
			seedBalance:   1_000,
			userID:        201,
			amount:        250,
			wantBalance:   750,
			checkFinalBal: true,
		},
		{
			name:          "sufficient_balance_exact_to_zero",
			seedUser:      true,
			seedBalance:   300,
			userID:        202,
			amount:        300,
			wantBalance:   0,
			checkFinalBal: true,
		},
		{
			name:          "insufficient_balance_unchanged",
			seedUser:      true,
			seedBalance:   200,
			userID:        203,
			amount:        300,
			wantBalance:   200,
			wantErr:       true,
			checkFinalBal: true,
		},
		{
			name:    "user_missing_treated_as_insufficient",
			userID:  999_999,
			amount:  100,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			if tt.seedUser {
				seedUser(db, t, tt.userID, tt.seedBalance)
			}

			repo := New(db)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			err = repo.DecreaseBalance(tx, tt.userID, tt.amount)

			if tt.wantErr {
				if !errors.Is(err, users.ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
				}
				// no commit on error
			} else {
				if err != nil {
					t.Fatalf("decrease balance: %v", err)
				}
				err = tx.Commit()
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			if tt.checkFinalBal {
				got, gerr := repo.GetBalance(ctx, tt.userID)
				if gerr != nil {
					t.Fatalf("get balance after decrease: %v", gerr)
				}
				if got != tt.wantBalance {
					t.Fatalf("final balance mismatch: want %d, got %d", tt.wantBalance, got)
				}
			}
		})
	}
}
