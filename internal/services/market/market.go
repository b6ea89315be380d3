package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tgpredict/parimarket/internal/repos/bets"
	pgbets "github.com/tgpredict/parimarket/internal/repos/bets/postgres"
	"github.com/tgpredict/parimarket/internal/repos/questions"
	pgquestions "github.com/tgpredict/parimarket/internal/repos/questions/postgres"
	"github.com/tgpredict/parimarket/internal/repos/users"
	pgusers "github.com/tgpredict/parimarket/internal/repos/users/postgres"
)

// Service is the settlement core: bet admission, question closure and
// pari-mutuel payout over the ledger store.
type Service struct {
	db        *sql.DB
	users     users.Users
	questions questions.Questions
	bets      bets.Bets

	startingBalance int64
	noWinners       NoWinnersPolicy
}

type Config struct {
	StartingBalance int64
	NoWinnersPolicy NoWinnersPolicy
}

func New(dbx *sql.DB, cfg Config) *Service {
	return &Service{
		db:              dbx,
		users:           pgusers.New(dbx),
		questions:       pgquestions.New(dbx),
		bets:            pgbets.New(dbx),
		startingBalance: cfg.StartingBalance,
		noWinners:       cfg.NoWinnersPolicy,
	}
}

// EnsureUser registers a verified Telegram identity on first sight with the
// configured starting balance. Safe to call on every login.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, name string) (users.User, error) {
	u, err := s.users.Upsert(ctx, telegramID, name, s.startingBalance)
	if err != nil {
		return users.User{}, fmt.Errorf("ensure user: %w", err)
	}

	return u, nil
}

// CreateQuestion opens a new market. Administrative operation.
func (s *Service) CreateQuestion(ctx context.Context, prompt string, options []string) (questions.Question, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return questions.Question{}, ErrInvalidQuestion
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))

	for _, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return questions.Question{}, ErrInvalidQuestion
		}

		if _, dup := seen[opt]; dup {
			return questions.Question{}, ErrInvalidQuestion
		}

		seen[opt] = struct{}{}
		cleaned = append(cleaned, opt)
	}

	if len(cleaned) < 2 {
		return questions.Question{}, ErrInvalidQuestion
	}

	q, err := s.questions.Create(ctx, prompt, cleaned)
	if err != nil {
		return questions.Question{}, fmt.Errorf("create question: %w", err)
	}

	return q, nil
}

func (s *Service) GetOpenQuestions(ctx context.Context) ([]questions.Question, error) {
	qs, err := s.questions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("get open questions: %w", err)
	}

	return qs, nil
}

func (s *Service) GetQuestion(ctx context.Context, id string) (questions.Question, error) {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return questions.Question{}, fmt.Errorf("get question: %w", err)
	}

	return q, nil
}

func (s *Service) GetUserBet(ctx context.Context, userID uint64, questionID string) (bets.Bet, error) {
	b, err := s.bets.GetByUserAndQuestion(ctx, userID, questionID)
	if err != nil {
		return bets.Bet{}, fmt.Errorf("get user bet: %w", err)
	}

	return b, nil
}

func (s *Service) GetUserBalance(ctx context.Context, userID uint64) (int64, error) {
	balance, err := s.users.GetBalance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}
