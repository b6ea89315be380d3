package questions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrAlreadyClosed    = errors.New("question already closed")
	ErrNotClosed        = errors.New("question not closed")
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Question is a multiple-choice market. CorrectOption is empty while the
// question is open and fixed forever once it closes. SettledAt is the
// settlement marker: non-nil means payouts for this question already ran.
type Question struct {
	ID            string
	Prompt        string
	Options       []string
	Status        Status
	CorrectOption string
	SettledAt     *time.Time
	CreatedAt     time.Time
}

type Questions interface {
	Create(ctx context.Context, prompt string, options []string) (Question, error)
	GetByID(ctx context.Context, id string) (Question, error)
	ListOpen(ctx context.Context) ([]Question, error)

	// LockShared blocks a concurrent exclusive lock (closure/settlement)
	// but lets admissions on the same question proceed in parallel.
	LockShared(tx *sql.Tx, id string) (Question, error)
	// LockExclusive serializes closure and settlement against everything.
	LockExclusive(tx *sql.Tx, id string) (Question, error)

	// Close transitions open -> closed and records the correct option in
	// the same statement. Closing twice returns ErrAlreadyClosed.
	Close(tx *sql.Tx, id, correctOption string) error
	MarkSettled(tx *sql.Tx, id string) error
}
