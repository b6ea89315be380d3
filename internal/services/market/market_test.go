package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tgpredict/parimarket/internal/infra/pgtestutil"
	"github.com/tgpredict/parimarket/internal/repos/bets"
	"github.com/tgpredict/parimarket/internal/repos/questions"
	"github.com/tgpredict/parimarket/internal/repos/users"
)

const startingBalance = 1000

func newTestService(t *testing.T, policy NoWinnersPolicy) (*Service, func()) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)

	svc := New(db, Config{
		StartingBalance: startingBalance,
		NoWinnersPolicy: policy,
	})

	return svc, cleanup
}

func testCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func mustUser(ctx context.Context, t *testing.T, svc *Service, telegramID int64, name string) users.User {
	t.Helper()

	u, err := svc.EnsureUser(ctx, telegramID, name)
	if err != nil {
		t.Fatalf("ensure user %q: %v", name, err)
	}

	return u
}

func mustQuestion(ctx context.Context, t *testing.T, svc *Service, prompt string, options ...string) questions.Question {
	t.Helper()

	q, err := svc.CreateQuestion(ctx, prompt, options)
	if err != nil {
		t.Fatalf("create question %q: %v", prompt, err)
	}

	return q
}

func mustBalance(ctx context.Context, t *testing.T, svc *Service, userID uint64) int64 {
	t.Helper()

	bal, err := svc.GetUserBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance %d: %v", userID, err)
	}

	return bal
}

func TestPlaceBet_SuccessDebitsAndPersists(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	u := mustUser(ctx, t, svc, 1001, "alice")
	q := mustQuestion(ctx, t, svc, "rain tomorrow?", "yes", "no")

	placed, err := svc.PlaceBet(ctx, u.ID, q.ID, "yes", 250)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	if placed.UserID != u.ID || placed.QuestionID != q.ID ||
		placed.SelectedOption != "yes" || placed.Amount != 250 {
		t.Fatalf("bet fields mismatch: %+v", placed)
	}
	if placed.PlacedAt.IsZero() {
		t.Fatalf("placed_at not set")
	}

	if got := mustBalance(ctx, t, svc, u.ID); got != startingBalance-250 {
		t.Fatalf("balance after bet: want %d, got %d", startingBalance-250, got)
	}

	stored, err := svc.GetUserBet(ctx, u.ID, q.ID)
	if err != nil {
		t.Fatalf("get user bet: %v", err)
	}
	if stored.ID != placed.ID {
		t.Fatalf("persisted bet mismatch: %+v vs %+v", stored, placed)
	}
}

func TestPlaceBet_Rejections(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	alice := mustUser(ctx, t, svc, 2001, "alice")
	bob := mustUser(ctx, t, svc, 2002, "bob")
	open := mustQuestion(ctx, t, svc, "open question", "yes", "no")
	closed := mustQuestion(ctx, t, svc, "closed question", "yes", "no")

	_, err := svc.CloseQuestion(ctx, closed.ID, "yes")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	// A committed bet, so the duplicate case has something to collide with.
	_, err = svc.PlaceBet(ctx, alice.ID, open.ID, "yes", 10)
	if err != nil {
		t.Fatalf("seed bet: %v", err)
	}

	type tc struct {
		name       string
		userID     uint64
		questionID string
		option     string
		amount     int64
		wantErr    error
	}

	tests := []tc{
		{"zero_amount", bob.ID, open.ID, "yes", 0, ErrInvalidAmount},
		{"negative_amount", bob.ID, open.ID, "yes", -5, ErrInvalidAmount},
		{"empty_option", bob.ID, open.ID, "", 10, ErrInvalidOption},
		{"unknown_option", bob.ID, open.ID, "maybe", 10, ErrInvalidOption},
		{"closed_question", bob.ID, closed.ID, "yes", 10, ErrQuestionClosed},
		{"missing_question", bob.ID, "b71d8a77-9e3f-4d38-b0cb-72c1ce23a60f", "yes", 10, questions.ErrQuestionNotFound},
		{"missing_user", 999_999, open.ID, "yes", 10, users.ErrUserNotFound},
		{"duplicate_pair", alice.ID, open.ID, "no", 10, bets.ErrDuplicateBet},
		{"insufficient_balance", bob.ID, open.ID, "yes", startingBalance + 1, users.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			before := mustBalance(ctx, t, svc, bob.ID)

			_, err := svc.PlaceBet(ctx, tt.userID, tt.questionID, tt.option, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got: %v", tt.wantErr, err)
			}

			// No rejection may move a balance.
			if after := mustBalance(ctx, t, svc, bob.ID); after != before {
				t.Fatalf("rejected bet moved balance: %d -> %d", before, after)
			}
		})
	}
}

func TestPlaceBet_ConcurrentSamePairAdmitsOne(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	u := mustUser(ctx, t, svc, 3001, "racer")
	q := mustQuestion(ctx, t, svc, "race question", "yes", "no")

	const attempts = 8

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.PlaceBet(ctx, u.ID, q.ID, "yes", 50)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, bets.ErrDuplicateBet):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successes != 1 {
		t.Fatalf("exactly one attempt must win, got %d", successes)
	}
	if duplicates != attempts-1 {
		t.Fatalf("want %d duplicates, got %d", attempts-1, duplicates)
	}

	// Only a single debit happened.
	if got := mustBalance(ctx, t, svc, u.ID); got != startingBalance-50 {
		t.Fatalf("balance after race: want %d, got %d", startingBalance-50, got)
	}
}

func TestSettlement_SingleWinnerTakesPool(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	a := mustUser(ctx, t, svc, 4001, "a")
	b := mustUser(ctx, t, svc, 4002, "b")
	c := mustUser(ctx, t, svc, 4003, "c")
	q := mustQuestion(ctx, t, svc, "single winner", "yes", "no")

	for _, bet := range []struct {
		userID uint64
		opt    string
		amount int64
	}{
		{a.ID, "yes", 60},
		{b.ID, "no", 40},
		{c.ID, "no", 20},
	} {
		_, err := svc.PlaceBet(ctx, bet.userID, q.ID, bet.opt, bet.amount)
		if err != nil {
			t.Fatalf("place bet: %v", err)
		}
	}

	res, err := svc.CloseQuestion(ctx, q.ID, "yes")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	if res.Winners != 1 || res.Credited != 120 {
		t.Fatalf("settlement summary mismatch: %+v", res)
	}

	// A: 1000 - 60 + (60 + 60) = 1060; losers stay debited.
	if got := mustBalance(ctx, t, svc, a.ID); got != 1060 {
		t.Fatalf("winner balance: want 1060, got %d", got)
	}
	if got := mustBalance(ctx, t, svc, b.ID); got != 960 {
		t.Fatalf("loser b balance: want 960, got %d", got)
	}
	if got := mustBalance(ctx, t, svc, c.ID); got != 980 {
		t.Fatalf("loser c balance: want 980, got %d", got)
	}
}

func TestSettlement_MultiWinnerProportional(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	a := mustUser(ctx, t, svc, 5001, "a")
	b := mustUser(ctx, t, svc, 5002, "b")
	c := mustUser(ctx, t, svc, 5003, "c")
	q := mustQuestion(ctx, t, svc, "multi winner", "yes", "no")

	for _, bet := range []struct {
		userID uint64
		opt    string
		amount int64
	}{
		{a.ID, "yes", 30},
		{b.ID, "yes", 10},
		{c.ID, "no", 60},
	} {
		_, err := svc.PlaceBet(ctx, bet.userID, q.ID, bet.opt, bet.amount)
		if err != nil {
			t.Fatalf("place bet: %v", err)
		}
	}

	res, err := svc.CloseQuestion(ctx, q.ID, "yes")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	// A: 30 + (30/40)*60 = 75; B: 10 + (10/40)*60 = 25; total 100 = pool.
	if res.Winners != 2 || res.Credited != 100 {
		t.Fatalf("settlement summary mismatch: %+v", res)
	}

	if got := mustBalance(ctx, t, svc, a.ID); got != 1045 {
		t.Fatalf("winner a balance: want 1045, got %d", got)
	}
	if got := mustBalance(ctx, t, svc, b.ID); got != 1015 {
		t.Fatalf("winner b balance: want 1015, got %d", got)
	}
	if got := mustBalance(ctx, t, svc, c.ID); got != 940 {
		t.Fatalf("loser c balance: want 940, got %d", got)
	}
}

func TestSettlement_NoWinners_HouseKeepsStakes(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	a := mustUser(ctx, t, svc, 6001, "a")
	b := mustUser(ctx, t, svc, 6002, "b")
	q := mustQuestion(ctx, t, svc, "nobody wins", "yes", "no", "maybe")

	for _, bet := range []struct {
		userID uint64
		opt    string
		amount int64
	}{
		{a.ID, "yes", 100},
		{b.ID, "no", 200},
	} {
		_, err := svc.PlaceBet(ctx, bet.userID, q.ID, bet.opt, bet.amount)
		if err != nil {
			t.Fatalf("place bet: %v", err)
		}
	}

	res, err := svc.CloseQuestion(ctx, q.ID, "maybe")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	if res.Winners != 0 || res.Credited != 0 {
		t.Fatalf("house policy must credit nothing: %+v", res)
	}

	if got := mustBalance(ctx, t, svc, a.ID); got != 900 {
		t.Fatalf("a balance: want 900, got %d", got)
	}
	if got := mustBalance(ctx, t, svc, b.ID); got != 800 {
		t.Fatalf("b balance: want 800, got %d", got)
	}
}

func TestSettlement_NoWinners_RefundPolicy(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyRefund)
	defer cleanup()

	ctx := testCtx(t)

	a := mustUser(ctx, t, svc, 7001, "a")
	b := mustUser(ctx, t, svc, 7002, "b")
	q := mustQuestion(ctx, t, svc, "nobody wins, refunds", "yes", "no", "maybe")

	for _, bet := range []struct {
		userID uint64
		opt    string
		amount int64
	}{
		{a.ID, "yes", 100},
		{b.ID, "no", 200},
	} {
		_, err := svc.PlaceBet(ctx, bet.userID, q.ID, bet.opt, bet.amount)
		if err != nil {
			t.Fatalf("place bet: %v", err)
		}
	}

	res, err := svc.CloseQuestion(ctx, q.ID, "maybe")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	if res.Credited != 300 {
		t.Fatalf("refund policy must return all stakes: %+v", res)
	}

	if got := mustBalance(ctx, t, svc, a.ID); got != startingBalance {
		t.Fatalf("a balance: want %d, got %d", startingBalance, got)
	}
	if got := mustBalance(ctx, t, svc, b.ID); got != startingBalance {
		t.Fatalf("b balance: want %d, got %d", startingBalance, got)
	}
}

func TestSettlement_RedeliveryCreditsOnce(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	a := mustUser(ctx, t, svc, 8001, "a")
	b := mustUser(ctx, t, svc, 8002, "b")
	q := mustQuestion(ctx, t, svc, "settled twice", "yes", "no")

	_, err := svc.PlaceBet(ctx, a.ID, q.ID, "yes", 60)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	_, err = svc.PlaceBet(ctx, b.ID, q.ID, "no", 40)
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	first, err := svc.CloseQuestion(ctx, q.ID, "yes")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}
	if first.AlreadySettled || first.Credited != 100 {
		t.Fatalf("first settlement summary mismatch: %+v", first)
	}

	// Simulated redelivery of the closure event.
	second, err := svc.Settle(ctx, q.ID)
	if err != nil {
		t.Fatalf("re-settle: %v", err)
	}
	if !second.AlreadySettled || second.Credited != 0 {
		t.Fatalf("redelivery must be a no-op: %+v", second)
	}

	if got := mustBalance(ctx, t, svc, a.ID); got != 1040 {
		t.Fatalf("winner credited more than once: want 1040, got %d", got)
	}
}

func TestSettlement_NoBetsIsNoOp(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	q := mustQuestion(ctx, t, svc, "nobody bet", "yes", "no")

	res, err := svc.CloseQuestion(ctx, q.ID, "yes")
	if err != nil {
		t.Fatalf("close question: %v", err)
	}

	if res.Bets != 0 || res.Credited != 0 {
		t.Fatalf("no-bets settlement must credit nothing: %+v", res)
	}

	// Marker is still set: a later settle is a recognized no-op.
	again, err := svc.Settle(ctx, q.ID)
	if err != nil {
		t.Fatalf("re-settle: %v", err)
	}
	if !again.AlreadySettled {
		t.Fatalf("no-bets settlement must still mark the question settled")
	}
}

func TestCloseQuestion_Validation(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	q := mustQuestion(ctx, t, svc, "validation", "yes", "no")

	_, err := svc.CloseQuestion(ctx, q.ID, "")
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("empty option: want ErrInvalidOption, got %v", err)
	}

	_, err = svc.CloseQuestion(ctx, q.ID, "maybe")
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("unknown option: want ErrInvalidOption, got %v", err)
	}

	_, err = svc.CloseQuestion(ctx, q.ID, "yes")
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = svc.CloseQuestion(ctx, q.ID, "no")
	if !errors.Is(err, questions.ErrAlreadyClosed) {
		t.Fatalf("second close: want ErrAlreadyClosed, got %v", err)
	}

	_, err = svc.Settle(ctx, "b71d8a77-9e3f-4d38-b0cb-72c1ce23a60f")
	if !errors.Is(err, questions.ErrQuestionNotFound) {
		t.Fatalf("settle missing question: want ErrQuestionNotFound, got %v", err)
	}

	open := mustQuestion(ctx, t, svc, "still open", "yes", "no")

	_, err = svc.Settle(ctx, open.ID)
	if !errors.Is(err, questions.ErrNotClosed) {
		t.Fatalf("settle open question: want ErrNotClosed, got %v", err)
	}
}

func TestCreateQuestion_Validation(t *testing.T) {
	t.Parallel()

	svc, cleanup := newTestService(t, PolicyHouseKeeps)
	defer cleanup()

	ctx := testCtx(t)

	type tc struct {
		name    string
		prompt  string
		options []string
	}

	tests := []tc{
		{"empty_prompt", "", []string{"yes", "no"}},
		{"single_option", "q", []string{"yes"}},
		{"duplicate_options", "q", []string{"yes", "yes"}},
		{"blank_option", "q", []string{"yes", "  "}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateQuestion(ctx, tt.prompt, tt.options)
			if !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("want ErrInvalidQuestion, got: %v", err)
			}
		})
	}
}
