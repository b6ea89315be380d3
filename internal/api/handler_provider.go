package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tgpredict/parimarket/internal/infra/metrics"
	"github.com/tgpredict/parimarket/internal/repos/bets"
	"github.com/tgpredict/parimarket/internal/repos/questions"
	"github.com/tgpredict/parimarket/internal/repos/users"
	"github.com/tgpredict/parimarket/internal/services/market"
)

// HandlerProvider wraps the market Service and exposes HTTP handlers.
type HandlerProvider struct {
	svc *market.Service
}

// NewHandler returns a new handler provider.
func NewHandler(svc *market.Service) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseUserIDFromPath reads `{userId}` from chi routes like:
//
//	GET  /user/{userId}/balance
//	POST /user/{userId}/bets
func parseUserIDFromPath(r *http.Request) (uint64, error) {
	idStr := chi.URLParam(r, "userId")
	if idStr == "" {
		return 0, fmt.Errorf("missing userId")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid userId: %w", err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid userId: must be positive")
	}

	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty body")
		}

		return fmt.Errorf("invalid JSON")
	}

	return nil
}

// --- DTOs ---

type questionResponse struct {
	ID            string    `json:"id"`
	Prompt        string    `json:"prompt"`
	Options       []string  `json:"options"`
	Status        string    `json:"status"`
	CorrectOption string    `json:"correctOption,omitempty"`
	Settled       bool      `json:"settled"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toQuestionResponse(q questions.Question) questionResponse {
	return questionResponse{
		ID:            q.ID,
		Prompt:        q.Prompt,
		Options:       q.Options,
		Status:        string(q.Status),
		CorrectOption: q.CorrectOption,
		Settled:       q.SettledAt != nil,
		CreatedAt:     q.CreatedAt,
	}
}

type betResponse struct {
	ID             string    `json:"id"`
	UserID         uint64    `json:"userId"`
	QuestionID     string    `json:"questionId"`
	SelectedOption string    `json:"selectedOption"`
	Amount         int64     `json:"amount"`
	PlacedAt       time.Time `json:"placedAt"`
}

func toBetResponse(b bets.Bet) betResponse {
	return betResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		QuestionID:     b.QuestionID,
		SelectedOption: b.SelectedOption,
		Amount:         b.Amount,
		PlacedAt:       b.PlacedAt,
	}
}

type settlementResponse struct {
	QuestionID     string `json:"questionId"`
	AlreadySettled bool   `json:"alreadySettled"`
	Bets           int    `json:"bets"`
	Winners        int    `json:"winners"`
	Credited       int64  `json:"credited"`
}

func toSettlementResponse(res market.SettlementResult) settlementResponse {
	return settlementResponse{
		QuestionID:     res.QuestionID,
		AlreadySettled: res.AlreadySettled,
		Bets:           res.Bets,
		Winners:        res.Winners,
		Credited:       res.Credited,
	}
}

// --- Handlers ---

// EnsureUserHandler handles POST /users. The caller's identity was already
// verified upstream; the telegram id is trusted as given.
func (h *HandlerProvider) EnsureUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramID int64  `json:"telegramId"`
		Name       string `json:"name"`
	}

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.TelegramID == 0 || req.Name == "" {
		writeError(w, http.StatusBadRequest, "telegramId and name required")
		return
	}

	u, err := h.svc.EnsureUser(r.Context(), req.TelegramID, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  u.ID,
		"name":    u.Name,
		"balance": u.Balance,
	})
}

// CreateQuestionHandler handles POST /questions (administrative).
func (h *HandlerProvider) CreateQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt  string   `json:"prompt"`
		Options []string `json:"options"`
	}

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := h.svc.CreateQuestion(r.Context(), req.Prompt, req.Options)
	if err != nil {
		if errors.Is(err, market.ErrInvalidQuestion) {
			writeError(w, http.StatusBadRequest, market.ErrInvalidQuestion.Error())
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toQuestionResponse(q))
}

// ListOpenQuestionsHandler handles GET /questions.
func (h *HandlerProvider) ListOpenQuestionsHandler(w http.ResponseWriter, r *http.Request) {
	qs, err := h.svc.GetOpenQuestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]questionResponse, 0, len(qs))
	for _, q := range qs {
		out = append(out, toQuestionResponse(q))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetQuestionHandler handles GET /questions/{questionId}.
func (h *HandlerProvider) GetQuestionHandler(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.GetQuestion(r.Context(), chi.URLParam(r, "questionId"))
	if err != nil {
		if errors.Is(err, questions.ErrQuestionNotFound) {
			writeError(w, http.StatusNotFound, "question not found")
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toQuestionResponse(q))
}

// CloseQuestionHandler handles POST /questions/{questionId}/close.
// Closing triggers settlement; the response carries the settlement summary.
func (h *HandlerProvider) CloseQuestionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CorrectOption string `json:"correctOption"`
	}

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.CloseQuestion(r.Context(), chi.URLParam(r, "questionId"), req.CorrectOption)
	if err != nil {
		switch {
		case errors.Is(err, questions.ErrQuestionNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, questions.ErrAlreadyClosed):
			writeError(w, http.StatusConflict, "question already closed")
		case errors.Is(err, market.ErrInvalidOption):
			writeError(w, http.StatusBadRequest, market.ErrInvalidOption.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}

		return
	}

	h.recordSettlement(res)
	writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

// SettleQuestionHandler handles POST /questions/{questionId}/settle.
// Idempotent: redelivered closure events re-enter here safely.
func (h *HandlerProvider) SettleQuestionHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Settle(r.Context(), chi.URLParam(r, "questionId"))
	if err != nil {
		switch {
		case errors.Is(err, questions.ErrQuestionNotFound):
			writeError(w, http.StatusNotFound, "question not found")
		case errors.Is(err, questions.ErrNotClosed):
			writeError(w, http.StatusConflict, "question not closed")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}

		return
	}

	h.recordSettlement(res)
	writeJSON(w, http.StatusOK, toSettlementResponse(res))
}

func (h *HandlerProvider) recordSettlement(res market.SettlementResult) {
	if res.AlreadySettled {
		return
	}

	metrics.QuestionsSettled.Inc()
	metrics.PointsCredited.Add(float64(res.Credited))
}

// PlaceBetHandler handles POST /user/{userId}/bets.
func (h *HandlerProvider) PlaceBetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	var req struct {
		QuestionID     string `json:"questionId"`
		SelectedOption string `json:"selectedOption"`
		Amount         int64  `json:"amount"`
	}

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b, err := h.svc.PlaceBet(r.Context(), userID, req.QuestionID, req.SelectedOption, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrInvalidAmount):
			metrics.BetsRejected.WithLabelValues("invalid_amount").Inc()
			writeError(w, http.StatusBadRequest, market.ErrInvalidAmount.Error())
		case errors.Is(err, market.ErrInvalidOption):
			metrics.BetsRejected.WithLabelValues("invalid_option").Inc()
			writeError(w, http.StatusBadRequest, market.ErrInvalidOption.Error())
		case errors.Is(err, market.ErrQuestionClosed):
			metrics.BetsRejected.WithLabelValues("question_closed").Inc()
			writeError(w, http.StatusConflict, market.ErrQuestionClosed.Error())
		case errors.Is(err, bets.ErrDuplicateBet):
			metrics.BetsRejected.WithLabelValues("duplicate_bet").Inc()
			writeError(w, http.StatusConflict, "already bet")
		case errors.Is(err, users.ErrInsufficientBalance):
			metrics.BetsRejected.WithLabelValues("insufficient_balance").Inc()
			writeError(w, http.StatusConflict, "insufficient balance")
		case errors.Is(err, questions.ErrQuestionNotFound), errors.Is(err, users.ErrUserNotFound):
			metrics.BetsRejected.WithLabelValues("not_found").Inc()
			writeError(w, http.StatusNotFound, "not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}

		return
	}

	metrics.BetsPlaced.Inc()
	writeJSON(w, http.StatusCreated, toBetResponse(b))
}

// GetUserBetHandler handles GET /user/{userId}/bets/{questionId}.
func (h *HandlerProvider) GetUserBetHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	b, err := h.svc.GetUserBet(r.Context(), userID, chi.URLParam(r, "questionId"))
	if err != nil {
		if errors.Is(err, bets.ErrBetNotFound) {
			writeError(w, http.StatusNotFound, "bet not found")
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toBetResponse(b))
}

// GetBalanceHandler handles GET /user/{userId}/balance.
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid userId in path")
		return
	}

	bal, err := h.svc.GetUserBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"balance": bal,
	})
}
