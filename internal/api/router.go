package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tgpredict/parimarket/internal/services/market"
)

// NewRouter constructs the router with all API endpoints registered.
func NewRouter(svc *market.Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/users", h.EnsureUserHandler)

	r.Get("/questions", h.ListOpenQuestionsHandler)
	r.Post("/questions", h.CreateQuestionHandler)
	r.Get("/questions/{questionId}", h.GetQuestionHandler)
	r.Post("/questions/{questionId}/close", h.CloseQuestionHandler)
	r.Post("/questions/{questionId}/settle", h.SettleQuestionHandler)

	r.Post("/user/{userId}/bets", h.PlaceBetHandler)
	r.Get("/user/{userId}/bets/{questionId}", h.GetUserBetHandler)
	r.Get("/user/{userId}/balance", h.GetBalanceHandler)

	return r
}
