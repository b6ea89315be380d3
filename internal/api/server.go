package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tgpredict/parimarket/internal/services/market"
)

// NewServer creates and returns a configured *http.Server for the market API.
func NewServer(port uint16, svc *market.Service) *http.Server {
	mux := NewRouter(svc)

	addr := fmt.Sprintf(":%d", port)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
