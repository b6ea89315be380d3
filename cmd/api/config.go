package main

import (
	"log/slog"
	"time"

	"github.com/tgpredict/parimarket/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080"`
	MetricsPort     uint16        `env:"METRICS_PORT" default:"9095"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`

	// StartingBalance is the points grant on first sight of a new user.
	StartingBalance int64 `env:"STARTING_BALANCE" default:"1000"`
	// NoWinnersPolicy: "house" keeps stakes when nobody wins, "refund"
	// hands losers their stakes back.
	NoWinnersPolicy string `env:"NO_WINNERS_POLICY" default:"house"`

	Postgres config.PostgresConfig
}
