package logging

import (
	"log/slog"
	"os"
)

// New builds the JSON logger every service shares. The service name is
// attached once so the aggregated stream can be split by origin.
func New(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h).With("service", service)
}
