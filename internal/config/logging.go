package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the logger shared by shodhd and the shodh CLI: a text
// handler on stderr for whoever is watching the process, and a JSON handler
// appending to logFile so a WAL-corruption or decay-sweep trail can be
// grepped after the fact without re-running the process. slog-multi's
// Fanout dispatches every Record to both handlers from a single call site,
// so neither the engine nor the scheduler has to know logging is dual-sink.
// A file open failure degrades to stderr-only rather than blocking startup
// on a logging path — the engine's recovery policy elsewhere (WAL replay,
// snapshot load) takes the same "log and continue" stance on I/O trouble.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("could not open log file, continuing on stderr only", "error", err, "file", logFile)
		return slog.New(stderrHandler), func() error { return nil }
	}

	// AddSource on the file sink only: stderr stays terse for a live
	// operator, the JSON file keeps the call site for later triage of
	// corruption/decay warnings emitted from deep inside a namespace.
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level, AddSource: true})
	logger := slog.New(slogmulti.Fanout(stderrHandler, fileHandler))

	return logger, file.Close
}

// SetupLoggerWithWriters builds the same dual-handler logger as SetupLogger
// over caller-supplied writers, so tests can assert on rendered log lines
// without touching the filesystem.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	stderrHandler := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level, AddSource: true})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler))
}
