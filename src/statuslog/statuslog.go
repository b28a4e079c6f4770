// Package statuslog carries the human readable status stream of the
// simulation: one formatted line per call, safe for concurrent use.
// Line atomicity is guaranteed, ordering across goroutines is not.
package statuslog

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Logger interface {
	Logf(format string, args ...any)
}

// Slog writes status lines as info records of a slog logger.
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps logger, or the default logger if logger is nil.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

func (s *Slog) Logf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

// Zerolog writes status lines through a zerolog console writer.
type Zerolog struct {
	logger zerolog.Logger
}

func NewZerolog(w io.Writer, runID string) *Zerolog {
	output := zerolog.ConsoleWriter{
		Out:        zerolog.SyncWriter(w),
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	}
	return &Zerolog{logger: zerolog.New(output).With().Timestamp().Str("run", runID).Logger()}
}

func (z *Zerolog) Logf(format string, args ...any) {
	z.logger.Info().Msgf(format, args...)
}

// Discard drops every line.
var Discard Logger = discard{}

type discard struct{}

func (discard) Logf(string, ...any) {}

// Recorder keeps every line in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Count returns how many recorded lines contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}
