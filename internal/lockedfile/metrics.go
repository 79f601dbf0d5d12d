package lockedfile

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// EnvDebugLocks enables lock metrics logging when set to a truthy value
// (anything except empty, "0", "false", or "no", case-insensitive).
const EnvDebugLocks = "FSPEC_DEBUG_LOCKS"

type lockKind string

const (
	lockRead  lockKind = "read"
	lockWrite lockKind = "write"
)

// metrics emits one structured debug line per lock acquisition: wait time,
// hold duration, and inter-process retry count. When disabled every call is a
// cheap no-op; metrics never affect the control flow or timing of the locks
// themselves.
type metrics struct {
	enabled bool
	logger  *slog.Logger
}

func newMetricsFromEnv() *metrics {
	if !truthyEnv(os.Getenv(EnvDebugLocks)) {
		return &metrics{}
	}
	return newMetrics(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
}

func newMetrics(logger *slog.Logger) *metrics {
	return &metrics{enabled: true, logger: logger}
}

func truthyEnv(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func (m *metrics) record(kind lockKind, path string, wait, hold time.Duration, retries int) {
	if !m.enabled {
		return
	}
	m.logger.Debug("lock",
		slog.String("type", string(kind)),
		slog.String("path", path),
		slog.Int64("wait_ms", wait.Milliseconds()),
		slog.Int64("hold_ms", hold.Milliseconds()),
		slog.Int("retries", retries),
	)
}
