// Package logging builds the go-kit loggers used across meshbuf.
package logging

import (
	"fmt"
	"io"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// New returns a logfmt logger writing to w that drops records below lvl.
// Valid levels are debug, info, warn and error.
func New(w io.Writer, lvl string) (kitlog.Logger, error) {
	allow, err := ParseLevel(lvl)
	if err != nil {
		return nil, err
	}
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC, "caller", kitlog.DefaultCaller)
	return level.NewFilter(logger, allow), nil
}

// ParseLevel maps a level name to a go-kit filter option.
func ParseLevel(lvl string) (level.Option, error) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return level.AllowDebug(), nil
	case "", "info":
		return level.AllowInfo(), nil
	case "warn", "warning":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	case "none":
		return level.AllowNone(), nil
	default:
		return nil, fmt.Errorf("unknown log level %q", lvl)
	}
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger kitlog.Logger) kitlog.Logger {
	if logger == nil {
		return kitlog.NewNopLogger()
	}
	return logger
}
