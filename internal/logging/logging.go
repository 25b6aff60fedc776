// Package logging installs the process wide go-logging backend.
package logging

import (
	"io"

	"github.com/op/go-logging"
)

const DefaultLevel = logging.WARNING

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}%{color:reset}`,
)

var plainFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module} ▶ %{message}`,
)

// Setup sends every module's log to w at level, e.g. "DEBUG". An empty
// level means DefaultLevel. Colors are used only when color is set.
func Setup(w io.Writer, level string, color bool) (logging.Level, error) {
	lvl := DefaultLevel
	if level != "" {
		var err error
		if lvl, err = logging.LogLevel(level); err != nil {
			return lvl, err
		}
	}
	format := plainFormat
	if color {
		format = stderrFormat
	}
	backend := logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), format)
	leveled := logging.AddModuleLevel(backend)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)
	return lvl, nil
}
