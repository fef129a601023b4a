// control/logger.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
)

// NewLogger builds the root logger from cfg. Output defaults to stderr.
func NewLogger(cfg *Config, out io.Writer) hclog.Logger {
	if out == nil {
		out = os.Stderr
	}
	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       cfg.Name,
		Level:      level,
		Output:     out,
		JSONFormat: cfg.LogJSON,
	})
}
