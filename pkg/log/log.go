package log

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// New returns a zerolog logger writing JSON to stderr when running in
// Kubernetes and a console format to stdout otherwise.
func New() *zerolog.Logger {
	var output io.Writer
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05.999Z07:00"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	logger := zerolog.New(output).With().Timestamp().Logger()
	return &logger
}

// NewLogr wraps New for components that accept a logr.Logger. verbosity
// enables V(n) records up to n.
func NewLogr(name string, verbosity int) logr.Logger {
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"
	zerologr.SetMaxV(verbosity)

	zl := New().Level(zerolog.DebugLevel)
	return zerologr.New(&zl).WithName(name)
}
