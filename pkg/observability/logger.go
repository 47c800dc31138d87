package observability

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a configured logrus logger. Level is one of debug,
// info, warn, error (defaulting to info); jsonFormat selects the JSON
// formatter for log aggregation.
func NewLogger(level string, jsonFormat bool, output io.Writer) *logrus.Logger {
	logger := logrus.New()

	if output == nil {
		output = os.Stdout
	}
	logger.SetOutput(output)

	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if jsonFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
