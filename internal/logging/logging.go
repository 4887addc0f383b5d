// Package logging configures the process-wide logrus logger and hands out
// component scoped entries.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup sets level and output format of the standard logger.
func Setup(level, format string, out io.Writer) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if out == nil {
		out = os.Stderr
	}

	log.SetLevel(parsed)
	log.SetOutput(out)

	switch format {
	case "", FormatText:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Component returns an entry tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}

// OrDefault returns logger, or a component entry on the standard logger when
// logger is nil.
func OrDefault(logger log.FieldLogger, name string) log.FieldLogger {
	if logger == nil {
		return Component(name)
	}
	return logger
}
