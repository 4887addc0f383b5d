package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/eleven-am/warden/internal/domain"
)

// Exit codes follow the status class of the error.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInvalid     = 2
	ExitNotFound    = 3
	ExitConflict    = 4
	ExitUnavailable = 5
)

func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch domain.StatusCode(err) {
	case http.StatusBadRequest:
		return ExitInvalid
	case http.StatusNotFound:
		return ExitNotFound
	case http.StatusConflict:
		return ExitConflict
	case http.StatusServiceUnavailable:
		return ExitUnavailable
	}
	return ExitFailure
}

// writeOutput prints v as indented JSON, or calls text for the text format.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}
	text(w)
	return nil
}
