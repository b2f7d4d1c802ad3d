package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"offboarding/ocm/internal/app"
)

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// emit prints v as JSON when --json is set and otherwise calls text.
func emit(rt *runtime, v any, text func(w io.Writer)) error {
	if rt.jsonOut || text == nil {
		return writeJSON(v)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func formatError(err error) string {
	var de *app.DomainError
	if errors.As(err, &de) {
		if de.Status > 0 || de.Detail != "" {
			return fmt.Sprintf("%s (%s)", de.Message, de.HTTPText())
		}
		return de.Message
	}
	return err.Error()
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
