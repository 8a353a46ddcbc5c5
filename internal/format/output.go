// Package format writes CLI results as json (default), edn or md.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	JSON     = "json"
	EDN      = "edn"
	Markdown = "md"
)

// Write encodes v in the requested format. md renders values that implement
// Markdowner through glamour and falls back to a fenced json block otherwise.
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", JSON:
		return WriteJSON(w, v, pretty)
	case EDN:
		return WriteEDN(w, v, pretty)
	case Markdown, "markdown":
		return WriteMarkdown(w, v, pretty)
	default:
		return fmt.Errorf("unknown format: %s (want json|edn|md)", format)
	}
}

// WriteJSON keeps output strict JSON, one document per call.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
