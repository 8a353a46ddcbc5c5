package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// Markdowner is implemented by CLI payloads with a human-readable rendering.
type Markdowner interface {
	Markdown() string
}

var (
	mdMu       sync.Mutex
	mdRenderer *glamour.TermRenderer
)

// WriteMarkdown renders v. With pretty=false the raw markdown source is
// written, which keeps the output diffable in scripts.
func WriteMarkdown(w io.Writer, v any, pretty bool) error {
	src, err := MarkdownSource(v)
	if err != nil {
		return err
	}
	if !pretty {
		_, err = fmt.Fprintln(w, src)
		return err
	}
	r, err := renderer()
	if err != nil {
		return err
	}
	out, err := r.Render(src)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// MarkdownSource returns the markdown for v: its own rendering when it is a
// Markdowner, a fenced json block otherwise.
func MarkdownSource(v any) (string, error) {
	if m, ok := v.(Markdowner); ok {
		return strings.TrimSpace(m.Markdown()), nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

// renderer uses a fixed style picked from the environment; auto style
// detection queries the terminal and can block when stdout is a pipe.
func renderer() (*glamour.TermRenderer, error) {
	mdMu.Lock()
	defer mdMu.Unlock()
	if mdRenderer != nil {
		return mdRenderer, nil
	}
	style := styles.DarkStyle
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" || termenv.EnvColorProfile() == termenv.Ascii {
		style = styles.NoTTYStyle
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle(style), glamour.WithWordWrap(100))
	if err != nil {
		return nil, err
	}
	mdRenderer = r
	return r, nil
}

// Table renders a markdown table. Pipes in cells are escaped.
func Table(header []string, rows [][]string) string {
	var b strings.Builder
	cell := func(s string) string { return strings.ReplaceAll(s, "|", `\|`) }
	b.WriteString("|")
	for _, h := range header {
		b.WriteString(" " + cell(h) + " |")
	}
	b.WriteString("\n|")
	for range header {
		b.WriteString(" --- |")
	}
	for _, r := range rows {
		b.WriteString("\n|")
		for i := range header {
			v := ""
			if i < len(r) {
				v = r[i]
			}
			b.WriteString(" " + cell(v) + " |")
		}
	}
	return b.String()
}
