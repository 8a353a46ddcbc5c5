package format

import (
	"bytes"
	"strings"
	"testing"
)

type row struct {
	Ref     string   `json:"ref"`
	Version int64    `json:"version"`
	Score   *float64 `json:"score"`
	Tags    []string `json:"tags"`
}

func TestWriteEDN(t *testing.T) {
	var buf bytes.Buffer
	v := map[string]any{"data": row{Ref: "2024:5A:MAT:1", Version: 9007199254740993, Tags: []string{"a b"}}}
	if err := Write(&buf, v, "edn", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := `{:data {:ref "2024:5A:MAT:1" :score nil :tags ["a b"] :version 9007199254740993}}` + "\n"
	if buf.String() != want {
		t.Fatalf("unexpected edn:\n got: %s\nwant: %s", buf.String(), want)
	}
}

func TestWriteEDN_Pretty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteEDN(&buf, map[string]any{"n": 1.5, "xs": []int{}}, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "{\n  :n 1.5\n  :xs []\n}\n"
	if buf.String() != want {
		t.Fatalf("unexpected pretty edn: %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, map[string]int{"a": 1}, "", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "{\"a\":1}\n" {
		t.Fatalf("unexpected json: %q", buf.String())
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, 1, "xml", false); err == nil {
		t.Fatalf("expected error")
	}
}

type doc struct{}

func (doc) Markdown() string { return "# Actas\n\n" + Table([]string{"ref", "note"}, [][]string{{"2024:5A:MAT:1", "a|b"}}) }

func TestWriteMarkdown_Source(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, doc{}, "md", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "# Actas") || !strings.Contains(out, `| 2024:5A:MAT:1 | a\|b |`) {
		t.Fatalf("unexpected markdown: %q", out)
	}

	buf.Reset()
	if err := Write(&buf, map[string]int{"a": 1}, "md", false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "```json\n") {
		t.Fatalf("expected fenced json fallback, got %q", buf.String())
	}
}

func TestWriteMarkdown_Rendered(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	if err := Write(&buf, doc{}, "md", true); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "2024:5A:MAT:1") {
		t.Fatalf("rendered output lost content: %q", buf.String())
	}
}
