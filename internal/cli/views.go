package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"actas-cli/internal/bulk"
	"actas-cli/internal/format"
	"actas-cli/internal/gradebook"
	"actas-cli/internal/model"
	"actas-cli/internal/report"
	"actas-cli/internal/syncer"
)

// The types below only add a markdown rendering for --format md; their json
// encoding is the one of the wrapped type.

func itoa(n int) string { return strconv.Itoa(n) }

func score(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

type actaList []model.Acta

func (l actaList) Markdown() string {
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		complete, valid := "", ""
		if a.Metrics != nil {
			complete = itoa(a.Metrics.CompletenessPct) + "%"
			valid = strconv.FormatBool(a.Metrics.Valid())
		}
		rows = append(rows, []string{a.Ref, string(a.Status), strconv.FormatInt(a.Version, 10), complete, valid})
	}
	return fmt.Sprintf("# Actas (%d)\n\n", len(l)) + format.Table([]string{"ref", "status", "version", "complete", "valid"}, rows)
}

type actaDoc model.Acta

func (d actaDoc) Markdown() string {
	a := model.Acta(d)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n**%s** · version %d", a.Ref, a.Status, a.Version)
	if !a.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, " · updated %s", a.UpdatedAt.Format("2006-01-02 15:04"))
	}
	b.WriteString("\n\n")
	if a.Metrics != nil {
		m := a.Metrics
		fmt.Fprintf(&b, "Weights %.2f · completeness %d%% (%d/%d) · out of range %d\n\n",
			m.SumOfWeights, m.CompletenessPct, m.FilledCells, m.ExpectedCells, m.OutOfRange)
		for _, e := range m.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		if len(m.Errors) > 0 {
			b.WriteString("\n")
		}
	}
	header := []string{"student"}
	for _, e := range a.Evaluations {
		header = append(header, fmt.Sprintf("%s (%g%%)", e.ID, e.Weight))
	}
	header = append(header, "final")
	rows := make([][]string, 0, len(a.Students))
	for _, s := range a.Students {
		row := []string{s}
		for _, e := range a.Evaluations {
			row = append(row, score(a.Grades.Score(s, e.ID)))
		}
		final := ""
		if v, ok := report.FinalScore(a, s); ok {
			final = strconv.FormatFloat(v, 'f', 2, 64)
		}
		rows = append(rows, append(row, final))
	}
	b.WriteString(format.Table(header, rows))
	return b.String()
}

type actaView gradebook.View

func (v actaView) Markdown() string {
	var b strings.Builder
	b.WriteString(actaDoc(v.Acta).Markdown())
	if v.Conflict != nil {
		fmt.Fprintf(&b, "\n\n> **Conflict:** %s %s rejected (base %d, server %d): %s",
			v.Conflict.Operation, v.Conflict.EntryID, v.Conflict.BaseVersion, v.Conflict.CurrentVersion, v.Conflict.Reason)
	}
	if len(v.Pending) > 0 {
		b.WriteString("\n\n## Pending\n\n")
		b.WriteString(entriesTable(v.Pending))
	}
	return b.String()
}

func entriesTable(es []model.QueueEntry) string {
	rows := make([][]string, 0, len(es))
	for _, e := range es {
		rows = append(rows, []string{strconv.FormatUint(e.Seq, 10), e.TargetRef, string(e.Operation),
			strconv.FormatInt(e.BaseVersion, 10), itoa(e.Attempts), e.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	return format.Table([]string{"seq", "ref", "op", "base", "attempts", "created"}, rows)
}

type outcome gradebook.Outcome

func (o outcome) Markdown() string {
	line := fmt.Sprintf("%s: %s → %s", o.Acta.Ref, o.From, o.To)
	switch {
	case o.Queued != nil:
		line += fmt.Sprintf(" (queued %s, base version %d)", o.Queued.Operation, o.Queued.BaseVersion)
	case !o.Changed:
		line += " (no change)"
	}
	return line
}

type bulkDoc bulk.Result

func (r bulkDoc) Markdown() string {
	refs := make([]string, 0, len(r.Details))
	for ref := range r.Details {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		d := r.Details[ref]
		msg := d.Message
		if len(d.Errors) > 0 {
			msg = strings.Join(d.Errors, "; ")
		}
		rows = append(rows, []string{ref, strconv.FormatBool(d.OK), string(d.Status), d.Reason, msg})
	}
	return fmt.Sprintf("**%d succeeded (%d unchanged), %d failed**\n\n", r.Succeeded, r.Unchanged, r.Failed) +
		format.Table([]string{"ref", "ok", "status", "reason", "detail"}, rows)
}

type metricsDoc model.Metrics

func (m metricsDoc) Markdown() string {
	mm := model.Metrics(m)
	var b strings.Builder
	fmt.Fprintf(&b, "valid: %t\n\n", mm.Valid())
	fmt.Fprintf(&b, "- sum of weights: %.2f\n- completeness: %d%% (%d/%d)\n- out of range: %d",
		mm.SumOfWeights, mm.CompletenessPct, mm.FilledCells, mm.ExpectedCells, mm.OutOfRange)
	for _, e := range mm.Errors {
		fmt.Fprintf(&b, "\n- error: %s", e)
	}
	return b.String()
}

type projectionDoc report.Projection

func (p projectionDoc) Markdown() string {
	return fmt.Sprintf("# %s (%d rows)\n\n", p.Kind, len(p.Rows)) + format.Table(p.Header, p.Rows)
}

type statusDoc syncer.Status

func (s statusDoc) Markdown() string {
	conn := "offline"
	if s.Online {
		conn = "online"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Sync (%s)\n\n- pending: %d\n- stalled: %d\n- conflicts: %d", conn, s.Pending, s.Stalled, s.Conflicts)
	for _, k := range s.Corrupted {
		fmt.Fprintf(&b, "\n- corrupted: `%s`", k)
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "\n- last error: %s", s.LastError)
	}
	return b.String()
}

type queueDoc queueListing

func (q queueDoc) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Queue (%d)\n\n", len(q.Entries))
	b.WriteString(entriesTable(q.Entries))
	if len(q.Corrupted) > 0 {
		b.WriteString("\n\n## Corrupted\n")
		for _, c := range q.Corrupted {
			fmt.Fprintf(&b, "\n- `%s`: %s", c.Key, c.Error)
		}
	}
	return b.String()
}

type conflictList []model.Conflict

func (l conflictList) Markdown() string {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		rows = append(rows, []string{c.Ref, string(c.Operation), strconv.FormatInt(c.BaseVersion, 10),
			strconv.FormatInt(c.CurrentVersion, 10), c.Reason})
	}
	return fmt.Sprintf("# Conflicts (%d)\n\n", len(l)) + format.Table([]string{"ref", "op", "base", "server", "reason"}, rows)
}
