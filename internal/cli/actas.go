package cli

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"actas-cli/internal/model"
)

type filterFlags struct {
	year      int
	term      string
	nivel     string
	grado     string
	seccion   string
	sectionID string
	subjectID string
	status    string
}

func (f *filterFlags) bind(cmd *cobra.Command, withStatus bool) {
	cmd.Flags().IntVar(&f.year, "year", 0, "Academic year")
	cmd.Flags().StringVar(&f.term, "term", "", "Term")
	cmd.Flags().StringVar(&f.nivel, "nivel", "", "Nivel label")
	cmd.Flags().StringVar(&f.grado, "grado", "", "Grado label")
	cmd.Flags().StringVar(&f.seccion, "seccion", "", "Seccion label")
	cmd.Flags().StringVar(&f.sectionID, "section", "", "Section id")
	cmd.Flags().StringVar(&f.subjectID, "subject", "", "Subject id")
	if withStatus {
		cmd.Flags().StringVar(&f.status, "status", "", "Status (draft|locked|published)")
	}
}

func (f filterFlags) filter() (model.Filter, error) {
	out := model.Filter{
		Year:      f.year,
		Term:      strings.TrimSpace(f.term),
		Nivel:     strings.TrimSpace(f.nivel),
		Grado:     strings.TrimSpace(f.grado),
		Seccion:   strings.TrimSpace(f.seccion),
		SectionID: strings.TrimSpace(f.sectionID),
		SubjectID: strings.TrimSpace(f.subjectID),
	}
	if strings.TrimSpace(f.status) != "" {
		st, err := model.ParseStatus(f.status)
		if err != nil {
			return model.Filter{}, model.InputError{Err: err}
		}
		out.Status = st
	}
	return out, nil
}

func newListCmd(app *App) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached actas (with derived metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			actas, err := s.client.List(cmd.Context(), f)
			if err != nil {
				return writeErr(cmd, err)
			}
			if actas == nil {
				actas = []model.Acta{}
			}
			if len(actas) == 0 {
				return writeOut(cmd, app, actaList(actas), "actas pull")
			}
			return writeOut(cmd, app, actaList(actas))
		},
	}
	ff.bind(cmd, true)
	return cmd
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <ref>",
		Short: "Show one cached acta with its pending changes and conflict marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			v, err := s.client.Show(cmd.Context(), args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			var hints []string
			if v.Conflict != nil {
				hints = append(hints, "actas refresh "+v.Acta.Ref)
			} else if len(v.Pending) > 0 {
				hints = append(hints, "actas sync now")
			}
			return writeOut(cmd, app, actaView(v), hints...)
		},
	}
}

func newCreateMissingCmd(app *App) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "create-missing",
		Short: "Create the missing DRAFT actas of a year and term on the server, then pull them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			if f.Year <= 0 || f.Term == "" {
				return writeErr(cmd, model.InputError{Err: errors.New("--year and --term are required")})
			}
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			n, err := s.client.CreateMissing(cmd.Context(), f.Year, f.Term, f)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"created": n}, "actas list --year "+itoa(f.Year)+" --term "+f.Term)
		},
	}
	ff.bind(cmd, false)
	return cmd
}

func newSaveCmd(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save <ref>",
		Short: "Replace the grades (and optionally the evaluations) of a DRAFT acta",
		Long: strings.TrimSpace(`
Reads a grade sheet as JSON from --file (or stdin with --file -):

  {"evaluations": [{"id": "E1", "weight": 40}, {"id": "E2", "weight": 60}],
   "grades": {"s1": {"E1": 14, "E2": null}}}

The change is applied to the local cache and queued for the server.`),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, err := readSheet(cmd, file)
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			out, err := s.client.Save(cmd.Context(), args[0], sheet)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, outcome(out), "actas sync now")
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Grade sheet JSON file ('-' for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readSheet(cmd *cobra.Command, path string) (model.GradeSheet, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return model.GradeSheet{}, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var sheet model.GradeSheet
	if err := dec.Decode(&sheet); err != nil {
		return model.GradeSheet{}, model.InputError{Err: errors.Wrap(err, "decode grade sheet")}
	}
	return sheet, nil
}

func newPullCmd(app *App) *cobra.Command {
	var ff filterFlags
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Copy server actas into the local cache (refs with pending changes or conflicts are skipped)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ff.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			res, err := s.client.Pull(cmd.Context(), f)
			if err != nil {
				return writeErr(cmd, err)
			}
			if len(res.Skipped) > 0 {
				return writeOut(cmd, app, res, "actas sync now", "actas conflicts")
			}
			return writeOut(cmd, app, res)
		},
	}
	ff.bind(cmd, true)
	return cmd
}

func newRefreshCmd(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "refresh <ref>",
		Short: "Replace the cached acta with the server copy and clear its conflict marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			a, err := s.client.Refresh(cmd.Context(), args[0], force)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, actaDoc(a))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard unsynced local changes of the ref")
	return cmd
}

func newConflictsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List refs whose queued changes were rejected by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			cs, err := s.repo.Conflicts(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if cs == nil {
				cs = []model.Conflict{}
			}
			var hints []string
			for _, c := range cs {
				hints = append(hints, "actas refresh "+c.Ref)
			}
			return writeOut(cmd, app, conflictList(cs), hints...)
		},
	}
}
