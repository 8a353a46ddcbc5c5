package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"actas-cli/internal/model"
	"actas-cli/internal/report"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		ff         filterFlags
		kind       string
		toDir      string
		overwrite  bool
		csv        bool
		fromServer bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Project PUBLISHED actas into a report (centralizador|boletines)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := report.ParseKind(kind)
			if err != nil {
				return writeErr(cmd, model.InputError{Err: err})
			}
			f, err := ff.filter()
			if err != nil {
				return writeErr(cmd, err)
			}
			if csv && strings.TrimSpace(toDir) != "" {
				return writeErr(cmd, model.InputError{Err: errors.New("--csv and --to are exclusive")})
			}
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			var p report.Projection
			if fromServer {
				h, err := s.remote()
				if err != nil {
					return writeErr(cmd, err)
				}
				p, err = h.ExportProjection(cmd.Context(), f, k)
				if err != nil {
					return writeErr(cmd, err)
				}
			} else {
				p, err = s.client.Export(cmd.Context(), f, k)
				if err != nil {
					return writeErr(cmd, err)
				}
			}

			switch {
			case csv:
				if err := report.WriteCSV(cmd.OutOrStdout(), p); err != nil {
					return writeErr(cmd, err)
				}
				return nil
			case strings.TrimSpace(toDir) != "":
				res, err := report.WriteFile(toDir, p, report.WriteOptions{Overwrite: overwrite})
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeOut(cmd, app, res)
			}
			return writeOut(cmd, app, projectionDoc(p))
		},
	}
	ff.bind(cmd, false)
	cmd.Flags().StringVar(&kind, "kind", "", "Report kind (centralizador|boletines)")
	_ = cmd.MarkFlagRequired("kind")
	cmd.Flags().StringVar(&toDir, "to", "", "Write <kind>.csv into this directory")
	cmd.Flags().BoolVar(&overwrite, "overwrite", true, "Overwrite an existing file")
	cmd.Flags().BoolVar(&csv, "csv", false, "Write CSV to stdout")
	cmd.Flags().BoolVar(&fromServer, "server", false, "Project the server's actas instead of the local cache")
	return cmd
}
