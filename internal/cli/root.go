package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"actas-cli/internal/config"
	"actas-cli/internal/format"
	"actas-cli/internal/observability"
)

type App struct {
	Dir      string
	Scope    string
	Remote   string
	Format   string
	Pretty   bool
	Offline  bool
	LogLevel string

	cfg config.Config
	log *slog.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:           "actas",
		Short:         "Offline-first grade records (actas) CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Pull the term's actas into the local cache
  actas pull --year 2024 --term 1

  # Edit offline, then lock; both changes are queued
  actas save 2024:5A:MAT:1 --file grades.json
  actas lock 2024:5A:MAT:1

  # Replay the queue when the server is reachable
  actas sync now

  # Direct lookup (shortcut for: actas show <ref>)
  actas 2024:5A:MAT:1
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.load(cmd)
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", "", "Local store dir (default: config dir, ~/.actas)")
	cmd.PersistentFlags().StringVar(&app.Scope, "scope", "", "Store scope; each scope has its own cache and queue (default: 'default')")
	cmd.PersistentFlags().StringVar(&app.Remote, "remote", "", "Server base URL")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("ACTAS_FORMAT", "json"), "Output format (json|edn|md)")
	cmd.PersistentFlags().BoolVar(&app.Pretty, "pretty", false, "Pretty-print output (indented json/edn, rendered md)")
	cmd.PersistentFlags().BoolVar(&app.Offline, "offline", false, "Never contact the server; mutations are only queued")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newCreateMissingCmd(app))
	cmd.AddCommand(newSaveCmd(app))
	cmd.AddCommand(newValidateCmd(app))
	cmd.AddCommand(newTransitionCmds(app)...)
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newPullCmd(app))
	cmd.AddCommand(newRefreshCmd(app))
	cmd.AddCommand(newConflictsCmd(app))
	cmd.AddCommand(newSyncCmd(app))
	cmd.AddCommand(newQueueCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newDocsCmd(app))

	return cmd
}

// load resolves the configuration once per invocation; explicit flags win.
func (app *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return writeErr(cmd, err)
	}
	if app.Dir != "" {
		cfg.Dir = app.Dir
	}
	if app.Scope != "" {
		cfg.Scope = app.Scope
	}
	if app.Remote != "" {
		cfg.RemoteURL = app.Remote
	}
	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}
	log, err := observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.cfg = cfg
	app.log = log
	return nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

// envelope is the output shape of every command: {"data": ..., "_hints": [...]}.
type envelope struct {
	Data  any      `json:"data"`
	Hints []string `json:"_hints,omitempty"`
}

func (e envelope) Markdown() string {
	src, err := format.MarkdownSource(e.Data)
	if err != nil {
		src = err.Error()
	}
	if len(e.Hints) == 0 {
		return src
	}
	var b strings.Builder
	b.WriteString(src)
	b.WriteString("\n\n**Next:**\n")
	for _, h := range e.Hints {
		fmt.Fprintf(&b, "\n- `%s`", h)
	}
	return b.String()
}

func writeOut(cmd *cobra.Command, app *App, data any, hints ...string) error {
	return format.Write(cmd.OutOrStdout(), envelope{Data: data, Hints: hints}, app.Format, app.Pretty)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	for _, h := range hintsFor(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), "hint: "+h)
	}
	return err
}
