package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"actas-cli/internal/docs"
	"actas-cli/internal/model"
)

type docTopic struct {
	Topic string `json:"topic"`
	Body  string `json:"markdown"`
}

func (d docTopic) Markdown() string { return d.Body }

func newDocsCmd(app *App) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show the built-in documentation (lifecycle, sheet, sync)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return writeOut(cmd, app, map[string]any{"topics": docs.Topics()})
			}
			body, ok := docs.Get(args[0])
			if !ok {
				return writeErr(cmd, model.InputError{Err: fmt.Errorf("unknown docs topic: %q (run `actas docs` to list topics)", args[0])})
			}
			if raw {
				_, err := fmt.Fprint(cmd.OutOrStdout(), body)
				return err
			}
			return writeOut(cmd, app, docTopic{Topic: args[0], Body: body})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print raw markdown (no envelope)")
	return cmd
}
