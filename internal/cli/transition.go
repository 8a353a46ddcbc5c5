package cli

import (
	"context"

	"github.com/spf13/cobra"

	"actas-cli/internal/bulk"
	"actas-cli/internal/gradebook"
)

// runBulk applies op to refs through the local client (queued) or, with
// direct, through the server's bulk endpoint.
func runBulk(ctx context.Context, s *session, op bulk.Op, refs []string, direct bool) (bulk.Result, error) {
	if !direct {
		return s.client.ApplyBulk(ctx, op, refs)
	}
	h, err := s.remote()
	if err != nil {
		return bulk.Result{}, err
	}
	return h.ApplyBulk(ctx, op, refs)
}

func writeBulk(cmd *cobra.Command, app *App, res bulk.Result, direct bool) error {
	var hints []string
	if !direct && res.Succeeded > 0 {
		hints = append(hints, "actas sync now")
	}
	if err := writeOut(cmd, app, bulkDoc(res), hints...); err != nil {
		return err
	}
	if res.Failed > 0 {
		return bulkFailedError{failed: res.Failed, total: res.Succeeded + res.Failed}
	}
	return nil
}

func newValidateCmd(app *App) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "validate <ref>...",
		Short: "Recompute the validation metrics of one or more actas (never changes status)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			if len(args) == 1 && !direct {
				m, err := s.client.Validate(cmd.Context(), args[0])
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeOut(cmd, app, metricsDoc(m))
			}
			res, err := runBulk(cmd.Context(), s, bulk.OpValidate, args, direct)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeBulk(cmd, app, res, direct)
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "Validate on the server instead of the local cache")
	return cmd
}

func newTransitionCmds(app *App) []*cobra.Command {
	specs := []struct {
		op    bulk.Op
		short string
		cmd   func(ref string) gradebook.Command
	}{
		{bulk.OpLock, "Lock DRAFT actas (requires a valid acta)", func(ref string) gradebook.Command { return gradebook.LockCommand{Ref: ref} }},
		{bulk.OpUnlock, "Return LOCKED actas to DRAFT", func(ref string) gradebook.Command { return gradebook.UnlockCommand{Ref: ref} }},
		{bulk.OpPublish, "Publish LOCKED actas", func(ref string) gradebook.Command { return gradebook.PublishCommand{Ref: ref} }},
		{bulk.OpUnpublish, "Return PUBLISHED actas to LOCKED", func(ref string) gradebook.Command { return gradebook.UnpublishCommand{Ref: ref} }},
	}
	out := make([]*cobra.Command, 0, len(specs))
	for _, sp := range specs {
		var direct bool
		cmd := &cobra.Command{
			Use:   string(sp.op) + " <ref>...",
			Short: sp.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := openSession(cmd.Context(), app)
				if err != nil {
					return writeErr(cmd, err)
				}
				defer s.Close()

				if len(args) == 1 && !direct {
					res, err := s.client.Execute(cmd.Context(), sp.cmd(args[0]))
					if err != nil {
						return writeErr(cmd, err)
					}
					if res.Queued == nil {
						return writeOut(cmd, app, outcome(res))
					}
					return writeOut(cmd, app, outcome(res), "actas sync now")
				}
				res, err := runBulk(cmd.Context(), s, sp.op, args, direct)
				if err != nil {
					return writeErr(cmd, err)
				}
				return writeBulk(cmd, app, res, direct)
			},
		}
		cmd.Flags().BoolVar(&direct, "direct", false, "Apply on the server through its bulk endpoint instead of queueing")
		out = append(out, cmd)
	}
	return out
}
