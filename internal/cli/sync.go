package cli

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"actas-cli/internal/connectivity"
	"actas-cli/internal/model"
	"actas-cli/internal/syncer"
	"actas-cli/internal/tui"
)

func newSyncCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay the local queue against the server",
	}
	cmd.AddCommand(newSyncNowCmd(app))
	cmd.AddCommand(newSyncStatusCmd(app))
	return cmd
}

func newSyncNowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Flush the queue now (ignores the retry backoff, not connectivity)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			probe, _ := s.probe(cmd.Context())
			rep, err := s.coordinator(probe).SyncNow(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var hints []string
			if rep.Conflicts > 0 {
				hints = append(hints, "actas conflicts")
			}
			if rep.Remaining > 0 {
				hints = append(hints, "actas sync status")
			}
			return writeOut(cmd, app, rep, hints...)
		},
	}
}

func newSyncStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending, stalled and corrupted queue entries, conflicts and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			probe, _ := s.probe(cmd.Context())
			st, err := s.coordinator(probe).Status(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var hints []string
			if len(st.Corrupted) > 0 {
				hints = append(hints, "actas queue list")
			}
			if st.Conflicts > 0 {
				hints = append(hints, "actas conflicts")
			}
			if st.Pending > 0 && st.Online {
				hints = append(hints, "actas sync now")
			}
			return writeOut(cmd, app, statusDoc(st), hints...)
		},
	}
}

type queueListing struct {
	Entries   []model.QueueEntry `json:"entries"`
	Corrupted []corruptEntry     `json:"corrupted"`
}

type corruptEntry struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

func newQueueCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or repair the local queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List queued entries in replay order, plus undecodable ones by key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			entries, bad, err := s.queue.Inspect(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			out := queueListing{Entries: entries, Corrupted: []corruptEntry{}}
			var hints []string
			for _, b := range bad {
				out.Corrupted = append(out.Corrupted, corruptEntry{Key: b.Key, Error: b.Err.Error()})
				hints = append(hints, "actas queue discard "+b.Key)
			}
			return writeOut(cmd, app, queueDoc(out), hints...)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard <key>",
		Short: "Delete one stored queue entry by key (for corrupted entries)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			if err := s.queue.Discard(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"discarded": args[0]})
		},
	})
	return cmd
}

func newWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the sync triggers and show the pending count until quit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer s.Close()

			probe, httpProbe := s.probe(ctx)
			coord := s.coordinator(probe)
			// Runs before s.Close: no flush may outlive the store.
			stopLoop := startSyncLoop(ctx, coord, httpProbe, app.log)
			defer stopLoop()

			if err := tui.Watch(ctx, coord, app.cfg.SyncInterval); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}

// startSyncLoop runs the connectivity probe and the sync triggers in the
// background. The returned stop cancels both and waits for them to exit.
func startSyncLoop(ctx context.Context, coord *syncer.Coordinator, httpProbe *connectivity.HTTPProbe, log *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if httpProbe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			httpProbe.Run(ctx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sync loop stopped", slog.String("error", err.Error()))
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
