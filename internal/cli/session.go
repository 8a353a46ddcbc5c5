package cli

import (
	"context"

	"github.com/pkg/errors"

	"actas-cli/internal/connectivity"
	"actas-cli/internal/gradebook"
	"actas-cli/internal/model"
	"actas-cli/internal/remote"
	"actas-cli/internal/store"
	"actas-cli/internal/syncer"
)

var errOfflineMode = errors.New("--offline: this command needs the server")

// session is the local side of one command: the sqlite store of the scope,
// the client facade over it and, unless offline, the HTTP remote.
type session struct {
	app    *App
	kv     *store.SQLiteKV
	repo   *store.Repository
	queue  *store.Queue
	http   *remote.HTTPClient
	client *gradebook.Client
}

func openSession(ctx context.Context, app *App) (*session, error) {
	kv, err := store.OpenSQLiteDir(ctx, app.cfg.Dir)
	if err != nil {
		return nil, err
	}
	repo, err := store.NewRepository(kv, app.cfg.Scope, app.cfg.Engine())
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	q, err := store.NewQueue(kv, app.cfg.Scope, nil)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	s := &session{app: app, kv: kv, repo: repo, queue: q}
	var svc remote.Service
	if !app.Offline {
		s.http = remote.NewHTTPClient(app.cfg.RemoteURL, app.cfg.RequestTimeout)
		svc = s.http
	}
	s.client = gradebook.New(repo, q, svc, gradebook.Options{Logger: app.log})
	return s, nil
}

func (s *session) Close() error { return s.kv.Close() }

func (s *session) remote() (*remote.HTTPClient, error) {
	if s.http == nil {
		return nil, model.InputError{Err: errOfflineMode}
	}
	return s.http, nil
}

// probe reflects --offline, or checks the server's health endpoint once.
// Long-running commands call Run on the returned HTTP probe.
func (s *session) probe(ctx context.Context) (connectivity.Probe, *connectivity.HTTPProbe) {
	if s.http == nil {
		return connectivity.NewManual(false), nil
	}
	p := connectivity.NewHTTPProbe(s.app.cfg.RemoteURL, s.app.cfg.SyncInterval, s.app.cfg.RequestTimeout, s.app.log)
	p.Check(ctx)
	return p, p
}

func (s *session) coordinator(probe connectivity.Probe) *syncer.Coordinator {
	var svc remote.Service
	if s.http != nil {
		svc = s.http
	}
	return syncer.New(s.repo, s.queue, svc, probe, s.app.cfg.Sync(), syncer.Options{Logger: s.app.log})
}
