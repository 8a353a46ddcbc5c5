// Package connectivity abstracts "are we online" behind a subscribable probe.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Probe reports connectivity and notifies subscribers on changes only.
type Probe interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Manual is a settable probe. It backs `--offline` and tests, and holds the
// subscriber table for HTTPProbe.
type Manual struct {
	mu     sync.Mutex
	online bool
	next   int
	subs   map[int]func(bool)
}

func NewManual(online bool) *Manual {
	return &Manual{online: online, subs: map[int]func(bool){}}
}

func (m *Manual) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set updates the state and calls subscribers (outside the lock) when it changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for i := 0; i < m.next; i++ {
		if fn, ok := m.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = map[int]func(bool){}
	}
	id := m.next
	m.next++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// HTTPProbe polls GET {base}/health. Any 2xx within the timeout counts as online.
type HTTPProbe struct {
	*Manual

	url      string
	client   *http.Client
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewHTTPProbe(baseURL string, interval, timeout time.Duration, log *slog.Logger) *HTTPProbe {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPProbe{
		Manual:   NewManual(false),
		url:      strings.TrimRight(baseURL, "/") + "/health",
		client:   &http.Client{},
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Check performs one probe and records the result.
func (p *HTTPProbe) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online := false
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err == nil {
		resp, err := p.client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			online = resp.StatusCode >= 200 && resp.StatusCode < 300
		}
	}
	if online != p.Online() {
		p.log.Info("connectivity changed", "online", online, "url", p.url)
	}
	p.Set(online)
	return online
}

// Run checks immediately and then every interval until ctx is done.
func (p *HTTPProbe) Run(ctx context.Context) {
	p.Check(ctx)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Check(ctx)
		}
	}
}
