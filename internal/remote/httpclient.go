package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"actas-cli/internal/bulk"
	"actas-cli/internal/model"
	"actas-cli/internal/report"
)

// HTTPClient implements Service against the server's JSON API. Every request
// is bounded by Timeout; a timeout is reported as TransientError.
type HTTPClient struct {
	BaseURL string
	Timeout time.Duration
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Timeout: timeout,
		HTTP:    &http.Client{},
	}
}

var _ Service = (*HTTPClient)(nil)

type request struct {
	method  string
	path    string
	query   url.Values
	ifMatch *int64
	body    any
}

func (c *HTTPClient) do(ctx context.Context, r request, out any) error {
	op := r.method + " " + r.path

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return errors.Wrapf(err, "encode %s", op)
		}
		body = bytes.NewReader(b)
	}

	u := c.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, r.method, u, body)
	if err != nil {
		return errors.Wrapf(err, "build %s", op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.ifMatch != nil {
		req.Header.Set("If-Match", FormatETag(*r.ifMatch))
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		// The caller gave up; that is not a network failure.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return TransientError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return TransientError{Op: op, Err: fmt.Errorf("server answered %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		var eb ErrorBody
		if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
			// Not an answer from the server of record (proxy, captive portal).
			return TransientError{Op: op, Err: fmt.Errorf("unexpected %d answer: %s", resp.StatusCode, snippet(raw))}
		}
		return ErrorFromBody(op, resp.StatusCode, eb)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return TransientError{Op: op, Err: errors.Wrapf(err, "decode %d answer: %s", resp.StatusCode, snippet(raw))}
	}
	return nil
}

func snippet(raw []byte) string {
	s := strings.Join(strings.Fields(string(raw)), " ")
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}

func (c *HTTPClient) ListActas(ctx context.Context, f model.Filter) ([]model.Acta, error) {
	var out ListResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/v1/actas", query: FilterQuery(f)}, &out); err != nil {
		return nil, err
	}
	if out.Actas == nil {
		out.Actas = []model.Acta{}
	}
	return out.Actas, nil
}

func (c *HTTPClient) GetActa(ctx context.Context, ref string) (model.Acta, error) {
	var a model.Acta
	err := c.do(ctx, request{method: http.MethodGet, path: ActaPath(ref)}, &a)
	return a, err
}

func (c *HTTPClient) CreateMissingActas(ctx context.Context, year int, term string, f model.Filter) (int, error) {
	var out CreateMissingResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/v1/create-missing",
		body:   CreateMissingRequest{Year: year, Term: term, Filter: f},
	}, &out)
	return out.Created, err
}

func (c *HTTPClient) SaveActa(ctx context.Context, ref string, sheet model.GradeSheet, baseVersion int64) (Ack, error) {
	var ack Ack
	err := c.do(ctx, request{method: http.MethodPut, path: ActaPath(ref) + "/grades", ifMatch: &baseVersion, body: sheet}, &ack)
	return ack, err
}

func (c *HTTPClient) ValidateActa(ctx context.Context, ref string) (model.Metrics, error) {
	var m model.Metrics
	err := c.do(ctx, request{method: http.MethodPost, path: ActaPath(ref) + "/validate"}, &m)
	return m, err
}

func (c *HTTPClient) transition(ctx context.Context, ref, op string, baseVersion int64) (Ack, error) {
	var ack Ack
	err := c.do(ctx, request{method: http.MethodPost, path: ActaPath(ref) + "/" + op, ifMatch: &baseVersion}, &ack)
	return ack, err
}

func (c *HTTPClient) LockActa(ctx context.Context, ref string, baseVersion int64) (Ack, error) {
	return c.transition(ctx, ref, "lock", baseVersion)
}

func (c *HTTPClient) UnlockActa(ctx context.Context, ref string, baseVersion int64) (Ack, error) {
	return c.transition(ctx, ref, "unlock", baseVersion)
}

func (c *HTTPClient) PublishActa(ctx context.Context, ref string, baseVersion int64) (Ack, error) {
	return c.transition(ctx, ref, "publish", baseVersion)
}

func (c *HTTPClient) UnpublishActa(ctx context.Context, ref string, baseVersion int64) (Ack, error) {
	return c.transition(ctx, ref, "unpublish", baseVersion)
}

func (c *HTTPClient) bulk(ctx context.Context, op bulk.Op, refs []string) (bulk.Result, error) {
	var res bulk.Result
	err := c.do(ctx, request{method: http.MethodPost, path: "/v1/bulk/" + string(op), body: BulkRequest{Refs: refs}}, &res)
	return res, err
}

func (c *HTTPClient) ValidateBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return c.bulk(ctx, bulk.OpValidate, refs)
}

func (c *HTTPClient) LockBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return c.bulk(ctx, bulk.OpLock, refs)
}

func (c *HTTPClient) PublishBulk(ctx context.Context, refs []string) (bulk.Result, error) {
	return c.bulk(ctx, bulk.OpPublish, refs)
}

// ApplyBulk reaches the generic /v1/bulk/:op route, including unlock/unpublish.
func (c *HTTPClient) ApplyBulk(ctx context.Context, op bulk.Op, refs []string) (bulk.Result, error) {
	return c.bulk(ctx, op, refs)
}

func (c *HTTPClient) ExportProjection(ctx context.Context, f model.Filter, kind report.Kind) (report.Projection, error) {
	q := FilterQuery(f)
	q.Set("kind", string(kind))
	var p report.Projection
	err := c.do(ctx, request{method: http.MethodGet, path: "/v1/export", query: q}, &p)
	return p, err
}
