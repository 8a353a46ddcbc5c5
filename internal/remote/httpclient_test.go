package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"actas-cli/internal/lifecycle"
	"actas-cli/internal/model"
)

func serve(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPClient_SaveSendsIfMatchAndDecodesAck(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/actas/2024:5A:MAT:1/grades" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("If-Match"); got != `"7"` {
			t.Errorf("unexpected If-Match %q", got)
		}
		var sheet model.GradeSheet
		if err := json.NewDecoder(r.Body).Decode(&sheet); err != nil {
			t.Errorf("decode: %v", err)
		}
		writeJSON(w, http.StatusOK, Ack{Ref: "2024:5A:MAT:1", Version: 8, Status: model.StatusDraft})
	})

	ack, err := c.SaveActa(context.Background(), "2024:5A:MAT:1", model.GradeSheet{Grades: model.Grades{}}, 7)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ack.Version != 8 {
		t.Fatalf("expected version 8, got %d", ack.Version)
	}
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		check  func(error) bool
	}{
		{"conflict", 409, ErrorBody{Error: CodeVersionConflict, Ref: "r", Expected: 7, Current: 8}, func(err error) bool {
			var ce ConflictError
			return errors.As(err, &ce) && ce.Current == 8 && errors.Is(err, ErrVersionConflict)
		}},
		{"invalid transition", 409, ErrorBody{Error: CodeInvalidTransition, Op: model.OpPublish, From: model.StatusDraft}, func(err error) bool {
			return errors.Is(err, lifecycle.ErrInvalidTransition)
		}},
		{"validation", 422, ErrorBody{Error: CodeValidationFailed, Errors: []string{"incomplete grades"}}, func(err error) bool {
			var vf lifecycle.ValidationFailedError
			return errors.As(err, &vf) && vf.Errors[0] == "incomplete grades"
		}},
		{"not found", 404, ErrorBody{Error: CodeNotFound, Ref: "r"}, func(err error) bool { return errors.Is(err, model.ErrNotFound) }},
		{"bad request", 400, ErrorBody{Error: CodeInvalidRequest, Message: "nope"}, func(err error) bool {
			return errors.Is(err, ErrRejected) && !IsTransient(err)
		}},
		{"server error", 503, "down", func(err error) bool { return IsTransient(err) }},
		{"unknown code", 418, ErrorBody{Error: "teapot"}, func(err error) bool { return IsTransient(err) && !IsRejection(err) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := serve(t, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, tc.status, tc.body) })
			_, err := c.LockActa(context.Background(), "2024:5A:MAT:1", 7)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error mapping: %v", err)
			}
		})
	}
}

func TestHTTPClient_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	_, err := c.GetActa(context.Background(), "2024:5A:MAT:1")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestHTTPClient_ForeignAnswersAreTransient(t *testing.T) {
	for _, status := range []int{200, 404} {
		c := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(status)
			_, _ = w.Write([]byte("<html><body>Sign in to the network</body></html>"))
		})
		_, err := c.SaveActa(context.Background(), "2024:5A:MAT:1", model.GradeSheet{Grades: model.Grades{}}, 1)
		if !IsTransient(err) || IsRejection(err) {
			t.Fatalf("status %d: expected transient error, got %v", status, err)
		}
	}
}

func TestIsRejection(t *testing.T) {
	for _, err := range []error{
		ConflictError{Ref: "r", Expected: 1, Current: 2},
		lifecycle.InvalidTransitionError{Ref: "r", Op: model.OpPublish, From: model.StatusDraft},
		lifecycle.ValidationFailedError{Ref: "r", Errors: []string{"incomplete grades"}},
		model.NotFoundError{Kind: "acta", ID: "r"},
	} {
		if !IsRejection(err) {
			t.Fatalf("expected rejection: %v", err)
		}
	}
	for _, err := range []error{
		TransientError{Op: "PUT", Err: errors.New("eof")},
		RejectedError{Status: 400, Code: CodeInvalidRequest},
		context.Canceled,
	} {
		if IsRejection(err) {
			t.Fatalf("unexpected rejection: %v", err)
		}
	}
}

func TestHTTPClient_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).ListActas(context.Background(), model.Filter{})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestHTTPClient_ParentCancelIsNotTransient(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) { writeJSON(w, 200, ListResponse{}) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListActas(ctx, model.Filter{})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrTransient) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	var paths []string
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		writeJSON(w, 200, Ack{Version: 2})
	})
	ctx := context.Background()
	for _, e := range []model.QueueEntry{
		{TargetRef: "2024:5A:MAT:1", Operation: model.OpSave, Payload: &model.GradeSheet{}},
		{TargetRef: "2024:5A:MAT:1", Operation: model.OpUnpublish},
	} {
		if _, err := Dispatch(ctx, c, e); err != nil {
			t.Fatalf("dispatch %s: %v", e.Operation, err)
		}
	}
	if paths[0] != "PUT /v1/actas/2024:5A:MAT:1/grades" || paths[1] != "POST /v1/actas/2024:5A:MAT:1/unpublish" {
		t.Fatalf("unexpected paths: %v", paths)
	}
	if _, err := Dispatch(ctx, c, model.QueueEntry{Operation: model.OpSave}); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected invalid input for SAVE without payload, got %v", err)
	}
}

func TestParseETag(t *testing.T) {
	for in, want := range map[string]int64{`7`: 7, `"7"`: 7, `W/"12"`: 12} {
		got, err := ParseETag(in)
		if err != nil || got != want {
			t.Fatalf("%s: got %d err %v", in, got, err)
		}
	}
	if _, err := ParseETag("abc"); err == nil {
		t.Fatalf("expected error")
	}
}
